package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrKriegler/go-parametric/internal/core"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ClaimRepoMongo struct {
	coll      *mongodrv.Collection
	opTimeout time.Duration
}

var _ core.ClaimRepo = (*ClaimRepoMongo)(nil)

func NewClaimRepo(db *mongodrv.Database, opTimeout time.Duration) *ClaimRepoMongo {
	return &ClaimRepoMongo{
		coll:      db.Collection(ColClaims),
		opTimeout: opTimeout,
	}
}

func (repo *ClaimRepoMongo) Create(ctx context.Context, claim core.Claim) error {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	if _, err := repo.coll.InsertOne(ctx, toClaimDoc(claim)); err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: claim %s already exists", core.ErrConflict, claim.ID)
		}
		return fmt.Errorf("claims.insert: %w", err)
	}
	return nil
}

func (repo *ClaimRepoMongo) Get(ctx context.Context, id string) (core.Claim, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	var doc ClaimDoc
	err := repo.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodrv.ErrNoDocuments) {
			return core.Claim{}, core.ErrClaimNotFound
		}
		return core.Claim{}, fmt.Errorf("claims.findOne: %w", err)
	}
	return fromClaimDoc(doc), nil
}

func (repo *ClaimRepoMongo) ListByPolicy(ctx context.Context, policyID string) ([]core.Claim, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	cursor, err := repo.coll.Find(ctx,
		bson.M{"policy_id": policyID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("claims.find: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []ClaimDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("claims.decode: %w", err)
	}
	claims := make([]core.Claim, len(docs))
	for i, d := range docs {
		claims[i] = fromClaimDoc(d)
	}
	return claims, nil
}

func (repo *ClaimRepoMongo) Resolve(ctx context.Context, id string, to core.ClaimStatus, at time.Time) (core.Claim, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	var doc ClaimDoc
	err := repo.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(core.ClaimStatusPending)},
		bson.M{"$set": bson.M{"status": string(to), "resolved_at": at.UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return fromClaimDoc(doc), nil
	}
	if !errors.Is(err, mongodrv.ErrNoDocuments) {
		return core.Claim{}, fmt.Errorf("claims.findOneAndUpdate: %w", err)
	}

	return core.Claim{}, repo.missingOrConflict(ctx, id, core.ClaimStatusPending)
}

func (repo *ClaimRepoMongo) Reopen(ctx context.Context, id string, from core.ClaimStatus) (core.Claim, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	var doc ClaimDoc
	err := repo.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{
			"$set":   bson.M{"status": string(core.ClaimStatusPending)},
			"$unset": bson.M{"resolved_at": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return fromClaimDoc(doc), nil
	}
	if !errors.Is(err, mongodrv.ErrNoDocuments) {
		return core.Claim{}, fmt.Errorf("claims.reopen: %w", err)
	}
	return core.Claim{}, repo.missingOrConflict(ctx, id, from)
}

func (repo *ClaimRepoMongo) missingOrConflict(ctx context.Context, id string, want core.ClaimStatus) error {
	n, err := repo.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("claims.count: %w", err)
	}
	if n == 0 {
		return core.ErrClaimNotFound
	}
	return fmt.Errorf("%w: claim %s is no longer %s", core.ErrStatusConflict, id, want)
}
