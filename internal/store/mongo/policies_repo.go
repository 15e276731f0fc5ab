package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrKriegler/go-parametric/internal/core"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PolicyRepoMongo struct {
	coll      *mongodrv.Collection
	opTimeout time.Duration
}

var _ core.PolicyRepo = (*PolicyRepoMongo)(nil)

func NewPolicyRepo(db *mongodrv.Database, opTimeout time.Duration) *PolicyRepoMongo {
	return &PolicyRepoMongo{
		coll:      db.Collection(ColPolicies),
		opTimeout: opTimeout,
	}
}

func (repo *PolicyRepoMongo) Create(ctx context.Context, policy core.Policy) error {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	_, err := repo.coll.InsertOne(ctx, toPolicyDoc(policy))
	if err != nil {
		if isSettlementTxDuplicate(err) {
			return core.ErrSettlementTxUsed
		}
		if isDuplicateKey(err) {
			return core.ErrPolicyExists
		}
		return fmt.Errorf("policies.insert: %w", err)
	}
	return nil
}

func (repo *PolicyRepoMongo) Get(ctx context.Context, id string) (core.Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	var doc PolicyDoc
	err := repo.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongodrv.ErrNoDocuments) {
			return core.Policy{}, core.ErrPolicyNotFound
		}
		return core.Policy{}, fmt.Errorf("policies.findOne: %w", err)
	}
	return fromPolicyDoc(doc), nil
}

func (repo *PolicyRepoMongo) List(ctx context.Context, filter core.PolicyFilter, limit, offset int) ([]core.Policy, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	mongoFilter := bson.M{}
	if filter.OwnerAddress != "" {
		mongoFilter["owner_address"] = filter.OwnerAddress
	}
	if filter.Status != "" {
		mongoFilter["status"] = string(filter.Status)
	}

	// Get total count
	total, err := repo.coll.CountDocuments(ctx, mongoFilter)
	if err != nil {
		return nil, 0, fmt.Errorf("policies.count: %w", err)
	}

	// Get paginated results
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSkip(int64(offset)).
		SetSort(bson.D{{Key: "submitted_at", Value: -1}})

	policies, err := repo.find(ctx, mongoFilter, opts)
	if err != nil {
		return nil, 0, err
	}
	return policies, total, nil
}

// TransitionStatus matches on both id and the expected status, so the
// update is a single atomic compare-and-swap.
func (repo *PolicyRepoMongo) TransitionStatus(ctx context.Context, id string, change core.StatusChange) (core.Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	at := change.At.UTC()
	set := bson.M{
		"status":     string(change.To),
		"updated_at": at,
	}
	if change.To == core.PolicyStatusActive {
		set["paid_at"] = at
		if change.SettlementTxHash != "" {
			set["settlement_tx_hash"] = change.SettlementTxHash
		}
	}
	if change.To.IsTerminal() {
		set["closed_at"] = at
	}

	var doc PolicyDoc
	err := repo.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": string(change.From)},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return fromPolicyDoc(doc), nil
	}
	if isSettlementTxDuplicate(err) {
		return core.Policy{}, fmt.Errorf("%w: policy %s, tx %s", core.ErrSettlementTxUsed, id, change.SettlementTxHash)
	}
	if !errors.Is(err, mongodrv.ErrNoDocuments) {
		return core.Policy{}, fmt.Errorf("policies.findOneAndUpdate: %w", err)
	}

	// Nothing matched: missing, or the status moved on
	n, err := repo.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return core.Policy{}, fmt.Errorf("policies.count: %w", err)
	}
	if n == 0 {
		return core.Policy{}, core.ErrPolicyNotFound
	}
	return core.Policy{}, fmt.Errorf("%w: policy %s is no longer %s", core.ErrStatusConflict, id, change.From)
}

// FindExpirable issues one query with both cutoffs OR-ed together.
func (repo *PolicyRepoMongo) FindExpirable(ctx context.Context, submittedBefore, eventBefore time.Time, limit int) ([]core.Policy, error) {
	ctx, cancel := context.WithTimeout(ctx, repo.opTimeout)
	defer cancel()

	filter := bson.M{
		"status": string(core.PolicyStatusPendingPayment),
		"$or": bson.A{
			bson.M{"submitted_at": bson.M{"$lt": submittedBefore.UTC()}},
			bson.M{"coverage_start_date": bson.M{"$lt": eventBefore.UTC()}},
		},
	}
	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "submitted_at", Value: 1}})

	return repo.find(ctx, filter, opts)
}

func (repo *PolicyRepoMongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]core.Policy, error) {
	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("policies.find: %w", err)
	}
	defer cursor.Close(ctx)

	policies := []core.Policy{}
	for cursor.Next(ctx) {
		var doc PolicyDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("policies.decode: %w", err)
		}
		policies = append(policies, fromPolicyDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("policies.cursor: %w", err)
	}
	return policies, nil
}

func isDuplicateKey(err error) bool {
	return mongodrv.IsDuplicateKeyError(err)
}

// isSettlementTxDuplicate reports a duplicate on the settlement hash index.
// The server names the violated index in the message.
func isSettlementTxDuplicate(err error) bool {
	return isDuplicateKey(err) && strings.Contains(err.Error(), IdxSettlementTx)
}
