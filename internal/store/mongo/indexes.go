package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IdxSettlementTx keeps a settlement transaction to one policy. Documents
// without a hash are left out of the index.
const IdxSettlementTx = "policies_settlement_tx_hash"

func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if err := ensurePoliciesIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure policies indexes: %w", err)
	}
	if err := ensureClaimsIndexes(ctx, db); err != nil {
		return fmt.Errorf("ensure claims indexes: %w", err)
	}
	return nil
}

func ensurePoliciesIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(ColPolicies)
	models := []mongo.IndexModel{
		newIndex("owner_address", 1, "policies_owner_address", false),
		// sweep: pending policies by age, and by event date
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "submitted_at", Value: 1}},
			Options: options.Index().SetName("policies_status_submitted_at"),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "coverage_start_date", Value: 1}},
			Options: options.Index().SetName("policies_status_coverage_start"),
		},
		{Keys: bson.D{{Key: "settlement_tx_hash", Value: 1}},
			Options: options.Index().
				SetName(IdxSettlementTx).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"settlement_tx_hash": bson.M{"$type": "string"}}),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, models)
	return err
}

func ensureClaimsIndexes(ctx context.Context, db *mongo.Database) error {
	coll := db.Collection(ColClaims)
	models := []mongo.IndexModel{
		newIndex("policy_id", 1, "claims_policy_id", false),
	}
	_, err := coll.Indexes().CreateMany(ctx, models)
	return err
}

func newIndex(field string, asc int32, name string, unique bool) mongo.IndexModel {
	opts := options.Index().SetName(name)
	if unique {
		opts = opts.SetUnique(true)
	}
	return mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: asc}},
		Options: opts,
	}
}
