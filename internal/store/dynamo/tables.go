package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	TablePolicies    = "parametric_policies"
	TableClaims      = "parametric_claims"
	TableSettlements = "parametric_settlements"
)

const (
	GSIPoliciesStatus = "status-index"
	GSIPoliciesOwner  = "owner_address-index"
	GSIClaimsPolicyID = "policy_id-index"
)

type indexSpec struct {
	name    string
	hashKey string
	sortKey string
}

type tableSpec struct {
	name    string
	indexes []indexSpec
}

// The status index is sorted by submission time so the sweep reads the
// oldest pending policies first.
var tableSpecs = []tableSpec{
	{
		name: TablePolicies,
		indexes: []indexSpec{
			{name: GSIPoliciesStatus, hashKey: "status", sortKey: "submitted_at"},
			{name: GSIPoliciesOwner, hashKey: "owner_address", sortKey: "submitted_at"},
		},
	},
	{
		name: TableClaims,
		indexes: []indexSpec{
			{name: GSIClaimsPolicyID, hashKey: "policy_id"},
		},
	},
	// keyed by settlement tx hash; one row per paid policy
	{name: TableSettlements},
}

// EnsureTables creates the policy, claim and settlement tables when they
// are missing.
func EnsureTables(ctx context.Context, client *dynamodb.Client, log *slog.Logger) error {
	for _, spec := range tableSpecs {
		exists, err := tableExists(ctx, client, spec.name)
		if err != nil {
			return fmt.Errorf("check table %s: %w", spec.name, err)
		}
		if exists {
			log.Debug("table exists", "table", spec.name)
			continue
		}

		log.Info("creating table", "table", spec.name)
		if _, err := client.CreateTable(ctx, spec.createInput()); err != nil {
			return fmt.Errorf("create table %s: %w", spec.name, err)
		}
	}
	return nil
}

func tableExists(ctx context.Context, client *dynamodb.Client, name string) (bool, error) {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
	var notFound *types.ResourceNotFoundException
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound):
		return false, nil
	default:
		return false, err
	}
}

// createInput keys every table on a string "id" and declares each index key
// attribute once. All key attributes are strings.
func (t tableSpec) createInput() *dynamodb.CreateTableInput {
	declared := map[string]bool{"id": true}
	attrs := []types.AttributeDefinition{stringAttr("id")}
	declare := func(name string) {
		if name == "" || declared[name] {
			return
		}
		declared[name] = true
		attrs = append(attrs, stringAttr(name))
	}

	var gsis []types.GlobalSecondaryIndex
	for _, idx := range t.indexes {
		declare(idx.hashKey)
		declare(idx.sortKey)

		keys := []types.KeySchemaElement{{AttributeName: aws.String(idx.hashKey), KeyType: types.KeyTypeHash}}
		if idx.sortKey != "" {
			keys = append(keys, types.KeySchemaElement{AttributeName: aws.String(idx.sortKey), KeyType: types.KeyTypeRange})
		}
		gsis = append(gsis, types.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.name),
			KeySchema:  keys,
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}

	return &dynamodb.CreateTableInput{
		TableName:              aws.String(t.name),
		KeySchema:              []types.KeySchemaElement{{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash}},
		AttributeDefinitions:   attrs,
		GlobalSecondaryIndexes: gsis,
		BillingMode:            types.BillingModePayPerRequest,
	}
}

func stringAttr(name string) types.AttributeDefinition {
	return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
}
