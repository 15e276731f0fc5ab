package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/MrKriegler/go-parametric/internal/core"
)

type ClaimItem struct {
	ID          string  `dynamodbav:"id"`
	PolicyID    string  `dynamodbav:"policy_id"`
	ClaimAmount float64 `dynamodbav:"claim_amount"`
	Status      string  `dynamodbav:"status"`
	CreatedAt   string  `dynamodbav:"created_at"`
	ResolvedAt  string  `dynamodbav:"resolved_at,omitempty"`
}

func (i ClaimItem) ToCore() core.Claim {
	return core.Claim{
		ID:          i.ID,
		PolicyID:    i.PolicyID,
		ClaimAmount: i.ClaimAmount,
		Status:      core.ClaimStatus(i.Status),
		CreatedAt:   parseTime(i.CreatedAt),
		ResolvedAt:  parseTimePtr(i.ResolvedAt),
	}
}

func claimItemFromCore(c core.Claim) ClaimItem {
	return ClaimItem{
		ID:          c.ID,
		PolicyID:    c.PolicyID,
		ClaimAmount: c.ClaimAmount,
		Status:      string(c.Status),
		CreatedAt:   formatTime(c.CreatedAt),
		ResolvedAt:  formatTimePtr(c.ResolvedAt),
	}
}

type ClaimRepo struct {
	client *dynamodb.Client
}

var _ core.ClaimRepo = (*ClaimRepo)(nil)

func NewClaimRepo(client *dynamodb.Client) *ClaimRepo {
	return &ClaimRepo{client: client}
}

func (r *ClaimRepo) Create(ctx context.Context, claim core.Claim) error {
	av, err := attributevalue.MarshalMap(claimItemFromCore(claim))
	if err != nil {
		return fmt.Errorf("claims.marshal: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.AttributeNotExists(expression.Name("id"))).
		Build()
	if err != nil {
		return fmt.Errorf("claims.buildExpr: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(TableClaims),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: claim %s already exists", core.ErrConflict, claim.ID)
		}
		return fmt.Errorf("claims.putItem: %w", err)
	}
	return nil
}

func (r *ClaimRepo) Get(ctx context.Context, id string) (core.Claim, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(TableClaims),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return core.Claim{}, fmt.Errorf("claims.getItem: %w", err)
	}
	if out.Item == nil {
		return core.Claim{}, core.ErrClaimNotFound
	}

	var item ClaimItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return core.Claim{}, fmt.Errorf("claims.unmarshal: %w", err)
	}
	return item.ToCore(), nil
}

func (r *ClaimRepo) ListByPolicy(ctx context.Context, policyID string) ([]core.Claim, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(TableClaims),
		IndexName:              aws.String(GSIClaimsPolicyID),
		KeyConditionExpression: aws.String("policy_id = :policy_id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":policy_id": &types.AttributeValueMemberS{Value: policyID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claims.query: %w", err)
	}

	var items []ClaimItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("claims.unmarshal: %w", err)
	}
	sort.Slice(items, func(a, b int) bool { return items[a].CreatedAt < items[b].CreatedAt })

	claims := make([]core.Claim, len(items))
	for i, item := range items {
		claims[i] = item.ToCore()
	}
	return claims, nil
}

func (r *ClaimRepo) Resolve(ctx context.Context, id string, to core.ClaimStatus, at time.Time) (core.Claim, error) {
	update := expression.
		Set(expression.Name("status"), expression.Value(string(to))).
		Set(expression.Name("resolved_at"), expression.Value(formatTime(at)))
	return r.conditionalUpdate(ctx, id, core.ClaimStatusPending, update)
}

func (r *ClaimRepo) Reopen(ctx context.Context, id string, from core.ClaimStatus) (core.Claim, error) {
	update := expression.
		Set(expression.Name("status"), expression.Value(string(core.ClaimStatusPending))).
		Remove(expression.Name("resolved_at"))
	return r.conditionalUpdate(ctx, id, from, update)
}

// conditionalUpdate applies update only while the stored status is from.
func (r *ClaimRepo) conditionalUpdate(ctx context.Context, id string, from core.ClaimStatus, update expression.UpdateBuilder) (core.Claim, error) {
	cond := expression.Name("status").Equal(expression.Value(string(from)))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return core.Claim{}, fmt.Errorf("claims.buildExpr: %w", err)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(TableClaims),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:                    expr.Update(),
		ConditionExpression:                 expr.Condition(),
		ExpressionAttributeNames:            expr.Names(),
		ExpressionAttributeValues:           expr.Values(),
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if ccf.Item == nil {
				return core.Claim{}, core.ErrClaimNotFound
			}
			return core.Claim{}, fmt.Errorf("%w: claim %s is no longer %s", core.ErrStatusConflict, id, from)
		}
		return core.Claim{}, fmt.Errorf("claims.updateItem: %w", err)
	}

	var item ClaimItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return core.Claim{}, fmt.Errorf("claims.unmarshal: %w", err)
	}
	return item.ToCore(), nil
}
