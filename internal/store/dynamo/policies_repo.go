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

// Times are stored as RFC3339 UTC strings so that string comparison in
// key and filter expressions matches chronological order.
type PolicyItem struct {
	ID                string  `dynamodbav:"id"`
	OwnerAddress      string  `dynamodbav:"owner_address"`
	PlanType          string  `dynamodbav:"plan_type"`
	Identifier        string  `dynamodbav:"identifier"`
	CoverageAmount    float64 `dynamodbav:"coverage_amount"`
	UnitCount         int     `dynamodbav:"unit_count"`
	Premium           float64 `dynamodbav:"premium"`
	TotalPremium      float64 `dynamodbav:"total_premium"`
	Status            string  `dynamodbav:"status"`
	CoverageStartDate string  `dynamodbav:"coverage_start_date"`
	CoverageEndDate   string  `dynamodbav:"coverage_end_date"`
	SubmittedAt       string  `dynamodbav:"submitted_at"`
	UpdatedAt         string  `dynamodbav:"updated_at"`
	DocumentURL       string  `dynamodbav:"document_url,omitempty"`
	SettlementTxHash  string  `dynamodbav:"settlement_tx_hash,omitempty"`
	PaidAt            string  `dynamodbav:"paid_at,omitempty"`
	ClosedAt          string  `dynamodbav:"closed_at,omitempty"`
}

func (i PolicyItem) ToCore() core.Policy {
	return core.Policy{
		ID:                i.ID,
		OwnerAddress:      i.OwnerAddress,
		PlanType:          core.PlanType(i.PlanType),
		Identifier:        i.Identifier,
		CoverageAmount:    i.CoverageAmount,
		UnitCount:         i.UnitCount,
		Premium:           i.Premium,
		TotalPremium:      i.TotalPremium,
		Status:            core.PolicyStatus(i.Status),
		CoverageStartDate: parseTime(i.CoverageStartDate),
		CoverageEndDate:   parseTime(i.CoverageEndDate),
		SubmittedAt:       parseTime(i.SubmittedAt),
		UpdatedAt:         parseTime(i.UpdatedAt),
		DocumentURL:       i.DocumentURL,
		SettlementTxHash:  i.SettlementTxHash,
		PaidAt:            parseTimePtr(i.PaidAt),
		ClosedAt:          parseTimePtr(i.ClosedAt),
	}
}

func policyItemFromCore(p core.Policy) PolicyItem {
	return PolicyItem{
		ID:                p.ID,
		OwnerAddress:      p.OwnerAddress,
		PlanType:          string(p.PlanType),
		Identifier:        p.Identifier,
		CoverageAmount:    p.CoverageAmount,
		UnitCount:         p.UnitCount,
		Premium:           p.Premium,
		TotalPremium:      p.TotalPremium,
		Status:            string(p.Status),
		CoverageStartDate: formatTime(p.CoverageStartDate),
		CoverageEndDate:   formatTime(p.CoverageEndDate),
		SubmittedAt:       formatTime(p.SubmittedAt),
		UpdatedAt:         formatTime(p.UpdatedAt),
		DocumentURL:       p.DocumentURL,
		SettlementTxHash:  p.SettlementTxHash,
		PaidAt:            formatTimePtr(p.PaidAt),
		ClosedAt:          formatTimePtr(p.ClosedAt),
	}
}

type PolicyRepo struct {
	client *dynamodb.Client
}

var _ core.PolicyRepo = (*PolicyRepo)(nil)

func NewPolicyRepo(client *dynamodb.Client) *PolicyRepo {
	return &PolicyRepo{client: client}
}

func (r *PolicyRepo) Create(ctx context.Context, policy core.Policy) error {
	item := policyItemFromCore(policy)
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("policies.marshal: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("id"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("policies.buildExpr: %w", err)
	}

	if policy.SettlementTxHash != "" {
		settlement, err := settlementPut(policy.SettlementTxHash, policy.ID)
		if err != nil {
			return err
		}
		_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: []types.TransactWriteItem{
				{Put: &types.Put{
					TableName:                 aws.String(TablePolicies),
					Item:                      av,
					ConditionExpression:       expr.Condition(),
					ExpressionAttributeNames:  expr.Names(),
					ExpressionAttributeValues: expr.Values(),
				}},
				settlement,
			},
		})
		if err != nil {
			return createError(err)
		}
		return nil
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(TablePolicies),
		Item:                      av,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return core.ErrPolicyExists
		}
		return fmt.Errorf("policies.putItem: %w", err)
	}

	return nil
}

func (r *PolicyRepo) Get(ctx context.Context, id string) (core.Policy, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(TablePolicies),
		Key:            policyKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return core.Policy{}, fmt.Errorf("policies.getItem: %w", err)
	}

	if out.Item == nil {
		return core.Policy{}, core.ErrPolicyNotFound
	}

	var item PolicyItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return core.Policy{}, fmt.Errorf("policies.unmarshal: %w", err)
	}

	return item.ToCore(), nil
}

func (r *PolicyRepo) List(ctx context.Context, filter core.PolicyFilter, limit, offset int) ([]core.Policy, int64, error) {
	var items []PolicyItem
	var err error

	// Owner lookups use the owner index; everything else scans
	if filter.OwnerAddress != "" {
		items, err = r.queryByOwner(ctx, filter)
	} else {
		items, err = r.scan(ctx, filter)
	}
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(items, func(a, b int) bool { return items[a].SubmittedAt > items[b].SubmittedAt })
	total := int64(len(items))

	// Apply offset and limit manually (DynamoDB pagination is different)
	if offset >= len(items) {
		return []core.Policy{}, total, nil
	}
	end := min(offset+limit, len(items))
	items = items[offset:end]

	policies := make([]core.Policy, len(items))
	for i, item := range items {
		policies[i] = item.ToCore()
	}
	return policies, total, nil
}

func (r *PolicyRepo) queryByOwner(ctx context.Context, filter core.PolicyFilter) ([]PolicyItem, error) {
	builder := expression.NewBuilder().
		WithKeyCondition(expression.Key("owner_address").Equal(expression.Value(filter.OwnerAddress)))
	if filter.Status != "" {
		builder = builder.WithFilter(expression.Name("status").Equal(expression.Value(string(filter.Status))))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("policies.buildExpr: %w", err)
	}

	return r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(TablePolicies),
		IndexName:                 aws.String(GSIPoliciesOwner),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, 0)
}

func (r *PolicyRepo) scan(ctx context.Context, filter core.PolicyFilter) ([]PolicyItem, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(TablePolicies)}
	if filter.Status != "" {
		expr, err := expression.NewBuilder().
			WithFilter(expression.Name("status").Equal(expression.Value(string(filter.Status)))).
			Build()
		if err != nil {
			return nil, fmt.Errorf("policies.buildExpr: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	var items []PolicyItem
	p := dynamodb.NewScanPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("policies.scan: %w", err)
		}
		var page []PolicyItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("policies.unmarshal: %w", err)
		}
		items = append(items, page...)
	}
	return items, nil
}

// TransitionStatus is a conditional update on status. On a failed
// condition the old item is returned so a missing record can be told apart
// from a status mismatch. A transition that records a settlement tx also
// claims the hash in the settlements table within the same transaction.
func (r *PolicyRepo) TransitionStatus(ctx context.Context, id string, change core.StatusChange) (core.Policy, error) {
	at := formatTime(change.At)
	update := expression.
		Set(expression.Name("status"), expression.Value(string(change.To))).
		Set(expression.Name("updated_at"), expression.Value(at))
	if change.To == core.PolicyStatusActive {
		update = update.Set(expression.Name("paid_at"), expression.Value(at))
		if change.SettlementTxHash != "" {
			update = update.Set(expression.Name("settlement_tx_hash"), expression.Value(change.SettlementTxHash))
		}
	}
	if change.To.IsTerminal() {
		update = update.Set(expression.Name("closed_at"), expression.Value(at))
	}
	cond := expression.Name("status").Equal(expression.Value(string(change.From)))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return core.Policy{}, fmt.Errorf("policies.buildExpr: %w", err)
	}

	if change.To == core.PolicyStatusActive && change.SettlementTxHash != "" {
		return r.transitionWithSettlement(ctx, id, change, expr)
	}

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(TablePolicies),
		Key:                                 policyKey(id),
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
				return core.Policy{}, core.ErrPolicyNotFound
			}
			return core.Policy{}, fmt.Errorf("%w: policy %s is no longer %s", core.ErrStatusConflict, id, change.From)
		}
		return core.Policy{}, fmt.Errorf("policies.updateItem: %w", err)
	}

	var item PolicyItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return core.Policy{}, fmt.Errorf("policies.unmarshal: %w", err)
	}
	return item.ToCore(), nil
}

func (r *PolicyRepo) transitionWithSettlement(ctx context.Context, id string, change core.StatusChange, expr expression.Expression) (core.Policy, error) {
	settlement, err := settlementPut(change.SettlementTxHash, id)
	if err != nil {
		return core.Policy{}, err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                           aws.String(TablePolicies),
				Key:                                 policyKey(id),
				UpdateExpression:                    expr.Update(),
				ConditionExpression:                 expr.Condition(),
				ExpressionAttributeNames:            expr.Names(),
				ExpressionAttributeValues:           expr.Values(),
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			}},
			settlement,
		},
	})
	if err != nil {
		return core.Policy{}, transitionError(err, id, change.From)
	}
	return r.Get(ctx, id)
}

func policyKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

// settlementPut claims txHash for policyID. Writing the same pair again
// succeeds so a repeated confirmation stays idempotent.
func settlementPut(txHash, policyID string) (types.TransactWriteItem, error) {
	cond := expression.AttributeNotExists(expression.Name("id")).
		Or(expression.Name("policy_id").Equal(expression.Value(policyID)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("settlements.buildExpr: %w", err)
	}

	return types.TransactWriteItem{Put: &types.Put{
		TableName: aws.String(TableSettlements),
		Item: map[string]types.AttributeValue{
			"id":        &types.AttributeValueMemberS{Value: txHash},
			"policy_id": &types.AttributeValueMemberS{Value: policyID},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}}, nil
}

// failedCondition returns the position of the first transaction item whose
// condition check failed. Cancellation reasons follow the order of
// TransactItems.
func failedCondition(err error) (int, types.CancellationReason, bool) {
	var canceled *types.TransactionCanceledException
	if !errors.As(err, &canceled) {
		return -1, types.CancellationReason{}, false
	}
	for i, reason := range canceled.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return i, reason, true
		}
	}
	return -1, types.CancellationReason{}, false
}

// transitionError maps a cancelled policy update plus settlement put.
func transitionError(err error, id string, from core.PolicyStatus) error {
	idx, reason, ok := failedCondition(err)
	switch {
	case !ok:
		return fmt.Errorf("policies.transactWrite: %w", err)
	case idx == 0 && reason.Item == nil:
		return core.ErrPolicyNotFound
	case idx == 0:
		return fmt.Errorf("%w: policy %s is no longer %s", core.ErrStatusConflict, id, from)
	default:
		return core.ErrSettlementTxUsed
	}
}

// createError maps a cancelled policy put plus settlement put.
func createError(err error) error {
	idx, _, ok := failedCondition(err)
	switch {
	case !ok:
		return fmt.Errorf("policies.transactWrite: %w", err)
	case idx == 0:
		return core.ErrPolicyExists
	default:
		return core.ErrSettlementTxUsed
	}
}

// FindExpirable reads the pending partition of the status index once,
// filtering on both cutoffs in the same expression.
func (r *PolicyRepo) FindExpirable(ctx context.Context, submittedBefore, eventBefore time.Time, limit int) ([]core.Policy, error) {
	keyCond := expression.Key("status").Equal(expression.Value(string(core.PolicyStatusPendingPayment)))
	filter := expression.Or(
		expression.Name("submitted_at").LessThan(expression.Value(formatTime(submittedBefore))),
		expression.Name("coverage_start_date").LessThan(expression.Value(formatTime(eventBefore))),
	)
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("policies.buildExpr: %w", err)
	}

	items, err := r.queryAll(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(TablePolicies),
		IndexName:                 aws.String(GSIPoliciesStatus),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, limit)
	if err != nil {
		return nil, err
	}

	policies := make([]core.Policy, len(items))
	for i, item := range items {
		policies[i] = item.ToCore()
	}
	return policies, nil
}

// queryAll follows pages until limit items matched the filter, or the
// index is exhausted when limit is 0.
func (r *PolicyRepo) queryAll(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]PolicyItem, error) {
	var items []PolicyItem
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("policies.query: %w", err)
		}
		var page []PolicyItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("policies.unmarshal: %w", err)
		}
		items = append(items, page...)
		if limit > 0 && len(items) >= limit {
			return items[:limit], nil
		}
	}
	return items, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := parseTime(s)
	return &t
}
