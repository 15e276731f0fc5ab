package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MrKriegler/go-parametric/internal/core"
)

const policyColumns = `id, owner_address, plan_type, identifier, coverage_amount, unit_count,
       premium, total_premium, status, coverage_start_date, coverage_end_date,
       submitted_at, updated_at, document_url, settlement_tx_hash, paid_at, closed_at`

type policyRow struct {
	ID                string     `db:"id"`
	OwnerAddress      string     `db:"owner_address"`
	PlanType          string     `db:"plan_type"`
	Identifier        string     `db:"identifier"`
	CoverageAmount    float64    `db:"coverage_amount"`
	UnitCount         int        `db:"unit_count"`
	Premium           float64    `db:"premium"`
	TotalPremium      float64    `db:"total_premium"`
	Status            string     `db:"status"`
	CoverageStartDate time.Time  `db:"coverage_start_date"`
	CoverageEndDate   time.Time  `db:"coverage_end_date"`
	SubmittedAt       time.Time  `db:"submitted_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
	DocumentURL       string     `db:"document_url"`
	SettlementTxHash  string     `db:"settlement_tx_hash"`
	PaidAt            *time.Time `db:"paid_at"`
	ClosedAt          *time.Time `db:"closed_at"`
}

func (r policyRow) toCore() core.Policy {
	return core.Policy{
		ID:                r.ID,
		OwnerAddress:      r.OwnerAddress,
		PlanType:          core.PlanType(r.PlanType),
		Identifier:        r.Identifier,
		CoverageAmount:    r.CoverageAmount,
		UnitCount:         r.UnitCount,
		Premium:           r.Premium,
		TotalPremium:      r.TotalPremium,
		Status:            core.PolicyStatus(r.Status),
		CoverageStartDate: r.CoverageStartDate.UTC(),
		CoverageEndDate:   r.CoverageEndDate.UTC(),
		SubmittedAt:       r.SubmittedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
		DocumentURL:       r.DocumentURL,
		SettlementTxHash:  r.SettlementTxHash,
		PaidAt:            r.PaidAt,
		ClosedAt:          r.ClosedAt,
	}
}

type PolicyRepo struct {
	db *sqlx.DB
}

var _ core.PolicyRepo = (*PolicyRepo)(nil)

func NewPolicyRepo(db *sqlx.DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

func (r *PolicyRepo) Create(ctx context.Context, p core.Policy) error {
	query := `
		INSERT INTO policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.OwnerAddress, string(p.PlanType), p.Identifier, p.CoverageAmount, p.UnitCount,
		p.Premium, p.TotalPremium, string(p.Status), p.CoverageStartDate.UTC(), p.CoverageEndDate.UTC(),
		p.SubmittedAt.UTC(), p.UpdatedAt.UTC(), p.DocumentURL, p.SettlementTxHash, p.PaidAt, p.ClosedAt,
	)
	if err != nil {
		if isSettlementTxViolation(err) {
			return core.ErrSettlementTxUsed
		}
		if isUniqueViolation(err) {
			return core.ErrPolicyExists
		}
		return fmt.Errorf("policies.insert: %w", err)
	}
	return nil
}

func (r *PolicyRepo) Get(ctx context.Context, id string) (core.Policy, error) {
	var row policyRow
	query := `SELECT ` + policyColumns + ` FROM policies WHERE id = $1`

	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Policy{}, core.ErrPolicyNotFound
		}
		return core.Policy{}, fmt.Errorf("policies.get: %w", err)
	}
	return row.toCore(), nil
}

func (r *PolicyRepo) List(ctx context.Context, filter core.PolicyFilter, limit, offset int) ([]core.Policy, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.OwnerAddress != "" {
		where += fmt.Sprintf(" AND owner_address = $%d", argCount)
		args = append(args, filter.OwnerAddress)
		argCount++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(filter.Status))
		argCount++
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM policies`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("policies.count: %w", err)
	}

	query := `SELECT ` + policyColumns + ` FROM policies` + where +
		fmt.Sprintf(" ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, offset)

	var rows []policyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("policies.list: %w", err)
	}
	return toPolicies(rows), total, nil
}

// TransitionStatus updates only when the row still holds change.From.
func (r *PolicyRepo) TransitionStatus(ctx context.Context, id string, change core.StatusChange) (core.Policy, error) {
	at := change.At.UTC()
	var paidAt, closedAt *time.Time
	if change.To == core.PolicyStatusActive {
		paidAt = &at
	}
	if change.To.IsTerminal() {
		closedAt = &at
	}

	query := `
		UPDATE policies
		SET status = $1,
		    updated_at = $2,
		    paid_at = COALESCE($3, paid_at),
		    settlement_tx_hash = COALESCE(NULLIF($4, ''), settlement_tx_hash),
		    closed_at = COALESCE($5, closed_at)
		WHERE id = $6 AND status = $7
		RETURNING ` + policyColumns

	var row policyRow
	err := r.db.GetContext(ctx, &row, query,
		string(change.To), at, paidAt, change.SettlementTxHash, closedAt, id, string(change.From))
	if err == nil {
		return row.toCore(), nil
	}
	if isSettlementTxViolation(err) {
		return core.Policy{}, fmt.Errorf("%w: policy %s, tx %s", core.ErrSettlementTxUsed, id, change.SettlementTxHash)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Policy{}, fmt.Errorf("policies.transition: %w", err)
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM policies WHERE id = $1)`, id); err != nil {
		return core.Policy{}, fmt.Errorf("policies.exists: %w", err)
	}
	if !exists {
		return core.Policy{}, core.ErrPolicyNotFound
	}
	return core.Policy{}, fmt.Errorf("%w: policy %s is no longer %s", core.ErrStatusConflict, id, change.From)
}

func (r *PolicyRepo) FindExpirable(ctx context.Context, submittedBefore, eventBefore time.Time, limit int) ([]core.Policy, error) {
	query := `SELECT ` + policyColumns + `
		FROM policies
		WHERE status = $1 AND (submitted_at < $2 OR coverage_start_date < $3)
		ORDER BY submitted_at
		LIMIT $4`

	var rows []policyRow
	err := r.db.SelectContext(ctx, &rows, query,
		string(core.PolicyStatusPendingPayment), submittedBefore.UTC(), eventBefore.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("policies.findExpirable: %w", err)
	}
	return toPolicies(rows), nil
}

func toPolicies(rows []policyRow) []core.Policy {
	out := make([]core.Policy, len(rows))
	for i, row := range rows {
		out[i] = row.toCore()
	}
	return out
}
