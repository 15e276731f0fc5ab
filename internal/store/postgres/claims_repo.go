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

type claimRow struct {
	ID          string     `db:"id"`
	PolicyID    string     `db:"policy_id"`
	ClaimAmount float64    `db:"claim_amount"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at"`
}

func (r claimRow) toCore() core.Claim {
	return core.Claim{
		ID:          r.ID,
		PolicyID:    r.PolicyID,
		ClaimAmount: r.ClaimAmount,
		Status:      core.ClaimStatus(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		ResolvedAt:  r.ResolvedAt,
	}
}

type ClaimRepo struct {
	db *sqlx.DB
}

var _ core.ClaimRepo = (*ClaimRepo)(nil)

func NewClaimRepo(db *sqlx.DB) *ClaimRepo {
	return &ClaimRepo{db: db}
}

func (r *ClaimRepo) Create(ctx context.Context, c core.Claim) error {
	query := `
		INSERT INTO claims (id, policy_id, claim_amount, status, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.PolicyID, c.ClaimAmount, string(c.Status), c.CreatedAt.UTC(), c.ResolvedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: claim %s already exists", core.ErrConflict, c.ID)
		}
		return fmt.Errorf("claims.insert: %w", err)
	}
	return nil
}

func (r *ClaimRepo) Get(ctx context.Context, id string) (core.Claim, error) {
	var row claimRow
	query := `
		SELECT id, policy_id, claim_amount, status, created_at, resolved_at
		FROM claims
		WHERE id = $1`

	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Claim{}, core.ErrClaimNotFound
		}
		return core.Claim{}, fmt.Errorf("claims.get: %w", err)
	}
	return row.toCore(), nil
}

func (r *ClaimRepo) ListByPolicy(ctx context.Context, policyID string) ([]core.Claim, error) {
	var rows []claimRow
	query := `
		SELECT id, policy_id, claim_amount, status, created_at, resolved_at
		FROM claims
		WHERE policy_id = $1
		ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &rows, query, policyID); err != nil {
		return nil, fmt.Errorf("claims.list: %w", err)
	}
	claims := make([]core.Claim, len(rows))
	for i, row := range rows {
		claims[i] = row.toCore()
	}
	return claims, nil
}

func (r *ClaimRepo) Resolve(ctx context.Context, id string, to core.ClaimStatus, at time.Time) (core.Claim, error) {
	query := `
		UPDATE claims
		SET status = $1, resolved_at = $2
		WHERE id = $3 AND status = $4
		RETURNING id, policy_id, claim_amount, status, created_at, resolved_at`

	var row claimRow
	err := r.db.GetContext(ctx, &row, query, string(to), at.UTC(), id, string(core.ClaimStatusPending))
	if err == nil {
		return row.toCore(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Claim{}, fmt.Errorf("claims.resolve: %w", err)
	}
	return core.Claim{}, r.missingOrConflict(ctx, id, core.ClaimStatusPending)
}

func (r *ClaimRepo) Reopen(ctx context.Context, id string, from core.ClaimStatus) (core.Claim, error) {
	query := `
		UPDATE claims
		SET status = $1, resolved_at = NULL
		WHERE id = $2 AND status = $3
		RETURNING id, policy_id, claim_amount, status, created_at, resolved_at`

	var row claimRow
	err := r.db.GetContext(ctx, &row, query, string(core.ClaimStatusPending), id, string(from))
	if err == nil {
		return row.toCore(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.Claim{}, fmt.Errorf("claims.reopen: %w", err)
	}
	return core.Claim{}, r.missingOrConflict(ctx, id, from)
}

func (r *ClaimRepo) missingOrConflict(ctx context.Context, id string, want core.ClaimStatus) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("claims.exists: %w", err)
	}
	if !exists {
		return core.ErrClaimNotFound
	}
	return fmt.Errorf("%w: claim %s is no longer %s", core.ErrStatusConflict, id, want)
}
