package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS policies (
    id                  TEXT PRIMARY KEY,
    owner_address       TEXT NOT NULL,
    plan_type           TEXT NOT NULL,
    identifier          TEXT NOT NULL,
    coverage_amount     DOUBLE PRECISION NOT NULL,
    unit_count          INTEGER NOT NULL,
    premium             DOUBLE PRECISION NOT NULL,
    total_premium       DOUBLE PRECISION NOT NULL,
    status              TEXT NOT NULL,
    coverage_start_date TIMESTAMPTZ NOT NULL,
    coverage_end_date   TIMESTAMPTZ NOT NULL,
    submitted_at        TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL,
    document_url        TEXT NOT NULL DEFAULT '',
    settlement_tx_hash  TEXT NOT NULL DEFAULT '',
    paid_at             TIMESTAMPTZ,
    closed_at           TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS policies_owner_address ON policies (owner_address);
CREATE INDEX IF NOT EXISTS policies_pending_submitted ON policies (submitted_at) WHERE status = 'pending_payment';
CREATE INDEX IF NOT EXISTS policies_pending_coverage_start ON policies (coverage_start_date) WHERE status = 'pending_payment';
CREATE UNIQUE INDEX IF NOT EXISTS policies_settlement_tx_hash ON policies (settlement_tx_hash) WHERE settlement_tx_hash <> '';

CREATE TABLE IF NOT EXISTS claims (
    id           TEXT PRIMARY KEY,
    policy_id    TEXT NOT NULL REFERENCES policies (id),
    claim_amount DOUBLE PRECISION NOT NULL,
    status       TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL,
    resolved_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS claims_policy_id ON claims (policy_id);
`

// Open connects and pings.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// EnsureSchema creates tables and indexes if they don't exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const settlementTxIndex = "policies_settlement_tx_hash"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isSettlementTxViolation(err error) bool {
	var pqErr *pq.Error
	return isUniqueViolation(err) && errors.As(err, &pqErr) && pqErr.Constraint == settlementTxIndex
}
