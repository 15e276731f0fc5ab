package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKriegler/go-parametric/internal/core"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return sqlx.NewDb(db, "sqlmock"), mock
}

func policyColumnNames() []string {
	cols := strings.Split(policyColumns, ",")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}

var (
	submitted = time.Date(2026, 10, 13, 9, 0, 0, 0, time.UTC)
	eventDay  = time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC)
)

func policyRowValues(id, status string, paidAt, closedAt *time.Time) []driver.Value {
	var paid, closed driver.Value
	if paidAt != nil {
		paid = *paidAt
	}
	if closedAt != nil {
		closed = *closedAt
	}
	return []driver.Value{
		id, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "flight_delay", "6E-2134", 0.25, 2,
		0.07, 0.15, status, eventDay, eventDay.Add(24 * time.Hour),
		submitted, submitted, "", "", paid, closed,
	}
}

func TestPolicyRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPolicyRepo(db)

	rows := sqlmock.NewRows(policyColumnNames()).AddRow(policyRowValues("p-1", "pending_payment", nil, nil)...)
	mock.ExpectQuery(regexp.QuoteMeta("FROM policies WHERE id = $1")).WithArgs("p-1").WillReturnRows(rows)

	p, err := repo.Get(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, core.PolicyStatusPendingPayment, p.Status)
	assert.Equal(t, 2, p.UnitCount)
	assert.Nil(t, p.PaidAt)
	assert.Equal(t, submitted, p.SubmittedAt)
}

func TestPolicyRepo_GetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPolicyRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM policies WHERE id = $1")).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrPolicyNotFound)
}

func TestPolicyRepo_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPolicyRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO policies")).WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), core.Policy{ID: "p-1", Status: core.PolicyStatusPendingPayment})
	assert.ErrorIs(t, err, core.ErrPolicyExists)
}

func TestPolicyRepo_TransitionStatus(t *testing.T) {
	at := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	tx := "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

	t.Run("applied", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPolicyRepo(db)

		row := policyRowValues("p-1", "active", &at, nil)
		row[14] = tx
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE policies")).
			WithArgs("active", at, at, tx, nil, "p-1", "pending_payment").
			WillReturnRows(sqlmock.NewRows(policyColumnNames()).AddRow(row...))

		p, err := repo.TransitionStatus(context.Background(), "p-1", core.StatusChange{
			From: core.PolicyStatusPendingPayment, To: core.PolicyStatusActive, At: at, SettlementTxHash: tx,
		})
		require.NoError(t, err)
		assert.Equal(t, core.PolicyStatusActive, p.Status)
		assert.Equal(t, tx, p.SettlementTxHash)
		require.NotNil(t, p.PaidAt)
	})

	t.Run("settlement tx already used", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPolicyRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE policies")).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "policies_settlement_tx_hash"})

		_, err := repo.TransitionStatus(context.Background(), "p-2", core.StatusChange{
			From: core.PolicyStatusPendingPayment, To: core.PolicyStatusActive, At: at, SettlementTxHash: tx,
		})
		assert.ErrorIs(t, err, core.ErrSettlementTxUsed)
	})

	t.Run("status moved on", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPolicyRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE policies")).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := repo.TransitionStatus(context.Background(), "p-1", core.StatusChange{
			From: core.PolicyStatusPendingPayment, To: core.PolicyStatusExpired, At: at,
		})
		assert.ErrorIs(t, err, core.ErrStatusConflict)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPolicyRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE policies")).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.TransitionStatus(context.Background(), "p-1", core.StatusChange{
			From: core.PolicyStatusPendingPayment, To: core.PolicyStatusExpired, At: at,
		})
		assert.ErrorIs(t, err, core.ErrPolicyNotFound)
	})
}

func TestPolicyRepo_FindExpirable(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPolicyRepo(db)

	now := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	cutoff := now.Add(-120 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND (submitted_at < $2 OR coverage_start_date < $3)")).
		WithArgs("pending_payment", cutoff, now, 50).
		WillReturnRows(sqlmock.NewRows(policyColumnNames()).
			AddRow(policyRowValues("p-1", "pending_payment", nil, nil)...).
			AddRow(policyRowValues("p-2", "pending_payment", nil, nil)...))

	out, err := repo.FindExpirable(context.Background(), cutoff, now, 50)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "p-2", out[1].ID)
}

func TestPolicyRepo_ListBuildsFilter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPolicyRepo(db)

	owner := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM policies WHERE 1=1 AND owner_address = $1 AND status = $2")).
		WithArgs(owner, "active").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY submitted_at DESC LIMIT $3 OFFSET $4")).
		WithArgs(owner, "active", 20, 0).
		WillReturnRows(sqlmock.NewRows(policyColumnNames()).AddRow(policyRowValues("p-1", "active", &submitted, nil)...))

	items, total, err := repo.List(context.Background(), core.PolicyFilter{OwnerAddress: owner, Status: core.PolicyStatusActive}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, items, 1)
}

func TestClaimRepo_Resolve(t *testing.T) {
	at := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	claimCols := []string{"id", "policy_id", "claim_amount", "status", "created_at", "resolved_at"}

	t.Run("pending claim", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewClaimRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE claims")).
			WithArgs("approved", at, "c-1", "pending").
			WillReturnRows(sqlmock.NewRows(claimCols).AddRow("c-1", "p-1", 0.25, "approved", submitted, at))

		c, err := repo.Resolve(context.Background(), "c-1", core.ClaimStatusApproved, at)
		require.NoError(t, err)
		assert.Equal(t, core.ClaimStatusApproved, c.Status)
		require.NotNil(t, c.ResolvedAt)
	})

	t.Run("already resolved", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewClaimRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE claims")).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := repo.Resolve(context.Background(), "c-1", core.ClaimStatusApproved, at)
		assert.ErrorIs(t, err, core.ErrStatusConflict)
	})

	t.Run("missing", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewClaimRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("UPDATE claims")).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.Resolve(context.Background(), "c-1", core.ClaimStatusRejected, at)
		assert.ErrorIs(t, err, core.ErrClaimNotFound)
	})
}

func TestClaimRepo_Reopen(t *testing.T) {
	claimCols := []string{"id", "policy_id", "claim_amount", "status", "created_at", "resolved_at"}

	t.Run("approved claim", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewClaimRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("SET status = $1, resolved_at = NULL")).
			WithArgs("pending", "c-1", "approved").
			WillReturnRows(sqlmock.NewRows(claimCols).AddRow("c-1", "p-1", 0.25, "pending", submitted, nil))

		c, err := repo.Reopen(context.Background(), "c-1", core.ClaimStatusApproved)
		require.NoError(t, err)
		assert.Equal(t, core.ClaimStatusPending, c.Status)
		assert.Nil(t, c.ResolvedAt)
	})

	t.Run("no longer approved", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewClaimRepo(db)

		mock.ExpectQuery(regexp.QuoteMeta("SET status = $1, resolved_at = NULL")).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := repo.Reopen(context.Background(), "c-1", core.ClaimStatusApproved)
		assert.ErrorIs(t, err, core.ErrStatusConflict)
	})
}
