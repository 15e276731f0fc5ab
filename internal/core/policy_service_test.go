package core_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/internal/store/memory"
)

const (
	owner  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	txHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
)

func application() core.PolicyApplication {
	start := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	return core.PolicyApplication{
		OwnerAddress:      owner,
		PlanType:          core.PlanFlightDelay,
		Identifier:        "6E-2134",
		CoverageAmount:    0.25,
		UnitCount:         2,
		Premium:           0.07,
		TotalPremium:      0.15,
		CoverageStartDate: start,
		CoverageEndDate:   start.Add(24 * time.Hour),
	}
}

type stubVerifier struct {
	calls int
	err   error
}

func (v *stubVerifier) VerifyPayment(context.Context, string, core.Policy) error {
	v.calls++
	return v.err
}

func newPolicyService(t *testing.T, v core.PaymentVerifier) (core.PolicyService, *memory.PolicyRepo) {
	t.Helper()
	repo := memory.NewPolicyRepo()
	return core.NewPolicyService(repo, v), repo
}

func TestPolicyService_SubmitStartsPending(t *testing.T) {
	svc, _ := newPolicyService(t, nil)

	p, err := svc.Submit(context.Background(), application())
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, core.PolicyStatusPendingPayment, p.Status)
	assert.False(t, p.SubmittedAt.IsZero())
	assert.Nil(t, p.PaidAt)

	got, err := svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPolicyService_SubmitValidation(t *testing.T) {
	svc, _ := newPolicyService(t, nil)

	mutations := map[string]func(*core.PolicyApplication){
		"bad owner":        func(a *core.PolicyApplication) { a.OwnerAddress = "0x123" },
		"bad plan":         func(a *core.PolicyApplication) { a.PlanType = "hail" },
		"no identifier":    func(a *core.PolicyApplication) { a.Identifier = "" },
		"zero coverage":    func(a *core.PolicyApplication) { a.CoverageAmount = 0 },
		"zero units":       func(a *core.PolicyApplication) { a.UnitCount = 0 },
		"negative total":   func(a *core.PolicyApplication) { a.TotalPremium = -1 },
		"NaN coverage":     func(a *core.PolicyApplication) { a.CoverageAmount = math.NaN() },
		"infinite total":   func(a *core.PolicyApplication) { a.TotalPremium = math.Inf(1) },
		"huge coverage":    func(a *core.PolicyApplication) { a.CoverageAmount = 1e300 },
		"huge total":       func(a *core.PolicyApplication) { a.TotalPremium = 1e300 },
		"too many units":   func(a *core.PolicyApplication) { a.UnitCount = core.MaxUnitCount + 1 },
		"end before start": func(a *core.PolicyApplication) { a.CoverageEndDate = a.CoverageStartDate.Add(-time.Hour) },
	}
	for name, mutate := range mutations {
		in := application()
		mutate(&in)
		_, err := svc.Submit(context.Background(), in)
		assert.ErrorIs(t, err, core.ErrValidation, name)
	}
}

func TestPolicyService_ConfirmPaymentIsIdempotent(t *testing.T) {
	v := &stubVerifier{}
	svc, _ := newPolicyService(t, v)
	ctx := context.Background()

	p, err := svc.Submit(ctx, application())
	require.NoError(t, err)

	active, err := svc.ConfirmPayment(ctx, p.ID, txHash)
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusActive, active.Status)
	assert.Equal(t, txHash, active.SettlementTxHash)
	require.NotNil(t, active.PaidAt)

	again, err := svc.ConfirmPayment(ctx, p.ID, txHash)
	require.NoError(t, err)
	assert.Equal(t, active, again)
	assert.Equal(t, 1, v.calls, "an active policy is not re-verified")
}

func TestPolicyService_ConfirmPaymentRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed hash", func(t *testing.T) {
		svc, _ := newPolicyService(t, nil)
		p, err := svc.Submit(ctx, application())
		require.NoError(t, err)

		_, err = svc.ConfirmPayment(ctx, p.ID, "0xdeadbeef")
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("unknown policy", func(t *testing.T) {
		svc, _ := newPolicyService(t, nil)
		_, err := svc.ConfirmPayment(ctx, "missing", txHash)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("verifier refuses", func(t *testing.T) {
		refused := errors.New("tx reverted")
		svc, _ := newPolicyService(t, &stubVerifier{err: refused})
		p, err := svc.Submit(ctx, application())
		require.NoError(t, err)

		_, err = svc.ConfirmPayment(ctx, p.ID, txHash)
		assert.ErrorIs(t, err, refused)

		got, err := svc.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, core.PolicyStatusPendingPayment, got.Status)
	})

	t.Run("expired policy", func(t *testing.T) {
		svc, _ := newPolicyService(t, nil)
		p, err := svc.Submit(ctx, application())
		require.NoError(t, err)
		_, err = svc.Expire(ctx, p.ID)
		require.NoError(t, err)

		_, err = svc.ConfirmPayment(ctx, p.ID, txHash)
		assert.ErrorIs(t, err, core.ErrInvalidTransition)
	})
}

func TestPolicyService_SettlementTxPaysForOnePolicy(t *testing.T) {
	svc, _ := newPolicyService(t, nil)
	ctx := context.Background()

	first, err := svc.Submit(ctx, application())
	require.NoError(t, err)
	second, err := svc.Submit(ctx, application())
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, first.ID, txHash)
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(ctx, second.ID, txHash)
	assert.ErrorIs(t, err, core.ErrSettlementTxUsed)
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = svc.ConfirmPayment(ctx, second.ID, "0x"+strings.ToUpper(txHash[2:]))
	assert.ErrorIs(t, err, core.ErrSettlementTxUsed, "hash case does not matter")

	got, err := svc.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusPendingPayment, got.Status)

	// the first policy can still be confirmed again with its own hash
	again, err := svc.ConfirmPayment(ctx, first.ID, txHash)
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusActive, again.Status)
}

func TestPolicyService_TerminalStatesAreFinal(t *testing.T) {
	svc, _ := newPolicyService(t, nil)
	ctx := context.Background()

	p, err := svc.Submit(ctx, application())
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, p.ID, txHash)
	require.NoError(t, err)

	claimed, err := svc.MarkClaimed(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusClaimed, claimed.Status)
	require.NotNil(t, claimed.ClosedAt)

	_, err = svc.Expire(ctx, p.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	_, err = svc.MarkClaimed(ctx, p.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestPolicyService_MarkClaimedRequiresActive(t *testing.T) {
	svc, _ := newPolicyService(t, nil)
	ctx := context.Background()

	p, err := svc.Submit(ctx, application())
	require.NoError(t, err)

	_, err = svc.MarkClaimed(ctx, p.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestPolicyService_ExpireUnpaidOnlyTouchesPending(t *testing.T) {
	svc, _ := newPolicyService(t, nil)
	ctx := context.Background()

	p, err := svc.Submit(ctx, application())
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(ctx, p.ID, txHash)
	require.NoError(t, err)

	_, err = svc.ExpireUnpaid(ctx, p.ID, time.Now())
	assert.ErrorIs(t, err, core.ErrStatusConflict)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusActive, got.Status)
}

func TestPolicyService_ExpireUnpaidStampsGivenTime(t *testing.T) {
	svc, _ := newPolicyService(t, nil)
	ctx := context.Background()

	p, err := svc.Submit(ctx, application())
	require.NoError(t, err)

	at := time.Date(2026, 10, 19, 3, 0, 0, 0, time.FixedZone("IST", 19800))
	expired, err := svc.ExpireUnpaid(ctx, p.ID, at)
	require.NoError(t, err)
	require.NotNil(t, expired.ClosedAt)
	assert.Equal(t, at.UTC(), *expired.ClosedAt)
	assert.Equal(t, core.PolicyStatusExpired, expired.Status)
}

func TestPolicyService_List(t *testing.T) {
	svc, _ := newPolicyService(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, application())
		require.NoError(t, err)
	}
	other := application()
	other.OwnerAddress = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	_, err := svc.Submit(ctx, other)
	require.NoError(t, err)

	items, total, err := svc.List(ctx, core.PolicyFilter{OwnerAddress: owner}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 2)

	_, _, err = svc.List(ctx, core.PolicyFilter{Status: "lapsed"}, 10, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestPolicyStatus_CanTransitionTo(t *testing.T) {
	all := []core.PolicyStatus{
		core.PolicyStatusPendingPayment, core.PolicyStatusActive,
		core.PolicyStatusExpired, core.PolicyStatusClaimed,
	}
	allowed := map[[2]core.PolicyStatus]bool{
		{core.PolicyStatusPendingPayment, core.PolicyStatusActive}:  true,
		{core.PolicyStatusPendingPayment, core.PolicyStatusExpired}: true,
		{core.PolicyStatusActive, core.PolicyStatusClaimed}:         true,
		{core.PolicyStatusActive, core.PolicyStatusExpired}:         true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]core.PolicyStatus{from, to}], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}
