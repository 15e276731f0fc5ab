package core_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/internal/store/memory"
)

type claimFixture struct {
	policies core.PolicyService
	claims   core.ClaimService
}

func newClaimFixture() claimFixture {
	policies := core.NewPolicyService(memory.NewPolicyRepo(), nil)
	return claimFixture{
		policies: policies,
		claims:   core.NewClaimService(memory.NewClaimRepo(), policies),
	}
}

func (f claimFixture) activePolicy(t *testing.T) core.Policy {
	t.Helper()
	ctx := context.Background()
	p, err := f.policies.Submit(ctx, application())
	require.NoError(t, err)
	p, err = f.policies.ConfirmPayment(ctx, p.ID, txHash)
	require.NoError(t, err)
	return p
}

func TestClaimService_FileOnPendingPolicy(t *testing.T) {
	f := newClaimFixture()
	ctx := context.Background()

	p, err := f.policies.Submit(ctx, application())
	require.NoError(t, err)

	_, err = f.claims.FileClaim(ctx, p.ID, 0.25)
	assert.ErrorIs(t, err, core.ErrInvalidPolicyState)
}

func TestClaimService_FileValidation(t *testing.T) {
	f := newClaimFixture()
	ctx := context.Background()
	p := f.activePolicy(t)

	_, err := f.claims.FileClaim(ctx, p.ID, 0)
	assert.ErrorIs(t, err, core.ErrValidation)

	// covered amount is coverage times units
	_, err = f.claims.FileClaim(ctx, p.ID, 0.51)
	assert.ErrorIs(t, err, core.ErrValidation)

	c, err := f.claims.FileClaim(ctx, p.ID, 0.5)
	require.NoError(t, err)
	assert.Equal(t, core.ClaimStatusPending, c.Status)

	_, err = f.claims.FileClaim(ctx, "missing", 0.1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestClaimService_ApproveClosesPolicy(t *testing.T) {
	f := newClaimFixture()
	ctx := context.Background()
	p := f.activePolicy(t)

	c, err := f.claims.FileClaim(ctx, p.ID, 0.25)
	require.NoError(t, err)

	approved, err := f.claims.Resolve(ctx, c.ID, core.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, core.ClaimStatusApproved, approved.Status)
	require.NotNil(t, approved.ResolvedAt)

	got, err := f.policies.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusClaimed, got.Status)

	_, err = f.claims.Approve(ctx, c.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition, "second approval fails")
	_, err = f.claims.Reject(ctx, c.ID)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestClaimService_RejectLeavesPolicyActive(t *testing.T) {
	f := newClaimFixture()
	ctx := context.Background()
	p := f.activePolicy(t)

	c, err := f.claims.FileClaim(ctx, p.ID, 0.25)
	require.NoError(t, err)

	rejected, err := f.claims.Resolve(ctx, c.ID, core.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, core.ClaimStatusRejected, rejected.Status)

	got, err := f.policies.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusActive, got.Status)

	list, err := f.claims.ListByPolicy(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClaimService_SecondClaimAfterPayoutFails(t *testing.T) {
	f := newClaimFixture()
	ctx := context.Background()
	p := f.activePolicy(t)

	first, err := f.claims.FileClaim(ctx, p.ID, 0.25)
	require.NoError(t, err)
	second, err := f.claims.FileClaim(ctx, p.ID, 0.25)
	require.NoError(t, err)

	_, err = f.claims.Approve(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.claims.Approve(ctx, second.ID)
	assert.ErrorIs(t, err, core.ErrInvalidPolicyState)
}

func TestClaimService_ConcurrentApprovalsResolveOnce(t *testing.T) {
	f := newClaimFixture()
	ctx := context.Background()
	p := f.activePolicy(t)

	c, err := f.claims.FileClaim(ctx, p.ID, 0.25)
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.claims.Approve(ctx, c.ID); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}

// racingPolicies holds every Get until `arrivals` callers have read the
// policy, so they all decide against the same active snapshot.
type racingPolicies struct {
	core.PolicyService
	arrived sync.WaitGroup
}

func (r *racingPolicies) Get(ctx context.Context, id string) (core.Policy, error) {
	p, err := r.PolicyService.Get(ctx, id)
	r.arrived.Done()
	r.arrived.Wait()
	return p, err
}

func TestClaimService_ConcurrentApprovalsOfDistinctClaimsPayOnce(t *testing.T) {
	policies := core.NewPolicyService(memory.NewPolicyRepo(), nil)
	claimRepo := memory.NewClaimRepo()
	f := claimFixture{policies: policies, claims: core.NewClaimService(claimRepo, policies)}
	ctx := context.Background()
	p := f.activePolicy(t)

	a, err := f.claims.FileClaim(ctx, p.ID, 0.25)
	require.NoError(t, err)
	b, err := f.claims.FileClaim(ctx, p.ID, 0.25)
	require.NoError(t, err)

	racing := &racingPolicies{PolicyService: policies}
	racing.arrived.Add(2)
	svc := core.NewClaimService(claimRepo, racing)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a.ID, b.ID} {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Approve(ctx, id)
		}()
	}
	wg.Wait()

	var approved, pending, failed int
	for i, id := range []string{a.ID, b.ID} {
		c, err := claimRepo.Get(ctx, id)
		require.NoError(t, err)
		switch c.Status {
		case core.ClaimStatusApproved:
			approved++
		case core.ClaimStatusPending:
			pending++
			assert.Nil(t, c.ResolvedAt)
		}
		if errs[i] != nil {
			failed++
			assert.ErrorIs(t, errs[i], core.ErrInvalidPolicyState)
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, failed)

	got, err := policies.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusClaimed, got.Status)
}

// expiringPolicies closes the policy right after the approver has read it.
type expiringPolicies struct {
	core.PolicyService
}

func (e expiringPolicies) Get(ctx context.Context, id string) (core.Policy, error) {
	p, err := e.PolicyService.Get(ctx, id)
	if err == nil {
		_, err = e.PolicyService.Expire(ctx, id)
	}
	return p, err
}

func TestClaimService_ApproveAfterConcurrentExpiryReopensClaim(t *testing.T) {
	policies := core.NewPolicyService(memory.NewPolicyRepo(), nil)
	claimRepo := memory.NewClaimRepo()
	f := claimFixture{policies: policies, claims: core.NewClaimService(claimRepo, policies)}
	ctx := context.Background()
	p := f.activePolicy(t)

	c, err := f.claims.FileClaim(ctx, p.ID, 0.25)
	require.NoError(t, err)

	svc := core.NewClaimService(claimRepo, expiringPolicies{PolicyService: policies})
	_, err = svc.Approve(ctx, c.ID)
	assert.ErrorIs(t, err, core.ErrInvalidPolicyState)

	got, err := claimRepo.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ClaimStatusPending, got.Status)
}

func TestDecision_Status(t *testing.T) {
	_, err := core.Decision("maybe").Status()
	assert.ErrorIs(t, err, core.ErrValidation)
}
