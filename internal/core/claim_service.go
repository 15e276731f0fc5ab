package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrKriegler/go-parametric/internal/platform/ids"
)

type ClaimService interface {
	// FileClaim opens a pending claim against an active policy.
	FileClaim(ctx context.Context, policyID string, amount float64) (Claim, error)

	// Approve resolves a pending claim and marks its policy claimed.
	// A second approval fails.
	Approve(ctx context.Context, claimID string) (Claim, error)

	// Reject resolves a pending claim without touching the policy.
	Reject(ctx context.Context, claimID string) (Claim, error)

	// Resolve dispatches to Approve or Reject.
	Resolve(ctx context.Context, claimID string, decision Decision) (Claim, error)

	Get(ctx context.Context, claimID string) (Claim, error)
	ListByPolicy(ctx context.Context, policyID string) ([]Claim, error)
}

type claimService struct {
	claims   ClaimRepo
	policies PolicyService
	clock    func() time.Time
}

func NewClaimService(claims ClaimRepo, policies PolicyService) ClaimService {
	return &claimService{
		claims:   claims,
		policies: policies,
		clock:    time.Now,
	}
}

func (s *claimService) FileClaim(ctx context.Context, policyID string, amount float64) (Claim, error) {
	// 1) Load policy
	policy, err := s.policies.Get(ctx, policyID)
	if err != nil {
		return Claim{}, err
	}

	// 2) Check preconditions
	if policy.Status != PolicyStatusActive {
		return Claim{}, fmt.Errorf("%w: policy %s is %s, claims require %s",
			ErrInvalidPolicyState, policy.ID, policy.Status, PolicyStatusActive)
	}
	if amount <= 0 {
		return Claim{}, fmt.Errorf("%w: claim_amount must be > 0", ErrValidation)
	}
	if amount > policy.CoverageAmount*float64(policy.UnitCount) {
		return Claim{}, fmt.Errorf("%w: claim_amount exceeds covered amount", ErrValidation)
	}

	// 3) Persist
	claim := Claim{
		ID:          ids.New(),
		PolicyID:    policy.ID,
		ClaimAmount: amount,
		Status:      ClaimStatusPending,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		return Claim{}, err
	}
	return claim, nil
}

func (s *claimService) Approve(ctx context.Context, claimID string) (Claim, error) {
	// 1) Load claim, it must still be pending
	claim, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return Claim{}, err
	}
	if claim.Status != ClaimStatusPending {
		return Claim{}, claimAlreadyResolved(claim, ClaimStatusApproved)
	}

	// 2) The policy must still be claimable
	policy, err := s.policies.Get(ctx, claim.PolicyID)
	if err != nil {
		return Claim{}, err
	}
	if policy.Status != PolicyStatusActive {
		return Claim{}, fmt.Errorf("%w: policy %s is %s, approval requires %s",
			ErrInvalidPolicyState, policy.ID, policy.Status, PolicyStatusActive)
	}

	// 3) Resolve the claim. A concurrent decision on the same claim loses here.
	resolved, err := s.resolve(ctx, claim, ClaimStatusApproved)
	if err != nil {
		return Claim{}, err
	}

	// 4) Close the policy. Its CAS admits exactly one payout, so an approval
	// that loses it is rolled back to pending.
	if _, err := s.policies.MarkClaimed(ctx, policy.ID); err != nil {
		if _, undoErr := s.claims.Reopen(ctx, resolved.ID, ClaimStatusApproved); undoErr != nil {
			return Claim{}, fmt.Errorf("claim %s approved but policy %s not marked claimed (%v), reopen failed: %w",
				resolved.ID, policy.ID, err, undoErr)
		}
		if errors.Is(err, ErrInvalidTransition) {
			return Claim{}, fmt.Errorf("%w: policy %s was closed before claim %s could be paid: %v",
				ErrInvalidPolicyState, policy.ID, resolved.ID, err)
		}
		return Claim{}, err
	}
	return resolved, nil
}

func (s *claimService) Reject(ctx context.Context, claimID string) (Claim, error) {
	claim, err := s.claims.Get(ctx, claimID)
	if err != nil {
		return Claim{}, err
	}
	if claim.Status != ClaimStatusPending {
		return Claim{}, claimAlreadyResolved(claim, ClaimStatusRejected)
	}
	return s.resolve(ctx, claim, ClaimStatusRejected)
}

func (s *claimService) Resolve(ctx context.Context, claimID string, decision Decision) (Claim, error) {
	to, err := decision.Status()
	if err != nil {
		return Claim{}, err
	}
	if to == ClaimStatusApproved {
		return s.Approve(ctx, claimID)
	}
	return s.Reject(ctx, claimID)
}

func (s *claimService) resolve(ctx context.Context, claim Claim, to ClaimStatus) (Claim, error) {
	resolved, err := s.claims.Resolve(ctx, claim.ID, to, s.clock().UTC())
	if errors.Is(err, ErrStatusConflict) {
		// someone else resolved it between our read and write
		return Claim{}, claimAlreadyResolved(claim, to)
	}
	return resolved, err
}

func (s *claimService) Get(ctx context.Context, claimID string) (Claim, error) {
	if claimID == "" {
		return Claim{}, fmt.Errorf("%w: missing claim ID", ErrValidation)
	}
	return s.claims.Get(ctx, claimID)
}

func (s *claimService) ListByPolicy(ctx context.Context, policyID string) ([]Claim, error) {
	if _, err := s.policies.Get(ctx, policyID); err != nil {
		return nil, err
	}
	return s.claims.ListByPolicy(ctx, policyID)
}
