package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrKriegler/go-parametric/internal/platform/ids"
)

// casAttempts bounds the re-read loop when a conditional write loses a race.
const casAttempts = 3

type PolicyService interface {
	// Submit records an application as a policy awaiting payment.
	Submit(ctx context.Context, in PolicyApplication) (Policy, error)

	// ConfirmPayment activates a pending policy. Confirming an already
	// active policy is a no-op. A settlement transaction pays for at most
	// one policy; reusing it fails with ErrSettlementTxUsed.
	ConfirmPayment(ctx context.Context, id, settlementTxHash string) (Policy, error)

	// MarkClaimed moves an active policy to claimed.
	MarkClaimed(ctx context.Context, id string) (Policy, error)

	// Expire closes a pending or active policy.
	Expire(ctx context.Context, id string) (Policy, error)

	// ExpireUnpaid expires a policy only if it is still pending payment at
	// write time, stamping it with at. Used by the sweep, which passes the
	// time its cutoffs were computed from.
	ExpireUnpaid(ctx context.Context, id string, at time.Time) (Policy, error)

	Get(ctx context.Context, id string) (Policy, error)
	List(ctx context.Context, filter PolicyFilter, limit, offset int) ([]Policy, int64, error)
}

// PaymentVerifier checks a settlement transaction against the policy it pays for.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, txHash string, policy Policy) error
}

type policyService struct {
	policies PolicyRepo
	payments PaymentVerifier
	clock    func() time.Time
}

// NewPolicyService wires the lifecycle. payments may be nil, in which case
// only the transaction hash format is checked.
func NewPolicyService(policies PolicyRepo, payments PaymentVerifier) PolicyService {
	return &policyService{
		policies: policies,
		payments: payments,
		clock:    time.Now,
	}
}

func (s *policyService) Submit(ctx context.Context, in PolicyApplication) (Policy, error) {
	// 1) Validate input
	if err := in.Validate(); err != nil {
		return Policy{}, err
	}

	// 2) Build the pending record
	now := s.clock().UTC()
	policy := Policy{
		ID:                ids.New(),
		OwnerAddress:      in.OwnerAddress,
		PlanType:          in.PlanType,
		Identifier:        in.Identifier,
		CoverageAmount:    in.CoverageAmount,
		UnitCount:         in.UnitCount,
		Premium:           in.Premium,
		TotalPremium:      in.TotalPremium,
		Status:            PolicyStatusPendingPayment,
		CoverageStartDate: in.CoverageStartDate.UTC(),
		CoverageEndDate:   in.CoverageEndDate.UTC(),
		SubmittedAt:       now,
		UpdatedAt:         now,
		DocumentURL:       in.DocumentURL,
	}

	// 3) Persist
	if err := s.policies.Create(ctx, policy); err != nil {
		return Policy{}, err
	}
	return policy, nil
}

func (s *policyService) ConfirmPayment(ctx context.Context, id, txHash string) (Policy, error) {
	if !ValidTxHash(txHash) {
		return Policy{}, fmt.Errorf("%w: settlement_tx_hash must be a 0x-prefixed 32-byte hex hash", ErrValidation)
	}
	// hashes are stored lowercase; stores enforce one policy per hash
	txHash = strings.ToLower(txHash)

	for attempt := 0; attempt < casAttempts; attempt++ {
		policy, err := s.policies.Get(ctx, id)
		if err != nil {
			return Policy{}, err
		}

		switch policy.Status {
		case PolicyStatusActive:
			return policy, nil
		case PolicyStatusPendingPayment:
		default:
			return Policy{}, invalidTransition(id, policy.Status, PolicyStatusActive)
		}

		if s.payments != nil {
			if err := s.payments.VerifyPayment(ctx, txHash, policy); err != nil {
				return Policy{}, err
			}
		}

		updated, err := s.policies.TransitionStatus(ctx, id, StatusChange{
			From:             PolicyStatusPendingPayment,
			To:               PolicyStatusActive,
			At:               s.clock().UTC(),
			SettlementTxHash: txHash,
		})
		if errors.Is(err, ErrStatusConflict) {
			continue
		}
		return updated, err
	}
	return Policy{}, fmt.Errorf("%w: policy %s kept changing during payment confirmation", ErrStatusConflict, id)
}

func (s *policyService) MarkClaimed(ctx context.Context, id string) (Policy, error) {
	return s.transition(ctx, id, PolicyStatusClaimed, PolicyStatusActive)
}

func (s *policyService) Expire(ctx context.Context, id string) (Policy, error) {
	return s.transition(ctx, id, PolicyStatusExpired, PolicyStatusPendingPayment, PolicyStatusActive)
}

func (s *policyService) ExpireUnpaid(ctx context.Context, id string, at time.Time) (Policy, error) {
	return s.policies.TransitionStatus(ctx, id, StatusChange{
		From: PolicyStatusPendingPayment,
		To:   PolicyStatusExpired,
		At:   at.UTC(),
	})
}

// transition re-reads and retries when the conditional write races with
// another writer, so the decision is always made against the latest status.
func (s *policyService) transition(ctx context.Context, id string, to PolicyStatus, allowedFrom ...PolicyStatus) (Policy, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		policy, err := s.policies.Get(ctx, id)
		if err != nil {
			return Policy{}, err
		}
		if !statusIn(policy.Status, allowedFrom) || !policy.Status.CanTransitionTo(to) {
			return Policy{}, invalidTransition(id, policy.Status, to)
		}

		updated, err := s.policies.TransitionStatus(ctx, id, StatusChange{
			From: policy.Status,
			To:   to,
			At:   s.clock().UTC(),
		})
		if errors.Is(err, ErrStatusConflict) {
			continue
		}
		return updated, err
	}
	return Policy{}, fmt.Errorf("%w: policy %s kept changing while moving to %s", ErrStatusConflict, id, to)
}

func (s *policyService) Get(ctx context.Context, id string) (Policy, error) {
	if id == "" {
		return Policy{}, fmt.Errorf("%w: missing policy ID", ErrValidation)
	}
	return s.policies.Get(ctx, id)
}

func (s *policyService) List(ctx context.Context, filter PolicyFilter, limit, offset int) ([]Policy, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.policies.List(ctx, filter, limit, offset)
}

func statusIn(s PolicyStatus, set []PolicyStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}
