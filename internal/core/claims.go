package core

import (
	"context"
	"fmt"
	"time"
)

type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "pending"
	ClaimStatusApproved ClaimStatus = "approved"
	ClaimStatusRejected ClaimStatus = "rejected"
)

// Decision is the adjudicator's verdict on a pending claim.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type Claim struct {
	ID          string      `json:"id"`
	PolicyID    string      `json:"policy_id"`
	ClaimAmount float64     `json:"claim_amount"`
	Status      ClaimStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

type ClaimRepo interface {
	Create(ctx context.Context, claim Claim) error
	Get(ctx context.Context, id string) (Claim, error)
	ListByPolicy(ctx context.Context, policyID string) ([]Claim, error)

	// Resolve moves a claim out of pending only if it is still pending.
	// It returns ErrClaimNotFound or ErrStatusConflict.
	Resolve(ctx context.Context, id string, to ClaimStatus, at time.Time) (Claim, error)

	// Reopen returns a claim to pending only if it is still in status from,
	// clearing its resolution time. It returns ErrClaimNotFound or
	// ErrStatusConflict.
	Reopen(ctx context.Context, id string, from ClaimStatus) (Claim, error)
}

func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimStatusApproved || s == ClaimStatusRejected
}

func (d Decision) Status() (ClaimStatus, error) {
	switch d {
	case DecisionApprove:
		return ClaimStatusApproved, nil
	case DecisionReject:
		return ClaimStatusRejected, nil
	}
	return "", fmt.Errorf("%w: decision must be %q or %q", ErrValidation, DecisionApprove, DecisionReject)
}

func claimAlreadyResolved(c Claim, to ClaimStatus) error {
	return fmt.Errorf("%w: claim %s is %s, cannot move to %s", ErrInvalidTransition, c.ID, c.Status, to)
}

var ErrClaimNotFound = fmt.Errorf("%w: claim not found", ErrNotFound)
