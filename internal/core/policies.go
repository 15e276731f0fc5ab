package core

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"time"
)

type PolicyStatus string

const (
	PolicyStatusPendingPayment PolicyStatus = "pending_payment"
	PolicyStatusActive         PolicyStatus = "active"
	PolicyStatusExpired        PolicyStatus = "expired"
	PolicyStatusClaimed        PolicyStatus = "claimed"
)

type PlanType string

const (
	PlanFlightDelay PlanType = "flight_delay" // parametric, settled against an oracle-free attestation
	PlanManual      PlanType = "manual"       // adjudicated through claims
)

// Policy is the persisted record of a purchased or pending cover.
type Policy struct {
	ID                string       `json:"id"`
	OwnerAddress      string       `json:"owner_address"`
	PlanType          PlanType     `json:"plan_type"`
	Identifier        string       `json:"identifier"` // insured event, e.g. flight number
	CoverageAmount    float64      `json:"coverage_amount"`
	UnitCount         int          `json:"unit_count"`
	Premium           float64      `json:"premium"` // per unit
	TotalPremium      float64      `json:"total_premium"`
	Status            PolicyStatus `json:"status"`
	CoverageStartDate time.Time    `json:"coverage_start_date"` // scheduled date of the covered event
	CoverageEndDate   time.Time    `json:"coverage_end_date"`
	SubmittedAt       time.Time    `json:"submitted_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	DocumentURL       string       `json:"document_url,omitempty"`
	SettlementTxHash  string       `json:"settlement_tx_hash,omitempty"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
	ClosedAt          *time.Time   `json:"closed_at,omitempty"`
}

// PolicyApplication is the submission that creates a pending policy.
type PolicyApplication struct {
	OwnerAddress      string    `json:"owner_address"`
	PlanType          PlanType  `json:"plan_type"`
	Identifier        string    `json:"identifier"`
	CoverageAmount    float64   `json:"coverage_amount"`
	UnitCount         int       `json:"unit_count"`
	Premium           float64   `json:"premium"`
	TotalPremium      float64   `json:"total_premium"`
	CoverageStartDate time.Time `json:"coverage_start_date"`
	CoverageEndDate   time.Time `json:"coverage_end_date"`
	DocumentURL       string    `json:"document_url,omitempty"`
}

// StatusChange is a compare-and-swap request against a policy's status.
type StatusChange struct {
	From             PolicyStatus
	To               PolicyStatus
	At               time.Time
	SettlementTxHash string // only recorded on activation
}

type PolicyFilter struct {
	OwnerAddress string
	Status       PolicyStatus
}

type PolicyRepo interface {
	Create(ctx context.Context, policy Policy) error
	Get(ctx context.Context, id string) (Policy, error)
	List(ctx context.Context, filter PolicyFilter, limit, offset int) ([]Policy, int64, error)

	// TransitionStatus applies change only if the stored status equals
	// change.From. It returns ErrPolicyNotFound when the record is missing
	// and ErrStatusConflict when the status no longer matches.
	TransitionStatus(ctx context.Context, id string, change StatusChange) (Policy, error)

	// FindExpirable returns pending-payment policies submitted before
	// submittedBefore OR whose coverage starts before eventBefore.
	FindExpirable(ctx context.Context, submittedBefore, eventBefore time.Time, limit int) ([]Policy, error)
}

var (
	addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashRegex  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

func (a PolicyApplication) Validate() error {
	if !addressRegex.MatchString(a.OwnerAddress) {
		return fmt.Errorf("%w: owner_address must be a 0x-prefixed 20-byte hex address", ErrValidation)
	}
	if a.PlanType != PlanFlightDelay && a.PlanType != PlanManual {
		return fmt.Errorf("%w: plan_type must be %q or %q", ErrValidation, PlanFlightDelay, PlanManual)
	}
	if a.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrValidation)
	}
	for _, amount := range []float64{a.CoverageAmount, a.Premium, a.TotalPremium} {
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return fmt.Errorf("%w: amounts must be finite", ErrValidation)
		}
	}
	if a.CoverageAmount <= 0 || a.CoverageAmount > MaxCoverageAmount {
		return fmt.Errorf("%w: coverage_amount must be > 0 and <= %g", ErrValidation, float64(MaxCoverageAmount))
	}
	if a.UnitCount < 1 || a.UnitCount > MaxUnitCount {
		return fmt.Errorf("%w: unit_count must be between 1 and %d", ErrValidation, MaxUnitCount)
	}
	if a.Premium < 0 || a.TotalPremium < 0 {
		return fmt.Errorf("%w: premiums must not be negative", ErrValidation)
	}
	if a.Premium > MaxCoverageAmount || a.TotalPremium > MaxCoverageAmount*MaxUnitCount {
		return fmt.Errorf("%w: premiums exceed the covered amount range", ErrValidation)
	}
	if a.CoverageStartDate.IsZero() || a.CoverageEndDate.IsZero() {
		return fmt.Errorf("%w: coverage dates are required", ErrValidation)
	}
	if a.CoverageEndDate.Before(a.CoverageStartDate) {
		return fmt.Errorf("%w: coverage_end_date precedes coverage_start_date", ErrValidation)
	}
	return nil
}

// ValidTxHash reports whether h looks like a 32-byte transaction hash.
func ValidTxHash(h string) bool {
	return txHashRegex.MatchString(h)
}

// CanTransitionTo encodes the lifecycle DAG. Nothing re-enters
// pending_payment and nothing leaves expired or claimed.
func (s PolicyStatus) CanTransitionTo(next PolicyStatus) bool {
	transitions := map[PolicyStatus][]PolicyStatus{
		PolicyStatusPendingPayment: {PolicyStatusActive, PolicyStatusExpired},
		PolicyStatusActive:         {PolicyStatusClaimed, PolicyStatusExpired},
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PolicyStatus) IsTerminal() bool {
	return s == PolicyStatusExpired || s == PolicyStatusClaimed
}

func (s PolicyStatus) Valid() bool {
	switch s {
	case PolicyStatusPendingPayment, PolicyStatusActive, PolicyStatusExpired, PolicyStatusClaimed:
		return true
	}
	return false
}

// Apply returns p with change applied. Stores that cannot express the
// update natively use it to build the replacement record.
func (p Policy) Apply(change StatusChange) Policy {
	at := change.At
	p.Status = change.To
	p.UpdatedAt = at
	if change.To == PolicyStatusActive {
		p.PaidAt = &at
		if change.SettlementTxHash != "" {
			p.SettlementTxHash = change.SettlementTxHash
		}
	}
	if change.To.IsTerminal() {
		p.ClosedAt = &at
	}
	return p
}

func invalidTransition(id string, from, to PolicyStatus) error {
	return fmt.Errorf("%w: policy %s cannot move from %s to %s", ErrInvalidTransition, id, from, to)
}

var (
	ErrPolicyNotFound = fmt.Errorf("%w: policy not found", ErrNotFound)
	ErrPolicyExists   = fmt.Errorf("%w: policy already exists", ErrConflict)

	// ErrSettlementTxUsed is returned when a settlement transaction already
	// paid for a different policy.
	ErrSettlementTxUsed = fmt.Errorf("%w: settlement transaction already used by another policy", ErrConflict)
)
