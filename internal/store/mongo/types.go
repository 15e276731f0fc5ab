package mongo

import (
	"time"

	"github.com/MrKriegler/go-parametric/internal/core"
)

const (
	ColPolicies = "policies"
	ColClaims   = "claims"
)

type PolicyDoc struct {
	ID                string     `bson:"_id"`
	OwnerAddress      string     `bson:"owner_address"`
	PlanType          string     `bson:"plan_type"`
	Identifier        string     `bson:"identifier"`
	CoverageAmount    float64    `bson:"coverage_amount"`
	UnitCount         int        `bson:"unit_count"`
	Premium           float64    `bson:"premium"`
	TotalPremium      float64    `bson:"total_premium"`
	Status            string     `bson:"status"`
	CoverageStartDate time.Time  `bson:"coverage_start_date"`
	CoverageEndDate   time.Time  `bson:"coverage_end_date"`
	SubmittedAt       time.Time  `bson:"submitted_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
	DocumentURL       string     `bson:"document_url,omitempty"`
	SettlementTxHash  string     `bson:"settlement_tx_hash,omitempty"`
	PaidAt            *time.Time `bson:"paid_at,omitempty"`
	ClosedAt          *time.Time `bson:"closed_at,omitempty"`
}

func toPolicyDoc(p core.Policy) PolicyDoc {
	return PolicyDoc{
		ID:                p.ID,
		OwnerAddress:      p.OwnerAddress,
		PlanType:          string(p.PlanType),
		Identifier:        p.Identifier,
		CoverageAmount:    p.CoverageAmount,
		UnitCount:         p.UnitCount,
		Premium:           p.Premium,
		TotalPremium:      p.TotalPremium,
		Status:            string(p.Status),
		CoverageStartDate: p.CoverageStartDate.UTC(),
		CoverageEndDate:   p.CoverageEndDate.UTC(),
		SubmittedAt:       p.SubmittedAt.UTC(),
		UpdatedAt:         p.UpdatedAt.UTC(),
		DocumentURL:       p.DocumentURL,
		SettlementTxHash:  p.SettlementTxHash,
		PaidAt:            p.PaidAt,
		ClosedAt:          p.ClosedAt,
	}
}

// BSON dates come back in local time; normalise to UTC.
func fromPolicyDoc(d PolicyDoc) core.Policy {
	return core.Policy{
		ID:                d.ID,
		OwnerAddress:      d.OwnerAddress,
		PlanType:          core.PlanType(d.PlanType),
		Identifier:        d.Identifier,
		CoverageAmount:    d.CoverageAmount,
		UnitCount:         d.UnitCount,
		Premium:           d.Premium,
		TotalPremium:      d.TotalPremium,
		Status:            core.PolicyStatus(d.Status),
		CoverageStartDate: d.CoverageStartDate.UTC(),
		CoverageEndDate:   d.CoverageEndDate.UTC(),
		SubmittedAt:       d.SubmittedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
		DocumentURL:       d.DocumentURL,
		SettlementTxHash:  d.SettlementTxHash,
		PaidAt:            utcPtr(d.PaidAt),
		ClosedAt:          utcPtr(d.ClosedAt),
	}
}

type ClaimDoc struct {
	ID          string     `bson:"_id"`
	PolicyID    string     `bson:"policy_id"`
	ClaimAmount float64    `bson:"claim_amount"`
	Status      string     `bson:"status"`
	CreatedAt   time.Time  `bson:"created_at"`
	ResolvedAt  *time.Time `bson:"resolved_at,omitempty"`
}

func toClaimDoc(c core.Claim) ClaimDoc {
	return ClaimDoc{
		ID:          c.ID,
		PolicyID:    c.PolicyID,
		ClaimAmount: c.ClaimAmount,
		Status:      string(c.Status),
		CreatedAt:   c.CreatedAt.UTC(),
		ResolvedAt:  c.ResolvedAt,
	}
}

func fromClaimDoc(d ClaimDoc) core.Claim {
	return core.Claim{
		ID:          d.ID,
		PolicyID:    d.PolicyID,
		ClaimAmount: d.ClaimAmount,
		Status:      core.ClaimStatus(d.Status),
		CreatedAt:   d.CreatedAt.UTC(),
		ResolvedAt:  utcPtr(d.ResolvedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
