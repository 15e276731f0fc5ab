package core

import (
	"context"
	"fmt"
	"slices"
)

type quoteService struct {
	engine *RiskEngine
	calc   *PremiumCalculator
	tiers  []float64
}

// NewQuoteService builds the pricing service. When tiers is non-empty the
// coverage amount must be one of them.
func NewQuoteService(tables *RiskTables, tiers []float64) QuoteService {
	return &quoteService{
		engine: NewRiskEngine(tables),
		calc:   NewPremiumCalculator(),
		tiers:  slices.Clone(tiers),
	}
}

func (s *quoteService) Estimate(_ context.Context, in QuoteInput) (Quote, error) {
	// 1) validate inputs
	if err := in.Validate(); err != nil {
		return Quote{}, err
	}
	if len(s.tiers) > 0 && !slices.Contains(s.tiers, in.CoverageAmount) {
		return Quote{}, fmt.Errorf("%w: coverage amount must be one of %v", ErrValidation, s.tiers)
	}

	// 2) score
	factors, err := in.factors()
	if err != nil {
		return Quote{}, err
	}
	scores := s.engine.Score(factors)

	// 3) price
	q := s.calc.Estimate(scores, in.CoverageAmount, in.UnitCount)
	q.TablesVersion = s.engine.tables.Version()
	return q, nil
}

func (s *quoteService) CoverageTiers() []float64 {
	return slices.Clone(s.tiers)
}
