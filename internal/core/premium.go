package core

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// RiskLoadingFactor is applied on top of the expected loss.
const RiskLoadingFactor = 1.2

// FactorScores are the component scores feeding the premium.
type FactorScores struct {
	Carrier     float64
	Origin      float64
	Destination float64
	TimeOfDay   float64
	Calendar    float64
	Seasonal    float64
}

func (s FactorScores) get(f Factor) float64 {
	switch f {
	case FactorCarrier:
		return s.Carrier
	case FactorOrigin:
		return s.Origin
	case FactorDestination:
		return s.Destination
	case FactorTimeOfDay:
		return s.TimeOfDay
	case FactorCalendar:
		return s.Calendar
	case FactorSeasonal:
		return s.Seasonal
	}
	return 0
}

// Weights must sum to 1.0.
type Weights map[Factor]float64

// DefaultWeights is the production weight vector.
var DefaultWeights = Weights{
	FactorCarrier:     0.25,
	FactorOrigin:      0.25,
	FactorDestination: 0.10,
	FactorTimeOfDay:   0.15,
	FactorCalendar:    0.10,
	FactorSeasonal:    0.15,
}

// Quote is the priced result of a risk evaluation. It is never persisted.
type Quote struct {
	Probability       float64            `json:"probability"`
	PremiumPerUnit    float64            `json:"premium_per_unit"`
	TotalPremium      float64            `json:"total_premium"`
	TotalPremiumMinor int64              `json:"total_premium_minor"` // TotalPremium in hundredths; the value to attest
	CoverageAmount    float64            `json:"coverage_amount"`
	UnitCount         int                `json:"unit_count"`
	Breakdown         map[Factor]float64 `json:"breakdown"`
	TablesVersion     string             `json:"tables_version,omitempty"`
}

type PremiumCalculator struct {
	weights Weights
	loading float64
}

func NewPremiumCalculator() *PremiumCalculator {
	return &PremiumCalculator{weights: DefaultWeights, loading: RiskLoadingFactor}
}

// Probability is the weighted sum of the component scores, unrounded.
func (c *PremiumCalculator) Probability(s FactorScores) float64 {
	var p float64
	for _, f := range Factors {
		p += c.weights[f] * s.get(f)
	}
	return p
}

// Estimate prices coverage for unitCount insured units. All arithmetic is
// done unrounded; rounding happens only when the Quote is assembled.
func (c *PremiumCalculator) Estimate(s FactorScores, coverageAmount float64, unitCount int) Quote {
	probability := c.Probability(s)
	perUnit := coverageAmount * probability * c.loading
	total := perUnit * float64(unitCount)

	breakdown := make(map[Factor]float64, len(Factors))
	for _, f := range Factors {
		breakdown[f] = s.get(f)
	}

	return Quote{
		Probability:       roundPlaces(probability, 3),
		PremiumPerUnit:    roundPlaces(perUnit, 2),
		TotalPremium:      roundPlaces(total, 2),
		TotalPremiumMinor: MinorUnits(total),
		CoverageAmount:    coverageAmount,
		UnitCount:         unitCount,
		Breakdown:         breakdown,
	}
}

// ProbabilityBounds is the range of Probability for scores within b.
func (c *PremiumCalculator) ProbabilityBounds(b map[Factor]ScoreBounds) (lo, hi float64) {
	for _, f := range Factors {
		lo += c.weights[f] * b[f].Min
		hi += c.weights[f] * b[f].Max
	}
	return lo, hi
}

// All rounding is half away from zero.

func roundPlaces(x float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return f
}

// MinorUnits converts a currency amount to hundredths. For any x,
// MinorUnits(x) == roundPlaces(x, 2) * 100. Callers keep x within
// MaxCoverageAmount * MaxUnitCount * RiskLoadingFactor.
func MinorUnits(x float64) int64 {
	return decimal.NewFromFloat(x).Shift(2).Round(0).IntPart()
}

var maxScaledPremium = decimal.RequireFromString(strconv.FormatUint(math.MaxUint64, 10))

// ScalePremium rounds a raw total premium to the nearest integer, half away
// from zero, for signing. It is the only lossy conversion in the pipeline.
// Totals are expected in the settlement contract's integer unit, so a
// quote's TotalPremiumMinor passes through unchanged. Values that are not
// finite, are negative, or do not fit a uint64 are rejected.
func ScalePremium(raw float64) (uint64, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: total_premium must be finite", ErrValidation)
	}
	if raw < 0 {
		return 0, fmt.Errorf("%w: total_premium must not be negative", ErrValidation)
	}
	scaled := decimal.NewFromFloat(raw).Round(0)
	if scaled.GreaterThan(maxScaledPremium) {
		return 0, fmt.Errorf("%w: total_premium %s exceeds the signable range", ErrValidation, scaled)
	}
	return scaled.BigInt().Uint64(), nil
}
