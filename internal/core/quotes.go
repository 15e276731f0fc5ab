package core

import (
	"context"
	"fmt"
	"math"
	"time"
)

const timeOfDayLayout = "15:04"

// Upper bounds on a quote keep its premium within int64 hundredths.
const (
	MaxCoverageAmount = 1e9
	MaxUnitCount      = 1_000_000
)

type QuoteInput struct {
	Carrier        string  `json:"carrier"`
	OriginLocation string  `json:"origin_location"`
	DestLocation   string  `json:"dest_location"`
	TimeOfDay      string  `json:"time_of_day"` // HH:MM, local to the event
	EventDate      string  `json:"event_date"`  // YYYY-MM-DD
	OriginRegion   string  `json:"origin_region"`
	DestRegion     string  `json:"dest_region"`
	CoverageAmount float64 `json:"coverage_amount"`
	UnitCount      int     `json:"unit_count"`
}

// Pricing is pure: no I/O, the same input always yields the same Quote.
type QuoteService interface {
	Estimate(ctx context.Context, in QuoteInput) (Quote, error)
	CoverageTiers() []float64
}

func (in QuoteInput) Validate() error {
	if math.IsNaN(in.CoverageAmount) || math.IsInf(in.CoverageAmount, 0) {
		return fmt.Errorf("%w: coverage amount must be finite", ErrValidation)
	}
	if in.CoverageAmount <= 0 || in.CoverageAmount > MaxCoverageAmount {
		return fmt.Errorf("%w: coverage amount must be > 0 and <= %g", ErrValidation, float64(MaxCoverageAmount))
	}
	if in.UnitCount < 1 || in.UnitCount > MaxUnitCount {
		return fmt.Errorf("%w: unit count must be between 1 and %d", ErrValidation, MaxUnitCount)
	}
	if _, err := in.departure(); err != nil {
		return err
	}
	return nil
}

// departure combines the event date and time of day. An empty time of day
// defaults to 09:00, the daytime bucket.
func (in QuoteInput) departure() (time.Time, error) {
	date, err := time.Parse(dateLayout, in.EventDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: event_date must be YYYY-MM-DD", ErrValidation)
	}
	tod := "09:00"
	if in.TimeOfDay != "" {
		tod = in.TimeOfDay
	}
	clock, err := time.Parse(timeOfDayLayout, tod)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time_of_day must be HH:MM", ErrValidation)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, time.UTC), nil
}

func (in QuoteInput) factors() (RiskFactors, error) {
	dep, err := in.departure()
	if err != nil {
		return RiskFactors{}, err
	}
	return RiskFactors{
		Carrier:        in.Carrier,
		OriginLocation: in.OriginLocation,
		DestLocation:   in.DestLocation,
		Departure:      dep,
		OriginRegion:   in.OriginRegion,
		DestRegion:     in.DestRegion,
	}, nil
}
