package core

import "time"

// LocationRole distinguishes the two ends of an exposure. The same location
// table is used for both; only the fallback score differs.
type LocationRole string

const (
	RoleOrigin      LocationRole = "origin"
	RoleDestination LocationRole = "destination"
)

// Documented fallback and rule scores. Unknown codes resolve to these
// defaults on purpose: a quote is always produced.
const (
	DefaultCarrierRisk     = 0.20
	DefaultOriginRisk      = 0.20
	DefaultDestinationRisk = 0.15

	CalendarElevatedRisk = 0.40
	CalendarBaselineRisk = 0.10
	SeasonalBaselineRisk = 0.10

	NightRisk     = 0.25 // 18:00-05:59
	AfternoonRisk = 0.15 // 12:00-17:59
	DaytimeRisk   = 0.10
)

// Factor names a component of the risk breakdown.
type Factor string

const (
	FactorCarrier     Factor = "carrier"
	FactorOrigin      Factor = "origin"
	FactorDestination Factor = "destination"
	FactorTimeOfDay   Factor = "time_of_day"
	FactorCalendar    Factor = "calendar"
	FactorSeasonal    Factor = "seasonal"
)

// Factors is the fixed evaluation order of the breakdown.
var Factors = []Factor{
	FactorCarrier, FactorOrigin, FactorDestination,
	FactorTimeOfDay, FactorCalendar, FactorSeasonal,
}

// RiskEngine maps categorical and temporal inputs to bounded scores.
// Every method is pure and total.
type RiskEngine struct {
	tables *RiskTables
}

func NewRiskEngine(tables *RiskTables) *RiskEngine {
	return &RiskEngine{tables: tables}
}

func (e *RiskEngine) CarrierRisk(code string) float64 {
	if s, ok := e.tables.carrier(code); ok {
		return s
	}
	return DefaultCarrierRisk
}

func (e *RiskEngine) LocationRisk(code string, role LocationRole) float64 {
	if s, ok := e.tables.location(code); ok {
		return s
	}
	if role == RoleDestination {
		return DefaultDestinationRisk
	}
	return DefaultOriginRisk
}

func (e *RiskEngine) CalendarRisk(region string, date time.Time) float64 {
	if e.tables.inCalendar(region, date) {
		return CalendarElevatedRisk
	}
	return CalendarBaselineRisk
}

func (e *RiskEngine) SeasonalRisk(region string, date time.Time) float64 {
	if s, ok := e.tables.seasonalScore(region, date.Month()); ok {
		return s
	}
	return SeasonalBaselineRisk
}

// TimeOfDayRisk only looks at the wall-clock hour of t.
func TimeOfDayRisk(t time.Time) float64 {
	h := t.Hour()
	switch {
	case h >= 18 || h < 6:
		return NightRisk
	case h >= 12:
		return AfternoonRisk
	default:
		return DaytimeRisk
	}
}

// Exposure scores a two-sided exposure; the more severe region dominates.
func (e *RiskEngine) Exposure(originRegion, destRegion string, date time.Time) (calendar, seasonal float64) {
	calendar = max(e.CalendarRisk(originRegion, date), e.CalendarRisk(destRegion, date))
	seasonal = max(e.SeasonalRisk(originRegion, date), e.SeasonalRisk(destRegion, date))
	return calendar, seasonal
}

// RiskFactors are the observable inputs of a quote.
type RiskFactors struct {
	Carrier        string
	OriginLocation string
	DestLocation   string
	Departure      time.Time // date and wall-clock time of the covered event
	OriginRegion   string
	DestRegion     string
}

// Score evaluates all component scores for f.
func (e *RiskEngine) Score(f RiskFactors) FactorScores {
	calendar, seasonal := e.Exposure(f.OriginRegion, f.DestRegion, f.Departure)
	return FactorScores{
		Carrier:     e.CarrierRisk(f.Carrier),
		Origin:      e.LocationRisk(f.OriginLocation, RoleOrigin),
		Destination: e.LocationRisk(f.DestLocation, RoleDestination),
		TimeOfDay:   TimeOfDayRisk(f.Departure),
		Calendar:    calendar,
		Seasonal:    seasonal,
	}
}

// ScoreBounds is the closed interval every component score can take.
type ScoreBounds struct {
	Min float64
	Max float64
}

// Bounds reports the reachable range of each factor given the loaded tables.
func (e *RiskEngine) Bounds() map[Factor]ScoreBounds {
	carrierLo, carrierHi := scoreRange(e.tables.carriers, DefaultCarrierRisk)
	originLo, originHi := scoreRange(e.tables.locations, DefaultOriginRisk)
	destLo, destHi := scoreRange(e.tables.locations, DefaultDestinationRisk)

	seasonLo, seasonHi := SeasonalBaselineRisk, SeasonalBaselineRisk
	for _, ranges := range e.tables.seasonal {
		for _, r := range ranges {
			seasonLo = min(seasonLo, r.score)
			seasonHi = max(seasonHi, r.score)
		}
	}

	return map[Factor]ScoreBounds{
		FactorCarrier:     {carrierLo, carrierHi},
		FactorOrigin:      {originLo, originHi},
		FactorDestination: {destLo, destHi},
		FactorTimeOfDay:   {DaytimeRisk, NightRisk},
		FactorCalendar:    {CalendarBaselineRisk, CalendarElevatedRisk},
		FactorSeasonal:    {seasonLo, seasonHi},
	}
}
