package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(date, clock string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", date+" "+clock)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRiskEngine_TableLookups(t *testing.T) {
	e := NewRiskEngine(DefaultRiskTables())

	assert.Equal(t, 0.30, e.CarrierRisk("6E"))
	assert.Equal(t, 0.30, e.CarrierRisk(" 6e "), "codes are case and space insensitive")
	assert.Equal(t, DefaultCarrierRisk, e.CarrierRisk("ZZ"))
	assert.Equal(t, DefaultCarrierRisk, e.CarrierRisk(""))

	assert.Equal(t, 0.25, e.LocationRisk("DEL", RoleOrigin))
	assert.Equal(t, 0.25, e.LocationRisk("DEL", RoleDestination))
	assert.Equal(t, DefaultOriginRisk, e.LocationRisk("XYZ", RoleOrigin))
	assert.Equal(t, DefaultDestinationRisk, e.LocationRisk("XYZ", RoleDestination))
}

func TestTimeOfDayRisk_Buckets(t *testing.T) {
	cases := map[string]float64{
		"00:00": NightRisk,
		"05:59": NightRisk,
		"06:00": DaytimeRisk,
		"11:59": DaytimeRisk,
		"12:00": AfternoonRisk,
		"17:59": AfternoonRisk,
		"18:00": NightRisk,
		"23:59": NightRisk,
	}
	for clock, want := range cases {
		assert.Equal(t, want, TimeOfDayRisk(at("2026-03-10", clock)), clock)
	}
}

func TestRiskEngine_CalendarAndSeasonal(t *testing.T) {
	e := NewRiskEngine(DefaultRiskTables())

	assert.Equal(t, CalendarElevatedRisk, e.CalendarRisk("IN-E", at("2026-10-15", "00:00")), "range start is inclusive")
	assert.Equal(t, CalendarElevatedRisk, e.CalendarRisk("IN-E", at("2026-10-21", "23:59")), "range end is inclusive")
	assert.Equal(t, CalendarBaselineRisk, e.CalendarRisk("IN-E", at("2026-10-22", "00:00")))
	assert.Equal(t, CalendarBaselineRisk, e.CalendarRisk("MARS", at("2026-10-18", "12:00")))

	// December to February wraps the year boundary.
	assert.Equal(t, 0.35, e.SeasonalRisk("IN-N", at("2026-01-15", "09:00")))
	assert.Equal(t, 0.35, e.SeasonalRisk("IN-N", at("2026-12-01", "09:00")))
	assert.Equal(t, SeasonalBaselineRisk, e.SeasonalRisk("IN-N", at("2026-04-01", "09:00")))
	assert.Equal(t, SeasonalBaselineRisk, e.SeasonalRisk("", at("2026-04-01", "09:00")))
}

func TestRiskEngine_ExposureTakesMaxOfBothSides(t *testing.T) {
	e := NewRiskEngine(DefaultRiskTables())

	calendar, seasonal := e.Exposure("XX", "IN-E", at("2026-10-18", "20:00"))
	assert.Equal(t, CalendarElevatedRisk, calendar)
	assert.Equal(t, SeasonalBaselineRisk, seasonal)

	calendar, seasonal = e.Exposure("IN-W", "US", at("2026-07-04", "20:00"))
	assert.Equal(t, CalendarBaselineRisk, calendar)
	assert.Equal(t, 0.38, seasonal)
}

func TestRiskEngine_BoundsContainEveryScore(t *testing.T) {
	tables := DefaultRiskTables()
	e := NewRiskEngine(tables)
	bounds := e.Bounds()

	inBounds := func(f Factor, v float64) {
		b := bounds[f]
		assert.GreaterOrEqual(t, v, b.Min, f)
		assert.LessOrEqual(t, v, b.Max, f)
	}

	carriers := []string{"6E", "AI", "SQ", "ZZ", ""}
	locations := []string{"DEL", "SIN", "ORD", "???"}
	regions := append(tables.Regions(), "NOWHERE")
	start := at("2026-01-01", "00:00")

	for _, c := range carriers {
		inBounds(FactorCarrier, e.CarrierRisk(c))
	}
	for _, l := range locations {
		inBounds(FactorOrigin, e.LocationRisk(l, RoleOrigin))
		inBounds(FactorDestination, e.LocationRisk(l, RoleDestination))
	}
	for d := 0; d < 366; d += 5 {
		day := start.AddDate(0, 0, d).Add(time.Duration(d%24) * time.Hour)
		inBounds(FactorTimeOfDay, TimeOfDayRisk(day))
		for _, r := range regions {
			inBounds(FactorCalendar, e.CalendarRisk(r, day))
			inBounds(FactorSeasonal, e.SeasonalRisk(r, day))
		}
	}

	lo, hi := NewPremiumCalculator().ProbabilityBounds(bounds)
	assert.GreaterOrEqual(t, lo, 0.0)
	assert.LessOrEqual(t, hi, 1.0)
}

func TestParseRiskTables_Rejects(t *testing.T) {
	cases := map[string]string{
		"score above one": "carriers:\n  XX: 1.5\n",
		"negative score":  "locations:\n  XX: -0.1\n",
		"reversed range":  "calendar:\n  R:\n    - { from: \"2026-02-01\", to: \"2026-01-01\" }\n",
		"bad date":        "calendar:\n  R:\n    - { from: \"2026-13-01\", to: \"2026-01-01\" }\n",
		"bad month":       "seasonal:\n  R:\n    - { from: 0, to: 2, score: 0.1 }\n",
		"not yaml":        "carriers: [",
	}
	for name, doc := range cases {
		_, err := ParseRiskTables([]byte(doc))
		assert.ErrorIs(t, err, ErrConfiguration, name)
	}
}

func TestLoadRiskTables_EmptyPathUsesEmbedded(t *testing.T) {
	tables, err := LoadRiskTables("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRiskTables().Version(), tables.Version())

	_, err = LoadRiskTables("/nonexistent/risk.yaml")
	assert.ErrorIs(t, err, ErrConfiguration)
}
