package core

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed risk_tables.yaml
var defaultRiskTablesYAML []byte

const dateLayout = "2006-01-02"

// RiskTables is the immutable set of lookup tables behind the risk engine.
// It is built once at startup and shared read-only by every request.
type RiskTables struct {
	version   string
	carriers  map[string]float64
	locations map[string]float64
	calendar  map[string][]dateRange
	seasonal  map[string][]monthRange
}

type dateRange struct {
	from time.Time
	to   time.Time
}

// monthRange is inclusive on both ends; from > to wraps across the year boundary.
type monthRange struct {
	from  time.Month
	to    time.Month
	score float64
}

type riskTablesFile struct {
	Version   string             `yaml:"version"`
	Carriers  map[string]float64 `yaml:"carriers"`
	Locations map[string]float64 `yaml:"locations"`
	Calendar  map[string][]struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"calendar"`
	Seasonal map[string][]struct {
		From  int     `yaml:"from"`
		To    int     `yaml:"to"`
		Score float64 `yaml:"score"`
	} `yaml:"seasonal"`
}

// ParseRiskTables decodes and validates a YAML risk table document.
func ParseRiskTables(data []byte) (*RiskTables, error) {
	var f riskTablesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode risk tables: %v", ErrConfiguration, err)
	}

	t := &RiskTables{
		version:   f.Version,
		carriers:  make(map[string]float64, len(f.Carriers)),
		locations: make(map[string]float64, len(f.Locations)),
		calendar:  make(map[string][]dateRange, len(f.Calendar)),
		seasonal:  make(map[string][]monthRange, len(f.Seasonal)),
	}

	for code, score := range f.Carriers {
		if err := checkScore("carrier "+code, score); err != nil {
			return nil, err
		}
		t.carriers[normalizeCode(code)] = score
	}
	for code, score := range f.Locations {
		if err := checkScore("location "+code, score); err != nil {
			return nil, err
		}
		t.locations[normalizeCode(code)] = score
	}

	for region, ranges := range f.Calendar {
		key := normalizeCode(region)
		for _, r := range ranges {
			from, err := time.Parse(dateLayout, r.From)
			if err != nil {
				return nil, fmt.Errorf("%w: calendar %s: bad from date %q", ErrConfiguration, region, r.From)
			}
			to, err := time.Parse(dateLayout, r.To)
			if err != nil {
				return nil, fmt.Errorf("%w: calendar %s: bad to date %q", ErrConfiguration, region, r.To)
			}
			if to.Before(from) {
				return nil, fmt.Errorf("%w: calendar %s: range %s..%s is reversed", ErrConfiguration, region, r.From, r.To)
			}
			t.calendar[key] = append(t.calendar[key], dateRange{from: from, to: to})
		}
	}

	for region, ranges := range f.Seasonal {
		key := normalizeCode(region)
		for _, r := range ranges {
			if r.From < 1 || r.From > 12 || r.To < 1 || r.To > 12 {
				return nil, fmt.Errorf("%w: seasonal %s: months must be 1-12", ErrConfiguration, region)
			}
			if err := checkScore("seasonal "+region, r.Score); err != nil {
				return nil, err
			}
			t.seasonal[key] = append(t.seasonal[key], monthRange{
				from:  time.Month(r.From),
				to:    time.Month(r.To),
				score: r.Score,
			})
		}
	}

	return t, nil
}

// LoadRiskTables reads tables from path, or the embedded defaults when path is empty.
func LoadRiskTables(path string) (*RiskTables, error) {
	if path == "" {
		return ParseRiskTables(defaultRiskTablesYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read risk tables: %v", ErrConfiguration, err)
	}
	return ParseRiskTables(data)
}

// DefaultRiskTables returns the embedded tables and panics if they are malformed.
func DefaultRiskTables() *RiskTables {
	t, err := ParseRiskTables(defaultRiskTablesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *RiskTables) Version() string { return t.version }

func (t *RiskTables) carrier(code string) (float64, bool) {
	s, ok := t.carriers[normalizeCode(code)]
	return s, ok
}

func (t *RiskTables) location(code string) (float64, bool) {
	s, ok := t.locations[normalizeCode(code)]
	return s, ok
}

func (t *RiskTables) inCalendar(region string, date time.Time) bool {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	for _, r := range t.calendar[normalizeCode(region)] {
		if !day.Before(r.from) && !day.After(r.to) {
			return true
		}
	}
	return false
}

// seasonalScore returns the score of the first range containing month.
func (t *RiskTables) seasonalScore(region string, month time.Month) (float64, bool) {
	for _, r := range t.seasonal[normalizeCode(region)] {
		if r.contains(month) {
			return r.score, true
		}
	}
	return 0, false
}

func (r monthRange) contains(m time.Month) bool {
	if r.from <= r.to {
		return m >= r.from && m <= r.to
	}
	return m >= r.from || m <= r.to
}

// Regions lists every region that has a calendar or seasonal rule.
func (t *RiskTables) Regions() []string {
	seen := map[string]struct{}{}
	for r := range t.calendar {
		seen[r] = struct{}{}
	}
	for r := range t.seasonal {
		seen[r] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func checkScore(what string, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("%w: %s score %v outside [0,1]", ErrConfiguration, what, score)
	}
	return nil
}

func scoreRange(values map[string]float64, fallback float64) (lo, hi float64) {
	lo, hi = fallback, fallback
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}
