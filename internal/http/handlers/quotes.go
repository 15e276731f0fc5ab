package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/pkg/problem"
)

type QuoteHandler struct {
	Svc core.QuoteService
	Log *slog.Logger
}

func NewQuoteHandler(svc core.QuoteService, log *slog.Logger) *QuoteHandler {
	return &QuoteHandler{Svc: svc, Log: log}
}

func (h *QuoteHandler) Mount(r chi.Router) {
	r.Get("/quotes:estimate", h.Estimate)
	r.Get("/coverage-tiers", h.CoverageTiers)
}

// Estimate prices cover for the given risk factors.
// 200: JSON quote; 400: bad parameters.
func (h *QuoteHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	coverage, err := strconv.ParseFloat(q.Get("coverage"), 64)
	if err != nil {
		problem.Write(w, http.StatusBadRequest, "Invalid Coverage", "Query parameter coverage must be a number.")
		return
	}
	units := 1
	if u := q.Get("units"); u != "" {
		units, err = strconv.Atoi(u)
		if err != nil {
			problem.Write(w, http.StatusBadRequest, "Invalid Units", "Query parameter units must be an integer.")
			return
		}
	}

	in := core.QuoteInput{
		Carrier:        q.Get("carrier"),
		OriginLocation: q.Get("origin"),
		DestLocation:   q.Get("destination"),
		TimeOfDay:      q.Get("time"),
		EventDate:      q.Get("date"),
		OriginRegion:   q.Get("origin_region"),
		DestRegion:     q.Get("dest_region"),
		CoverageAmount: coverage,
		UnitCount:      units,
	}

	quote, err := h.Svc.Estimate(r.Context(), in)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, err.Error())
		return
	}
	writeJSON(h.Log, w, http.StatusOK, quote)
}

// CoverageTiers lists the coverage amounts a quote may use.
func (h *QuoteHandler) CoverageTiers(w http.ResponseWriter, _ *http.Request) {
	tiers := h.Svc.CoverageTiers()
	if tiers == nil {
		tiers = []float64{}
	}
	writeJSON(h.Log, w, http.StatusOK, map[string]any{"tiers": tiers})
}
