package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/pkg/problem"
)

type PolicyHandler struct {
	Svc    core.PolicyService
	Claims core.ClaimService
	Log    *slog.Logger
}

func NewPolicyHandler(svc core.PolicyService, claims core.ClaimService, log *slog.Logger) *PolicyHandler {
	return &PolicyHandler{Svc: svc, Claims: claims, Log: log}
}

func (h *PolicyHandler) Mount(r chi.Router) {
	r.Route("/policies", func(r chi.Router) {
		r.Post("/", h.Submit)
		r.Get("/", h.List)
		r.Get("/{policy_id}", h.Get)
		r.Post("/{policy_id}:confirm-payment", h.ConfirmPayment)
		r.Get("/{policy_id}/claims", h.ListClaims)
	})
}

// policyRequest accepts coverage dates as YYYY-MM-DD or RFC3339.
type policyRequest struct {
	OwnerAddress      string        `json:"owner_address"`
	PlanType          core.PlanType `json:"plan_type"`
	Identifier        string        `json:"identifier"`
	CoverageAmount    float64       `json:"coverage_amount"`
	UnitCount         int           `json:"unit_count"`
	Premium           float64       `json:"premium"`
	TotalPremium      float64       `json:"total_premium"`
	CoverageStartDate string        `json:"coverage_start_date"`
	CoverageEndDate   string        `json:"coverage_end_date"`
	DocumentURL       string        `json:"document_url,omitempty"`
}

func (req policyRequest) application() (core.PolicyApplication, bool) {
	start, ok1 := parseDate(req.CoverageStartDate)
	end, ok2 := parseDate(req.CoverageEndDate)
	return core.PolicyApplication{
		OwnerAddress:      req.OwnerAddress,
		PlanType:          req.PlanType,
		Identifier:        req.Identifier,
		CoverageAmount:    req.CoverageAmount,
		UnitCount:         req.UnitCount,
		Premium:           req.Premium,
		TotalPremium:      req.TotalPremium,
		CoverageStartDate: start,
		CoverageEndDate:   end,
		DocumentURL:       req.DocumentURL,
	}, ok1 && ok2
}

func parseDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}

// Submit records an application as a policy pending payment.
// 201: JSON; 400: bad JSON/validation; 500: internal error.
func (h *PolicyHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, ok := req.application()
	if !ok {
		problem.Write(w, http.StatusBadRequest, "Invalid Dates", "Coverage dates must be YYYY-MM-DD or RFC3339.")
		return
	}

	policy, err := h.Svc.Submit(r.Context(), app)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, err.Error())
		return
	}

	h.Log.InfoContext(r.Context(), "policy submitted", "policy_id", policy.ID, "plan_type", policy.PlanType)
	writeJSON(h.Log, w, http.StatusCreated, policy)
}

// Get retrieves a policy by ID.
// 200: JSON; 404: not found; 500: internal error.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "policy_id")

	policy, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, "Failed to get policy")
		return
	}
	writeJSON(h.Log, w, http.StatusOK, policy)
}

// ConfirmPayment activates a pending policy. Repeating it is harmless.
// 200: JSON; 400: bad hash or unverifiable payment; 404: not found; 409: policy closed or tx already used.
func (h *PolicyHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "policy_id")

	var body struct {
		SettlementTxHash string `json:"settlement_tx_hash"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	policy, err := h.Svc.ConfirmPayment(r.Context(), id, body.SettlementTxHash)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, err.Error())
		return
	}

	writeJSON(h.Log, w, http.StatusOK, map[string]any{
		"status": "confirmed",
		"policy": policy,
	})
}

// List returns policies with optional filtering and pagination.
// 200: JSON; 400: unknown status; 500: internal error.
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	filter := core.PolicyFilter{
		OwnerAddress: r.URL.Query().Get("owner"),
		Status:       core.PolicyStatus(r.URL.Query().Get("status")),
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	policies, total, err := h.Svc.List(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, err.Error())
		return
	}

	// Return empty array instead of null
	if policies == nil {
		policies = []core.Policy{}
	}

	writeJSON(h.Log, w, http.StatusOK, map[string]interface{}{
		"items":  policies,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// ListClaims returns every claim filed against a policy.
// 200: JSON; 404: policy not found.
func (h *PolicyHandler) ListClaims(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "policy_id")

	claims, err := h.Claims.ListByPolicy(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, "Failed to list claims")
		return
	}
	if claims == nil {
		claims = []core.Claim{}
	}
	writeJSON(h.Log, w, http.StatusOK, map[string]any{"items": claims})
}
