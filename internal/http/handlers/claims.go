package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrKriegler/go-parametric/internal/core"
)

type ClaimHandler struct {
	Svc core.ClaimService
	Log *slog.Logger
}

func NewClaimHandler(svc core.ClaimService, log *slog.Logger) *ClaimHandler {
	return &ClaimHandler{Svc: svc, Log: log}
}

func (h *ClaimHandler) Mount(r chi.Router) {
	r.Route("/claims", func(r chi.Router) {
		r.Post("/", h.File)
		r.Get("/{claim_id}", h.Get)
		r.Put("/{claim_id}", h.Resolve)
	})
}

// File opens a claim against an active policy.
// 201: JSON; 400: validation; 404: policy not found; 409: policy not active.
func (h *ClaimHandler) File(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PolicyID string  `json:"policy_id"`
		Amount   float64 `json:"amount"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	claim, err := h.Svc.FileClaim(r.Context(), body.PolicyID, body.Amount)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, err.Error())
		return
	}

	h.Log.InfoContext(r.Context(), "claim filed", "claim_id", claim.ID, "policy_id", claim.PolicyID)
	writeJSON(h.Log, w, http.StatusCreated, claim)
}

// Get retrieves a claim by ID.
// 200: JSON; 404: not found.
func (h *ClaimHandler) Get(w http.ResponseWriter, r *http.Request) {
	claim, err := h.Svc.Get(r.Context(), chi.URLParam(r, "claim_id"))
	if err != nil {
		writeError(r.Context(), h.Log, w, err, "Failed to get claim")
		return
	}
	writeJSON(h.Log, w, http.StatusOK, claim)
}

// Resolve approves or rejects a pending claim. A second resolution fails.
// 200: JSON; 400: unknown decision; 404: not found; 409: already resolved.
func (h *ClaimHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "claim_id")

	var body struct {
		Decision core.Decision `json:"decision"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	claim, err := h.Svc.Resolve(r.Context(), id, body.Decision)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, err.Error())
		return
	}

	h.Log.InfoContext(r.Context(), "claim resolved", "claim_id", claim.ID, "status", claim.Status)
	writeJSON(h.Log, w, http.StatusOK, claim)
}
