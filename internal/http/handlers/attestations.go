package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrKriegler/go-parametric/internal/core"
)

type AttestationHandler struct {
	Svc core.AttestationService
	Log *slog.Logger
}

func NewAttestationHandler(svc core.AttestationService, log *slog.Logger) *AttestationHandler {
	return &AttestationHandler{Svc: svc, Log: log}
}

func (h *AttestationHandler) Mount(r chi.Router) {
	r.Post("/attestations", h.Generate)
	r.Post("/attestations:verify", h.Verify)
}

// Generate signs a premium commitment for the settlement contract.
// 200: JSON; 400: validation.
func (h *AttestationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req core.AttestationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	att, err := h.Svc.Generate(r.Context(), req)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, err.Error())
		return
	}

	h.Log.InfoContext(r.Context(), "attestation issued",
		"identifier", att.Identifier,
		"scaled_premium", att.ScaledPremium,
	)
	writeJSON(h.Log, w, http.StatusOK, att)
}

// Verify reports whether an attestation was signed by this service.
// 200: JSON; 400: malformed signature.
func (h *AttestationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var att core.Attestation
	if !decodeJSON(w, r, &att) {
		return
	}

	check, err := h.Svc.Verify(r.Context(), att)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, err.Error())
		return
	}
	writeJSON(h.Log, w, http.StatusOK, check)
}
