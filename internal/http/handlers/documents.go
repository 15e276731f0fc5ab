package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrKriegler/go-parametric/internal/core"
	"github.com/MrKriegler/go-parametric/pkg/problem"
)

// MaxDocumentSize caps a single uploaded document.
const MaxDocumentSize = 10 << 20

type DocumentHandler struct {
	Store core.DocumentStore // nil when object storage is not configured
	Log   *slog.Logger
}

func NewDocumentHandler(store core.DocumentStore, log *slog.Logger) *DocumentHandler {
	return &DocumentHandler{Store: store, Log: log}
}

func (h *DocumentHandler) Mount(r chi.Router) {
	r.Post("/documents", h.Upload)
}

// Upload stores a multipart "file" and returns its URL for use as a
// policy's document_url.
// 201: JSON; 400: missing file; 413: too large; 501: storage not configured.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		writeError(r.Context(), h.Log, w,
			fmt.Errorf("%w: document storage", core.ErrNotConfigured),
			"Document storage is not configured.")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxDocumentSize+(1<<20))
	if err := r.ParseMultipartForm(MaxDocumentSize); err != nil {
		problem.Write(w, http.StatusBadRequest, "Invalid Upload", "Body must be multipart/form-data within the size limit.")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		problem.Write(w, http.StatusBadRequest, "Missing File", "Form field file is required.")
		return
	}
	defer file.Close()

	if header.Size > MaxDocumentSize {
		problem.Write(w, http.StatusRequestEntityTooLarge, "Request Too Large", "Document exceeds maximum allowed size.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := h.Store.Put(r.Context(), header.Filename, file, header.Size, contentType)
	if err != nil {
		writeError(r.Context(), h.Log, w, err, "Failed to store document")
		return
	}
	writeJSON(h.Log, w, http.StatusCreated, map[string]string{"url": url})
}
