package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fileforge/fileforge/internal/formats"
	"github.com/fileforge/fileforge/internal/handler/dto"
)

// FormatHandler exposes the format catalog and the conversion rules.
// It has no dependencies; the rules are static.
type FormatHandler struct{}

// NewFormatHandler creates a new FormatHandler.
func NewFormatHandler() *FormatHandler {
	return &FormatHandler{}
}

// List handles GET /api/v1/formats.
func (h *FormatHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.FormatListResponse{Formats: formats.All()})
}

// Targets handles GET /api/v1/formats/{ext}/targets.
func (h *FormatHandler) Targets(w http.ResponseWriter, r *http.Request) {
	ext := formats.NormalizeExt(chi.URLParam(r, "ext"))
	if _, ok := formats.Lookup(ext); !ok {
		writeError(w, http.StatusNotFound, "UNKNOWN_FORMAT", "Unknown format")
		return
	}

	writeJSON(w, http.StatusOK, dto.TargetsResponse{
		Source:  ext,
		Targets: formats.SupportedTargets(ext),
	})
}

// Validate handles POST /api/v1/formats/validate. A rejected pair is a
// successful request with valid=false.
func (h *FormatHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateConversionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := formats.Validate(req.Source, req.Target)
	if err == nil {
		writeJSON(w, http.StatusOK, dto.ValidateConversionResponse{Valid: true})
		return
	}

	var validation *formats.ValidationError
	if !errors.As(err, &validation) {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return
	}
	writeJSON(w, http.StatusOK, dto.ValidateConversionResponse{Valid: false, Error: validation.Message})
}
