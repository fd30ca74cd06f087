package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fileforge/fileforge/internal/handler/dto"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/service"
)

// Conversions is the conversion service as seen by ConversionHandler.
type Conversions interface {
	Create(ctx context.Context, accountID, uploadID, targetFormat string) (*model.Conversion, error)
	List(ctx context.Context, accountID string) ([]*model.Conversion, error)
}

// ConversionHandler handles conversion requests.
type ConversionHandler struct {
	conversions Conversions
	logger      *slog.Logger
}

// NewConversionHandler creates a new ConversionHandler.
func NewConversionHandler(conversions Conversions, logger *slog.Logger) *ConversionHandler {
	return &ConversionHandler{
		conversions: conversions,
		logger:      logger,
	}
}

// Create handles POST /api/v1/conversions. A conversion that ran and
// failed is still a created row; only validator rejections are errors.
func (h *ConversionHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	var req dto.CreateConversionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := h.conversions.Create(r.Context(), accountID, req.UploadID, req.TargetFormat)
	if err != nil {
		if errors.Is(err, service.ErrInvalidConversion) && conv != nil {
			h.logger.Info("conversion_rejected", "conversion_id", conv.ID, "account_id", accountID)
		}
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("conversion_created",
		"conversion_id", conv.ID,
		"account_id", accountID,
		"status", conv.Status,
	)

	writeJSON(w, http.StatusCreated, dto.ToConversionResponse(conv))
}

// List handles GET /api/v1/conversions.
func (h *ConversionHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	conversions, err := h.conversions.List(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToConversionListResponse(conversions))
}
