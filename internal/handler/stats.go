package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/fileforge/fileforge/internal/handler/dto"
	"github.com/fileforge/fileforge/internal/model"
)

// StorageStatser reports per-account storage usage.
type StorageStatser interface {
	StorageStats(ctx context.Context, accountID string) (*model.StorageStats, error)
}

// UserCounter reports the number of accounts.
type UserCounter interface {
	UserCount(ctx context.Context) (int64, error)
}

// StatsHandler serves usage statistics.
type StatsHandler struct {
	storage StorageStatser
	users   UserCounter
	logger  *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(storage StorageStatser, users UserCounter, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		storage: storage,
		users:   users,
		logger:  logger,
	}
}

// Storage handles GET /api/v1/stats/storage.
func (h *StatsHandler) Storage(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	stats, err := h.storage.StorageStats(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToStorageStatsResponse(stats))
}

// Public handles GET /api/stats. It needs no session.
func (h *StatsHandler) Public(w http.ResponseWriter, r *http.Request) {
	count, err := h.users.UserCount(r.Context())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.UserCountResponse{UserCount: count})
}
