package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// ExpiryTrigger requests an expiry scan without waiting for it.
type ExpiryTrigger interface {
	Trigger()
}

// ArchiveRunner archives settled offers once and reports how many moved.
type ArchiveRunner interface {
	Run(ctx context.Context) (int64, error)
}

// ArchiveLister lists objects in blob storage.
type ArchiveLister interface {
	List(ctx context.Context, prefix string) ([]domain.ObjectInfo, error)
}

// MaintenanceHandler serves operator endpoints for the background jobs.
type MaintenanceHandler struct {
	expiry  ExpiryTrigger
	archive ArchiveRunner // nil when archiving is not configured
	lister  ArchiveLister // nil without object storage
	logger  *slog.Logger
}

// NewMaintenanceHandler creates a MaintenanceHandler. archive and lister may
// be nil.
func NewMaintenanceHandler(expiry ExpiryTrigger, archive ArchiveRunner, lister ArchiveLister, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{expiry: expiry, archive: archive, lister: lister, logger: logger}
}

// TriggerExpiry enqueues one expiry scan. Repeated triggers before the scan
// starts collapse into one.
// POST /api/expiry/trigger
func (h *MaintenanceHandler) TriggerExpiry(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "handler: expiry scan requested")
	h.expiry.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "expiry scan enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// RunArchive archives settled offers past the retention window and waits for
// the result.
// POST /api/archive/run
func (h *MaintenanceHandler) RunArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archiving is not configured")
		return
	}
	n, err := h.archive.Run(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive run failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "archive run failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": n})
}

// ListArchives returns the archive files written so far.
// GET /api/archive
func (h *MaintenanceHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage is not configured")
		return
	}
	objs, err := h.lister.List(r.Context(), domain.ArchivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}
	if objs == nil {
		objs = []domain.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": objs})
}
