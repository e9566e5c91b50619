package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// AuditLog lists recorded offer events.
type AuditLog interface {
	List(ctx context.Context, q domain.AuditQuery) ([]domain.AuditEntry, error)
}

// AuditHandler serves the audit trail kept in PostgreSQL.
type AuditHandler struct {
	audit  AuditLog
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit AuditLog, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logHandler(logger, "audit")}
}

// List returns audit entries newest first.
// GET /api/audit?limit=50&offset=0&since=...&until=...&event=offer.&offer=<id>
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseAuditQuery(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
