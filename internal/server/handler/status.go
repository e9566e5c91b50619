package handler

import (
	"net/http"
	"time"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// StatusHandler serves a summary of the running process for the admin panel.
type StatusHandler struct {
	Mode      string
	Backend   string
	StartedAt time.Time

	offers OfferService
	notes  NotificationService
	market MarketService
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, backend string, offers OfferService, notes NotificationService, market MarketService) *StatusHandler {
	return &StatusHandler{
		Mode:      mode,
		Backend:   backend,
		StartedAt: time.Now().UTC(),
		offers:    offers,
		notes:     notes,
		market:    market,
	}
}

// GetStatus responds with the process mode, store backend, offer counts per
// status, the unread notification count and the market state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	offers, err := h.offers.List(r.Context(), domain.OfferFilter{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list offers")
		return
	}
	counts := map[domain.OfferStatus]int{
		domain.OfferPending:  0,
		domain.OfferApproved: 0,
		domain.OfferRejected: 0,
		domain.OfferExpired:  0,
	}
	for _, o := range offers {
		counts[o.Status]++
	}
	// A failed refresh reports the cached count.
	_ = h.notes.Refresh(r.Context())
	_, unread := h.notes.List()

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"backend":        h.Backend,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"offers":         counts,
		"unread_count":   unread,
		"market":         h.market.State(r.Context()),
	})
}
