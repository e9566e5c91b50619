package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	State(ctx context.Context) domain.MarketState
	Open(ctx context.Context) (domain.MarketState, error)
	Close(ctx context.Context) (domain.MarketState, error)
}

// MarketHandler serves the transfer window endpoints.
type MarketHandler struct {
	market MarketService
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(market MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		market: market,
		logger: logHandler(logger, "market"),
	}
}

// GetState returns the current window state.
// GET /api/market
func (h *MarketHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.market.State(r.Context()))
}

// Open opens the transfer window.
// POST /api/market/open
func (h *MarketHandler) Open(w http.ResponseWriter, r *http.Request) {
	st, err := h.market.Open(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "open market", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Close closes the transfer window.
// POST /api/market/close
func (h *MarketHandler) Close(w http.ResponseWriter, r *http.Request) {
	st, err := h.market.Close(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "close market", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
