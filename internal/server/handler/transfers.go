package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/lavirtualzone/transfers/internal/domain"
)

// OfferService is the slice of the offer service the transfer handler needs.
type OfferService interface {
	Create(ctx context.Context, in domain.NewOffer) (domain.Offer, error)
	Get(ctx context.Context, id string) (domain.Offer, error)
	List(ctx context.Context, f domain.OfferFilter) ([]domain.Offer, error)
	Approve(ctx context.Context, id string) (domain.Offer, error)
	Reject(ctx context.Context, id, reason string) (domain.Offer, error)
	Import(ctx context.Context, items []json.RawMessage) (domain.ImportResult, error)
}

// TransferHandler serves the offer endpoints.
type TransferHandler struct {
	offers OfferService
	logger *slog.Logger
}

// NewTransferHandler creates a TransferHandler.
func NewTransferHandler(offers OfferService, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{offers: offers, logger: logHandler(logger, "transfers")}
}

type listOffersResponse struct {
	Items []domain.Offer `json:"items"`
}

// ListOffers returns offers in insertion order. Optional query parameters
// status, club, player and sort=recent narrow the listing.
// GET /api/transfers
func (h *TransferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.OfferFilter{
		Status:     domain.OfferStatus(q.Get("status")),
		ClubID:     q.Get("club"),
		PlayerID:   q.Get("player"),
		SortRecent: q.Get("sort") == "recent",
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+string(f.Status))
		return
	}

	offers, err := h.offers.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, h.logger, "list offers", err)
		return
	}
	writeJSON(w, http.StatusOK, listOffersResponse{Items: offers})
}

// GetOffer returns a single offer.
// GET /api/transfers/{id}
func (h *TransferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.offers.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get offer", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CreateOffer validates and stores a new pending offer.
// POST /api/transfers
func (h *TransferHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var in domain.NewOffer
	if err := readJSON(r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	o, err := h.offers.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, h.logger, "create offer", err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// Approve accepts a pending offer.
// POST /api/transfers/{id}/approve
func (h *TransferHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if _, err := h.offers.Approve(r.Context(), pathParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, "approve offer", err)
		return
	}
	writeOK(w)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject declines a pending offer with an optional reason.
// POST /api/transfers/{id}/reject
func (h *TransferHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := readJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := h.offers.Reject(r.Context(), pathParam(r, "id"), req.Reason); err != nil {
		writeServiceError(w, r, h.logger, "reject offer", err)
		return
	}
	writeOK(w)
}

// Import merges a batch of offers. The body is either a JSON array or an
// object with an items array.
// POST /api/transfers/import
func (h *TransferHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	items, err := importItems(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.offers.Import(r.Context(), items)
	if err != nil {
		writeServiceError(w, r, h.logger, "import offers", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

var errImportShape = errors.New("body must be an array of offers or an object with an items array")

func importItems(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errImportShape
	}
	switch body[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, errImportShape
		}
		return items, nil
	case '{':
		var wrapper struct {
			Items json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, errImportShape
		}
		inner := bytes.TrimSpace(wrapper.Items)
		if len(inner) == 0 || inner[0] != '[' {
			return nil, errImportShape
		}
		return importItems(inner)
	}
	return nil, errImportShape
}
