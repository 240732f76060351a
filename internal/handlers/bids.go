package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenderhub/internal/services"
	"tenderhub/models"
)

// SubmitBidHandler - POST /api/bids, tenderId передаётся в теле
func (h *Handler) SubmitBidHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var in models.BidInput
	if !decodeBody(w, r, &in) {
		return
	}

	bid, err := h.Bids.SubmitBid(ctx, caller, in.TenderID, in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusCreated, bid)
}

// ListContractorBidsHandler - GET /api/bids/my-bids
func (h *Handler) ListContractorBidsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	bids, err := h.Bids.ListBidsForContractor(ctx, caller)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, bids)
}

// ListTenderBidsHandler - GET /api/bids/tender/{tenderId}?sort=amount|submitted
func (h *Handler) ListTenderBidsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	order, err := services.ParseBidOrder(r.URL.Query().Get("sort"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	bids, err := h.Bids.ListBidsForTender(ctx, caller, chi.URLParam(r, "tenderId"), order)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, bids)
}

// GetBidHandler - GET /api/bids/{bidId}
func (h *Handler) GetBidHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	bid, err := h.Bids.GetBid(ctx, caller, chi.URLParam(r, "bidId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, bid)
}

type bidDecisionRequest struct {
	Status string `json:"status"`
}

// DecideBidHandler - PUT /api/bids/{bidId}/status
func (h *Handler) DecideBidHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req bidDecisionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	bid, err := h.Bids.DecideBid(ctx, caller, chi.URLParam(r, "bidId"), req.Status)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, bid)
}
