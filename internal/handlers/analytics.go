package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MemberAnalyticsHandler - GET /api/analytics
func (h *Handler) MemberAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	sum, err := h.Analytics.MemberSummary(ctx, caller)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, sum)
}

// TenderAnalyticsHandler - GET /api/analytics/tenders/{tenderId}
func (h *Handler) TenderAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	stats, err := h.Analytics.TenderSummary(ctx, caller, chi.URLParam(r, "tenderId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, stats)
}
