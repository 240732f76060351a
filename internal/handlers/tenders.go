package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tenderhub/internal/services"
	"tenderhub/models"
)

// CreateTenderHandler обрабатывает POST /api/tenders
func (h *Handler) CreateTenderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var in models.TenderInput
	if !decodeBody(w, r, &in) {
		return
	}

	tender, err := h.Tenders.CreateTender(ctx, caller, in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusCreated, tender)
}

// ListVisibleTendersHandler - GET /api/tenders, опубликованные тендеры
func (h *Handler) ListVisibleTendersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, _, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	page, fields := parsePage(r)
	if fields != nil {
		sendError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	tenders, err := h.Tenders.ListVisibleTenders(ctx, services.TenderQuery{
		ServiceTypes: r.URL.Query()["service_type"],
		Page:         page,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tenders)
}

// ListOwnerTendersHandler - GET /api/tenders/my
func (h *Handler) ListOwnerTendersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	tenders, err := h.Tenders.ListOwnerTenders(ctx, caller)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tenders)
}

// ListAllTendersHandler - GET /api/tenders/all, очередь модерации
func (h *Handler) ListAllTendersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	page, fields := parsePage(r)
	if fields != nil {
		sendError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	tenders, err := h.Tenders.ListAllTenders(ctx, caller, services.TenderQuery{
		ServiceTypes:   r.URL.Query()["service_type"],
		ApprovalStatus: r.URL.Query().Get("approval_status"),
		Page:           page,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tenders)
}

// GetTenderHandler - GET /api/tenders/{tenderId}
func (h *Handler) GetTenderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	tender, err := h.Tenders.GetTender(ctx, caller, chi.URLParam(r, "tenderId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tender)
}

// UpdateTenderHandler - PUT /api/tenders/{tenderId}
func (h *Handler) UpdateTenderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var in models.TenderInput
	if !decodeBody(w, r, &in) {
		return
	}

	tender, err := h.Tenders.UpdateTender(ctx, caller, chi.URLParam(r, "tenderId"), in)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tender)
}

type approvalRequest struct {
	ApprovalStatus string `json:"approvalStatus"`
}

// SetApprovalStatusHandler - PUT /api/tenders/{tenderId}/approval
func (h *Handler) SetApprovalStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req approvalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tender, err := h.Tenders.SetApprovalStatus(ctx, caller, chi.URLParam(r, "tenderId"), req.ApprovalStatus)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tender)
}

// CloseTenderHandler - PUT /api/tenders/{tenderId}/close
func (h *Handler) CloseTenderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, caller, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	tender, err := h.Tenders.CloseTender(ctx, caller, chi.URLParam(r, "tenderId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, tender)
}
