package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"

	"tenderhub/internal/services"
	"tenderhub/models"
)

// Ограничение размера тела, чтобы избежать DoS
const maxBodyBytes = 1 << 20

// Handler связывает HTTP с сервисами
type Handler struct {
	Tenders   TenderService
	Bids      BidService
	Analytics AnalyticsService
	Logger    *slog.Logger
	Timeout   time.Duration
}

// NewHandler создает новый Handler
func NewHandler(tenders TenderService, bids BidService, analytics AnalyticsService, logger *slog.Logger, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Tenders:   tenders,
		Bids:      bids,
		Analytics: analytics,
		Logger:    logger,
		Timeout:   timeout,
	}
}

// Routes собирает роутер со всеми эндпоинтами
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		r.Group(func(r chi.Router) {
			r.Use(Identify)

			r.Route("/tenders", func(r chi.Router) {
				r.Post("/", h.CreateTenderHandler)
				r.Get("/", h.ListVisibleTendersHandler)
				r.Get("/my", h.ListOwnerTendersHandler)
				r.Get("/all", h.ListAllTendersHandler)
				r.Get("/{tenderId}", h.GetTenderHandler)
				r.Put("/{tenderId}", h.UpdateTenderHandler)
				r.Put("/{tenderId}/approval", h.SetApprovalStatusHandler)
				r.Put("/{tenderId}/close", h.CloseTenderHandler)
			})

			r.Route("/bids", func(r chi.Router) {
				r.Post("/", h.SubmitBidHandler)
				r.Get("/my-bids", h.ListContractorBidsHandler)
				r.Get("/tender/{tenderId}", h.ListTenderBidsHandler)
				r.Get("/{bidId}", h.GetBidHandler)
				r.Put("/{bidId}/status", h.DecideBidHandler)
			})

			r.Get("/analytics", h.MemberAnalyticsHandler)
			r.Get("/analytics/tenders/{tenderId}", h.TenderAnalyticsHandler)
		})
	})
	return r
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ErrorResponse - тело ответа с ошибкой
type ErrorResponse struct {
	Reason string            `json:"reason"`
	Fields map[string]string `json:"fields,omitempty"`
}

// requestContext - контекст запроса с таймаутом и вызывающий пользователь
func (h *Handler) requestContext(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc, models.Identity, bool) {
	caller, ok := IdentityFrom(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, "caller identity is required", nil)
		return nil, nil, models.Identity{}, false
	}
	if h.Timeout <= 0 {
		ctx, cancel := context.WithCancel(r.Context())
		return ctx, cancel, caller, true
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	return ctx, cancel, caller, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return true
}

func sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, status int, reason string, fields map[string]string) {
	sendJSON(w, status, ErrorResponse{Reason: reason, Fields: fields})
}

// handleError переводит ошибки сервисов в HTTP-коды
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		sendError(w, http.StatusBadRequest, "validation failed", verr.FieldMap())
	case errors.Is(err, services.ErrForbidden):
		sendError(w, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, services.ErrNotFound):
		sendError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, services.ErrDuplicateBid),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrConflict):
		sendError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, services.ErrIneligibleTender):
		sendError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		h.Logger.Warn("request timed out", "request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path)
		sendError(w, http.StatusServiceUnavailable, "request timed out", nil)
	default:
		h.Logger.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		sendError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

// parsePage разбирает limit и offset из query
func parsePage(r *http.Request) (services.Page, map[string]string) {
	var (
		page   services.Page
		fields = map[string]string{}
	)
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil {
			fields["limit"] = "limit must be an integer"
		}
		page.Limit = l
	}
	if s := q.Get("offset"); s != "" {
		o, err := strconv.Atoi(s)
		if err != nil {
			fields["offset"] = "offset must be an integer"
		}
		page.Offset = o
	}
	if len(fields) > 0 {
		return page, fields
	}
	return page, nil
}
