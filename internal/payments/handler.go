package payments

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/optisass/optisass-core/internal/platform/httpx"
	"github.com/optisass/optisass-core/internal/shared"
)

// Handler wires HTTP endpoints for the payment ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a payments handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.apply)
	r.Get("/{id}", h.show)
	r.Post("/{id}/reverse", h.reverse)
	r.Post("/{id}/edit", h.edit)
	r.Get("/duplicates", h.duplicates)
	r.Get("/document/{documentID}", h.byDocument)
}

type applyRequest struct {
	DocumentID     int64      `json:"document_id" validate:"required,gt=0"`
	Amount         float64    `json:"amount" validate:"required"`
	Method         string     `json:"method" validate:"required"`
	PaidAt         *time.Time `json:"paid_at"`
	Reference      string     `json:"reference"`
	Bank           string     `json:"bank"`
	ThirdParty     string     `json:"third_party"`
	Actor          string     `json:"actor" validate:"required"`
	IdempotencyKey string     `json:"idempotency_key"`
}

type reverseRequest struct {
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason"`
}

type editRequest struct {
	NewAmount float64 `json:"new_amount" validate:"required"`
	Actor     string  `json:"actor" validate:"required"`
	Reason    string  `json:"reason"`
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := ApplyInput{
		DocumentID:     req.DocumentID,
		Amount:         req.Amount,
		Method:         req.Method,
		Reference:      req.Reference,
		Bank:           req.Bank,
		ThirdParty:     req.ThirdParty,
		Actor:          req.Actor,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.PaidAt != nil {
		input.PaidAt = *req.PaidAt
	}
	res, err := h.service.Apply(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment id must be numeric")
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) byDocument(w http.ResponseWriter, r *http.Request) {
	documentID, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be numeric")
		return
	}
	list, err := h.service.ListByDocument(r.Context(), documentID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": list})
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment id must be numeric")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.service.Reverse(r.Context(), ReverseInput{PaymentID: id, Actor: req.Actor, Reason: req.Reason})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "payment id must be numeric")
		return
	}
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	res, err := h.service.Edit(r.Context(), EditInput{PaymentID: id, NewAmount: req.NewAmount, Actor: req.Actor, Reason: req.Reason})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) duplicates(w http.ResponseWriter, r *http.Request) {
	q := DuplicateQuery{}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Window", "from must be RFC3339")
			return
		}
		q.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Window", "to must be RFC3339")
			return
		}
		q.To = t
	}
	if raw := r.URL.Query().Get("center_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Center", "center_id must be numeric")
			return
		}
		q.CenterID = id
	}
	if raw := r.URL.Query().Get("granularity"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Granularity", "granularity must be a positive duration")
			return
		}
		q.Granularity = d
	}
	groups, err := h.service.FindDuplicates(r.Context(), q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: document", httpx.ErrNotFound))
	case errors.Is(err, ErrPaymentNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: payment", httpx.ErrNotFound))
	case errors.Is(err, ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
	case errors.Is(err, ErrOverpayment), errors.Is(err, ErrTerminalDocument):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrConcurrentModification), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("payments request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
