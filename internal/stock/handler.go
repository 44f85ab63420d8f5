package stock

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

// Handler wires HTTP endpoints for the costing ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/inbound", h.inbound)
	r.Post("/outbound", h.outbound)
	r.Post("/movements/{id}/repoint", h.repoint)
	r.Get("/movements", h.list)
	r.Get("/movements/{id}", h.show)
	r.Get("/products/{productID}/cost", h.cost)
}

type inboundRequest struct {
	Code           string  `json:"code"`
	ProductID      int64   `json:"product_id" validate:"required,gt=0"`
	Qty            float64 `json:"qty" validate:"required"`
	UnitCost       float64 `json:"unit_cost"`
	DocumentID     int64   `json:"document_id"`
	Note           string  `json:"note"`
	Actor          string  `json:"actor" validate:"required"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type outboundRequest struct {
	Code           string  `json:"code"`
	ProductID      int64   `json:"product_id" validate:"required,gt=0"`
	Qty            float64 `json:"qty" validate:"required"`
	DocumentID     int64   `json:"document_id" validate:"required,gt=0"`
	Note           string  `json:"note"`
	Actor          string  `json:"actor" validate:"required"`
	IdempotencyKey string  `json:"idempotency_key"`
}

type repointRequest struct {
	ProductID  int64  `json:"product_id"`
	DocumentID int64  `json:"document_id"`
	Actor      string `json:"actor" validate:"required"`
	Reason     string `json:"reason"`
}

func (h *Handler) inbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.PostInbound(r.Context(), InboundInput{
		Code:           req.Code,
		ProductID:      req.ProductID,
		Qty:            req.Qty,
		UnitCost:       req.UnitCost,
		DocumentID:     req.DocumentID,
		Note:           req.Note,
		Actor:          req.Actor,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) outbound(w http.ResponseWriter, r *http.Request) {
	var req outboundRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.PostOutbound(r.Context(), OutboundInput{
		Code:           req.Code,
		ProductID:      req.ProductID,
		Qty:            req.Qty,
		DocumentID:     req.DocumentID,
		Note:           req.Note,
		Actor:          req.Actor,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) repoint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "movement id must be numeric")
		return
	}
	var req repointRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.service.Repoint(r.Context(), RepointInput{
		MovementID: id,
		ProductID:  req.ProductID,
		DocumentID: req.DocumentID,
		Actor:      req.Actor,
		Reason:     req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := MovementFilter{}
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "product_id must be numeric")
			return
		}
		filter.ProductID = id
	}
	if raw := r.URL.Query().Get("document_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "document_id must be numeric")
			return
		}
		filter.DocumentID = id
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Window", "from must be RFC3339")
			return
		}
		filter.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Window", "to must be RFC3339")
			return
		}
		filter.To = t
	}
	movements, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "movement id must be numeric")
		return
	}
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) cost(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	cost, err := h.service.Cost(r.Context(), productID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cost)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrMovementNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: movement", httpx.ErrNotFound))
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Movement", err.Error())
	case errors.Is(err, ErrNegativeStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("stock request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
