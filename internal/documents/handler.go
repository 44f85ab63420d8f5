package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/optisass/optisass-core/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the documents module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a documents handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.show)
	r.Get("/{id}/status", h.status)
	r.Get("/{id}/classification", h.classification)
	r.Get("/{id}/reclassifications", h.history)
	r.Post("/{id}/reclassify", h.reclassify)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/archive", h.archive)
	r.Post("/{id}/reinstate", h.reinstate)
}

type documentResponse struct {
	ID                 int64      `json:"id"`
	Number             string     `json:"number"`
	DeclaredType       string     `json:"declared_type"`
	Category           Category   `json:"category"`
	Status             Status     `json:"status"`
	TotalAmount        float64    `json:"total_amount"`
	OutstandingBalance float64    `json:"outstanding_balance"`
	IssueDate          *time.Time `json:"issue_date,omitempty"`
	CenterID           int64      `json:"center_id"`
	ClientID           int64      `json:"client_id"`
}

type reclassifyRequest struct {
	To        string `json:"to" validate:"required,oneof=INVOICE ORDER QUOTE"`
	NewNumber string `json:"new_number"`
	Actor     string `json:"actor" validate:"required"`
	Reason    string `json:"reason"`
}

type adminActionRequest struct {
	Actor  string `json:"actor" validate:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("center_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Center", "center_id must be numeric")
			return
		}
		f.CenterID = id
	}
	f.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	f.PerPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))

	res, err := h.service.List(r.Context(), f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	out := make([]documentResponse, 0, len(res.Documents))
	for i := range res.Documents {
		out = append(out, toDocumentResponse(&res.Documents[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"documents": out, "pagination": res.Pagination})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	status, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]Status{"status": status})
}

func (h *Handler) classification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	category, err := h.service.Classification(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]Category{"category": category})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	recs, err := h.service.History(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reclassifications": recs})
}

func (h *Handler) reclassify(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req reclassifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.Reclassify(r.Context(), ReclassifyInput{
		DocumentID: id,
		To:         Category(req.To),
		NewNumber:  req.NewNumber,
		Actor:      req.Actor,
		Reason:     req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.service.Cancel)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.service.Archive)
}

func (h *Handler) reinstate(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.service.Reinstate)
}

func (h *Handler) adminAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, input AdminActionInput) (*Document, error)) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req adminActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	doc, err := fn(r.Context(), AdminActionInput{DocumentID: id, Actor: req.Actor, Reason: req.Reason})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: document", httpx.ErrNotFound))
	case errors.Is(err, ErrInvalidCategory), errors.Is(err, ErrCreditNoteTarget), errors.Is(err, ErrSameCategory),
		errors.Is(err, ErrTerminalStatus), errors.Is(err, ErrNotTerminal), errors.Is(err, ErrClassificationAmbiguous):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	default:
		h.logger.Error("documents request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toDocumentResponse(doc *Document) documentResponse {
	return documentResponse{
		ID:                 doc.ID,
		Number:             doc.Number,
		DeclaredType:       doc.DeclaredType,
		Category:           ClassifyDocument(doc),
		Status:             doc.Status,
		TotalAmount:        doc.TotalAmount,
		OutstandingBalance: doc.OutstandingBalance,
		IssueDate:          doc.IssueDate,
		CenterID:           doc.CenterID,
		ClientID:           doc.ClientID,
	}
}
