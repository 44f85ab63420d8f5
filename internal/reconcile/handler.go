package reconcile

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/optisass/optisass-core/internal/platform/httpx"
	"github.com/optisass/optisass-core/internal/reporting"
)

// Handler wires HTTP endpoints for reconciliation.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a reconcile handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reconcile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/report", h.report)
}

type reportRequest struct {
	From      *time.Time `json:"from"`
	To        *time.Time `json:"to"`
	CenterID  int64      `json:"center_id"`
	Reference Reference  `json:"reference"`
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	var window reporting.Window
	if req.From != nil {
		window.From = *req.From
	}
	if req.To != nil {
		window.To = *req.To
	}
	report, err := h.service.Report(r.Context(), window, req.CenterID, req.Reference)
	if err != nil {
		h.logger.Error("reconcile request failed",
			slog.String("path", r.URL.Path),
			slog.String("center_id", strconv.FormatInt(req.CenterID, 10)),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
