package reporting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/optisass/optisass-core/internal/platform/httpx"
)

// Handler wires HTTP endpoints for reporting.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a reporting handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers reporting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/summary", h.summary)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	window, centerID, ok := parseWindowQuery(w, r)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), window, centerID)
	if err != nil {
		h.logger.Error("reporting request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func parseWindowQuery(w http.ResponseWriter, r *http.Request) (Window, int64, bool) {
	var window Window
	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Window", "from must be RFC3339")
			return Window{}, 0, false
		}
		window.From = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Window", "to must be RFC3339")
			return Window{}, 0, false
		}
		window.To = t
	}
	var centerID int64
	if raw := r.URL.Query().Get("center_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Center", "center_id must be numeric")
			return Window{}, 0, false
		}
		centerID = id
	}
	return window, centerID, true
}
