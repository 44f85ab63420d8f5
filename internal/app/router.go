package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/optisass/optisass-core/internal/documents"
	"github.com/optisass/optisass-core/internal/payments"
	"github.com/optisass/optisass-core/internal/reconcile"
	"github.com/optisass/optisass-core/internal/reporting"
	"github.com/optisass/optisass-core/internal/stock"
	"github.com/optisass/optisass-core/jobs"
)

// RouterParams aggregates the HTTP handlers mounted by NewRouter.
type RouterParams struct {
	Config    *Config
	Documents *documents.Handler
	Payments  *payments.Handler
	Stock     *stock.Handler
	Reporting *reporting.Handler
	Reconcile *reconcile.Handler
	Jobs      *jobs.Handler
}

// NewRouter assembles the chi router with the shared middleware stack and the
// module route groups.
func NewRouter(p RouterParams) chi.Router {
	r := chi.NewRouter()
	MiddlewareStack(r, p.Config)
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if p.Documents != nil {
		r.Route("/documents", p.Documents.MountRoutes)
	}
	if p.Payments != nil {
		r.Route("/payments", p.Payments.MountRoutes)
	}
	if p.Stock != nil {
		r.Route("/stock", p.Stock.MountRoutes)
	}
	if p.Reporting != nil {
		r.Route("/reports", p.Reporting.MountRoutes)
	}
	if p.Reconcile != nil {
		r.Route("/reconcile", p.Reconcile.MountRoutes)
	}
	if p.Jobs != nil {
		r.Route("/jobs", p.Jobs.MountRoutes)
	}

	return r
}
