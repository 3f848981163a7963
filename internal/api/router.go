// Package api serves the REST endpoints of the cashflow service and mounts
// its Connect services on the same chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/cashflow/internal/metrics"
	"github.com/mmynk/cashflow/internal/middleware"
	"github.com/mmynk/cashflow/internal/service"
)

// Options configures NewRouter.
type Options struct {
	Obligations *service.ObligationService
	Settlements *service.SettlementService
	Metrics     *metrics.Metrics
	CORSOrigins []string

	// RPC maps Connect path prefixes (as returned by a service's Handler
	// method) to their handlers.
	RPC map[string]http.Handler
}

// NewRouter creates the chi router with all routes mounted.
func NewRouter(opts Options) http.Handler {
	h := &Handlers{
		obligations: opts.Obligations,
		settlements: opts.Settlements,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(opts.CORSOrigins))

	r.Get("/", h.Root)

	// REST API.
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.AddTransactions)
		r.Get("/", h.ListTransactions)
	})
	r.Post("/settle/", h.Settle)

	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	// Connect services.
	for path, handler := range opts.RPC {
		r.Handle(path+"*", handler)
	}

	return r
}
