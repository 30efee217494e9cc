package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/internal/interfaces/http/handlers"
	"github.com/turtacn/toda-franchise/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree. Nil handlers leave their routes unmounted.
type RouterConfig struct {
	FranchiseHandler   *handlers.FranchiseHandler
	RateSheetHandler   *handlers.RateSheetHandler
	AssociationHandler *handlers.AssociationHandler
	HealthHandler      *handlers.HealthHandler

	CORS          *middleware.CORSConfig
	Logging       middleware.LoggingConfig
	HTTPMetrics   middleware.HTTPMetrics
	MetricsPath   string
	MetricsServer http.Handler

	Logger logging.Logger
}

// NewRouter constructs the HTTP route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	if cfg.HTTPMetrics != nil {
		r.Use(middleware.Metrics(cfg.HTTPMetrics))
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsServer != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsServer)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.RequireMember(cfg.Logger))

		registerFranchiseRoutes(api, cfg.FranchiseHandler)
		registerRenewalRoutes(api, cfg.FranchiseHandler)
		registerRateSheetRoutes(api, cfg.RateSheetHandler)
		registerAssociationRoutes(api, cfg.AssociationHandler)
	})

	return r
}

var (
	adminOnly   = middleware.RequireRole(middleware.RoleAdmin)
	cashierDesk = middleware.RequireRole(middleware.RoleTreasurer, middleware.RoleAdmin)
)

// registerFranchiseRoutes mounts /franchises. Members see their own records;
// approval decisions belong to admins and payments to the treasurer.
func registerFranchiseRoutes(r chi.Router, h *handlers.FranchiseHandler) {
	if h == nil {
		return
	}
	r.Route("/franchises", func(fr chi.Router) {
		fr.Get("/", h.List)
		fr.Post("/", h.Create)
		fr.Get("/plate/{plateNo}", h.GetByPlate)

		fr.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Put("/", h.Update)
			item.Delete("/", h.Delete)
			item.Get("/status", h.Status)
			item.Get("/rates", h.Rates)

			item.With(adminOnly).Patch("/approval-status", h.FranchiseTransition)
			item.With(cashierDesk).Patch("/payment", h.FranchisePayment)
			item.With(cashierDesk).Get("/treasurer", h.Treasurer)
		})
	})
}

// registerRenewalRoutes mounts /franchise-renewals.
func registerRenewalRoutes(r chi.Router, h *handlers.FranchiseHandler) {
	if h == nil {
		return
	}
	r.Route("/franchise-renewals", func(rr chi.Router) {
		rr.Post("/", h.CreateRenewal)

		rr.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.GetRenewal)
			item.Put("/", h.UpdateRenewal)
			item.Delete("/", h.DeleteRenewal)

			item.With(adminOnly).Patch("/approval-status", h.RenewalTransition)
			item.With(cashierDesk).Patch("/payment", h.RenewalPayment)
		})
	})
}

// registerRateSheetRoutes mounts /rate-sheets. Reads are open to every
// member; writes are admin only.
func registerRateSheetRoutes(r chi.Router, h *handlers.RateSheetHandler) {
	if h == nil {
		return
	}
	r.Route("/rate-sheets", func(rs chi.Router) {
		rs.Get("/", h.List)
		rs.Get("/latest", h.Latest)
		rs.Get("/history", h.History)
		rs.Get("/{id}", h.Get)

		rs.Group(func(w chi.Router) {
			w.Use(adminOnly)
			w.Post("/", h.Create)
			w.Put("/{id}", h.Update)
			w.Delete("/{id}", h.Delete)
		})
	})
}

// registerAssociationRoutes mounts /associations.
func registerAssociationRoutes(r chi.Router, h *handlers.AssociationHandler) {
	if h == nil {
		return
	}
	r.Route("/associations", func(ar chi.Router) {
		ar.Get("/", h.List)
		ar.Get("/{id}", h.Get)
		ar.With(adminOnly).Post("/", h.Create)
	})
}
