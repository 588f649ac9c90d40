package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/firewatch/internal/adapter/api/handler"
	"github.com/V4T54L/firewatch/internal/adapter/api/middleware"
	"github.com/V4T54L/firewatch/internal/usecase"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig lists what the admin router serves. Nil BusAdmin leaves the bus
// administration routes unmounted; nil Metrics leaves /metrics unmounted.
type RouterConfig struct {
	Logger       *slog.Logger
	AdminToken   string
	BusAdmin     *usecase.BusAdminUseCase
	Dispatcher   handler.Dispatcher
	HealthChecks map[string]handler.HealthCheck
	Metrics      http.Handler
}

// NewAdminRouter creates and configures the HTTP router for admin operations.
func NewAdminRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(cfg.Logger))

	r.Method(http.MethodGet, "/health", handler.NewHealthHandler(cfg.HealthChecks, cfg.Logger))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminToken(cfg.AdminToken, cfg.Logger))

		if cfg.BusAdmin != nil {
			admin := handler.NewAdminHandler(cfg.BusAdmin, cfg.Logger)

			r.Get("/consumers", admin.ListConsumers)
			r.Route("/subjects/{subject}/consumers/{consumer}", func(r chi.Router) {
				r.Get("/pending", admin.GetPendingSummary)
				r.Get("/pending/messages", admin.GetPendingMessages)
				r.Post("/ack", admin.AcknowledgeMessages)
			})
			r.Get("/deadletters", admin.ListDeadLetters)
			r.Post("/deadletters/{id}/replay", admin.ReplayDeadLetter)
		}

		if cfg.Dispatcher != nil {
			dispatch := handler.NewDispatchHandler(cfg.Dispatcher, cfg.Logger)
			r.Post("/fires/{fireID}/dispatch", dispatch.Dispatch)
		}
	})

	return r
}
