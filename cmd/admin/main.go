package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/firewatch/internal/adapter/api"
	"github.com/V4T54L/firewatch/internal/adapter/api/handler"
	"github.com/V4T54L/firewatch/internal/adapter/metrics"
	"github.com/V4T54L/firewatch/internal/app"
	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/pkg/config"
	"github.com/V4T54L/firewatch/internal/pkg/logger"
	"github.com/V4T54L/firewatch/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	repos, err := app.OpenRepositories(ctx, cfg, log, m)
	if err != nil {
		log.Error("failed to open repositories", "error", err)
		os.Exit(1)
	}
	defer repos.Close()

	bus, err := app.OpenBus(ctx, cfg, log, m)
	if err != nil {
		log.Error("failed to connect to event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	stream := domain.DefaultStreamConfig(cfg.StreamName)
	stream.MaxAge = cfg.StreamMaxAge
	if err := bus.EnsureStream(ctx, stream); err != nil {
		log.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}

	publisher := usecase.NewPublisher(bus, log)
	dispatcher := usecase.NewDispatcher(
		repos.Fires, repos.Responders, repos.Assignments, publisher,
		cfg.DispatchSearchLimit, cfg.DispatchQueryTimeout, log, m,
	)

	var busAdmin *usecase.BusAdminUseCase
	if repo := bus.Admin(); repo != nil {
		busAdmin = usecase.NewBusAdminUseCase(repo)
	} else {
		log.Warn("bus administration routes disabled for this driver", "bus_driver", cfg.BusDriver)
	}

	router := api.NewAdminRouter(api.RouterConfig{
		Logger:     log,
		AdminToken: cfg.AdminToken,
		BusAdmin:   busAdmin,
		Dispatcher: dispatcher,
		HealthChecks: map[string]handler.HealthCheck{
			"bus":      bus.Ping,
			"postgres": repos.DB.PingContext,
		},
		Metrics: promhttp.Handler(),
	})

	server := &http.Server{
		Addr:         cfg.AdminServerAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Info("starting admin server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down admin server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server shutdown failed", "error", err)
	}
	log.Info("admin server shut down gracefully")
}
