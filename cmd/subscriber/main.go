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
	"golang.org/x/sync/errgroup"

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
	log.Info("starting subscriber", "bus_driver", cfg.BusDriver, "consumer_name", app.ConsumerName(cfg))

	if err := run(cfg, log); err != nil {
		log.Error("subscriber stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("subscriber shut down gracefully")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	repos, err := app.OpenRepositories(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer repos.Close()

	bus, err := app.OpenBus(ctx, cfg, log, m)
	if err != nil {
		return err
	}
	defer bus.Close()

	stream := domain.DefaultStreamConfig(cfg.StreamName)
	stream.MaxAge = cfg.StreamMaxAge
	consumers := domain.DefaultConsumers(cfg.ConsumerMaxDeliver, cfg.ConsumerAckWait)
	if err := usecase.SetupBus(ctx, bus, stream, consumers); err != nil {
		return err
	}

	publisher := usecase.NewPublisher(bus, log)
	handlers := map[string]usecase.Handler{
		domain.ConsumerFireDetected: usecase.NewFireDetectedFanout(publisher, log),
		domain.ConsumerNotification: usecase.NewNotificationFanout(
			repos.Residents, repos.Responders, repos.Municipalities, repos.Notifications,
			cfg.ProximityRadiusMeters, log, m,
		),
		domain.ConsumerAlert: usecase.NewAlertFanout(repos.Alerts, log, m),
		domain.ConsumerAssignment: usecase.NewAssignmentFanout(
			repos.Responders, repos.Residents, repos.Notifications, repos.Alerts, publisher,
			cfg.ProximityRadiusMeters, log, m,
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		runner := usecase.NewConsumerRunner(bus, c, handlers[c.Durable], log, m)
		g.Go(func() error { return runner.Run(gctx) })
	}

	sweeper := usecase.NewAlertSweeper(repos.Alerts, log)
	g.Go(func() error { return sweeper.Run(gctx, cfg.AlertSweepInterval) })
	g.Go(func() error { return bus.RunRetention(gctx, cfg.RetentionInterval) })

	metricsServer := &http.Server{
		Addr:              cfg.MetricsServerAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info("starting metrics server", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down subscriber...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
