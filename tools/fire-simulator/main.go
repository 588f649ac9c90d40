package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/time/rate"

	"github.com/V4T54L/firewatch/internal/app"
	"github.com/V4T54L/firewatch/internal/domain"
	"github.com/V4T54L/firewatch/internal/pkg/config"
	"github.com/V4T54L/firewatch/internal/pkg/logger"
	"github.com/V4T54L/firewatch/internal/usecase"
)

func main() {
	driver := flag.String("driver", "redis", "Bus driver: redis or kafka")
	redisURL := flag.String("redis-url", "redis://localhost:6379/0", "Redis URL")
	brokers := flag.String("brokers", "localhost:9092", "Comma separated Kafka brokers")
	stream := flag.String("stream", domain.DefaultStreamName, "Stream name")
	concurrency := flag.Int("c", 4, "Number of concurrent publishers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the simulation")
	rps := flag.Float64("rps", 5, "Events per second limit")
	mixFlag := flag.String("mix", "detected=3,risk=5,spread=2", "Relative weights of event kinds")
	fireIDs := flag.String("fire-ids", "", "Comma separated existing fire ids to reference (random ids when empty)")
	lon := flag.Float64("lon", -122.4, "Centre longitude")
	lat := flag.Float64("lat", 37.7, "Centre latitude")
	spread := flag.Float64("spread", 0.2, "Scatter around the centre, in degrees")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	flag.Parse()

	log := logger.New("info", "text")

	mix, err := parseMix(*mixFlag)
	if err != nil {
		log.Error("invalid mix", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	cfg := &config.Config{
		BusDriver:    *driver,
		RedisURL:     *redisURL,
		KafkaBrokers: strings.Split(*brokers, ","),
		StreamName:   *stream,
		ConsumerName: "fire-simulator",
	}
	bus, err := app.OpenBus(ctx, cfg, log, nil)
	if err != nil {
		log.Error("failed to connect to event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	if err := bus.EnsureStream(ctx, domain.DefaultStreamConfig(*stream)); err != nil {
		log.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}

	publisher := usecase.NewPublisher(bus, log)
	limiter := rate.NewLimiter(rate.Limit(*rps), max(1, int(*rps)))
	ids := parseFireIDs(*fireIDs)

	log.Info("starting fire simulation", "driver", *driver, "concurrency", *concurrency, "duration", *duration, "rps", *rps)

	var (
		wg                  sync.WaitGroup
		published, failures atomic.Int64
	)
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			gen := newGenerator(*seed+uint64(workerID), orb.Point{*lon, *lat}, *spread, ids)

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				var err error
				switch gen.pick(mix) {
				case "risk":
					_, err = publisher.PublishFireRiskPredicted(ctx, gen.riskPredicted())
				case "spread":
					_, err = publisher.PublishFireSpread(ctx, gen.fireSpread())
				default:
					_, err = publisher.PublishFireDetected(ctx, gen.fireDetected())
				}
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					failures.Add(1)
					log.Warn("publish failed", "worker", workerID, "error", err)
					continue
				}
				published.Add(1)
			}
		}(i)
	}

	wg.Wait()

	log.Info("fire simulation finished",
		"published", published.Load(),
		"failures", failures.Load(),
		"actual_rps", float64(published.Load())/duration.Seconds(),
	)
}
