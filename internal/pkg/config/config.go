package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	BusDriver    string   `env:"BUS_DRIVER" envDefault:"redis"` // redis or kafka
	RedisURL     string   `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	StreamName         string        `env:"STREAM_NAME" envDefault:"FIRE_EVENTS"`
	StreamMaxAge       time.Duration `env:"STREAM_MAX_AGE" envDefault:"168h"`
	ConsumerName       string        `env:"CONSUMER_NAME"`
	ConsumerMaxDeliver int           `env:"CONSUMER_MAX_DELIVER" envDefault:"5"`
	ConsumerAckWait    time.Duration `env:"CONSUMER_ACK_WAIT" envDefault:"30s"`
	ConsumerBatchSize  int64         `env:"CONSUMER_BATCH_SIZE" envDefault:"10"`
	ConsumerBlock      time.Duration `env:"CONSUMER_BLOCK" envDefault:"2s"`

	PostgresURL          string        `env:"POSTGRES_URL,required,notEmpty"`
	PostgresMigrate      bool          `env:"POSTGRES_MIGRATE" envDefault:"false"`
	MunicipalityCacheTTL time.Duration `env:"MUNICIPALITY_CACHE_TTL" envDefault:"5m"`

	ProximityRadiusMeters float64       `env:"PROXIMITY_RADIUS_METERS" envDefault:"10000"`
	DispatchSearchLimit   int           `env:"DISPATCH_SEARCH_LIMIT" envDefault:"25"`
	DispatchQueryTimeout  time.Duration `env:"DISPATCH_QUERY_TIMEOUT" envDefault:"5s"`

	AlertSweepInterval time.Duration `env:"ALERT_SWEEP_INTERVAL" envDefault:"10m"`
	RetentionInterval  time.Duration `env:"RETENTION_INTERVAL" envDefault:"1h"`

	AdminServerAddr   string `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`
	AdminToken        string `env:"ADMIN_TOKEN"`
	MetricsServerAddr string `env:"METRICS_SERVER_ADDR" envDefault:":9090"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.BusDriver {
	case "redis", "kafka":
	default:
		return fmt.Errorf("BUS_DRIVER must be redis or kafka, got %q", c.BusDriver)
	}
	if c.ConsumerMaxDeliver < 1 {
		return fmt.Errorf("CONSUMER_MAX_DELIVER must be at least 1, got %d", c.ConsumerMaxDeliver)
	}
	if c.ConsumerAckWait <= 0 {
		return fmt.Errorf("CONSUMER_ACK_WAIT must be positive, got %s", c.ConsumerAckWait)
	}
	if c.ProximityRadiusMeters <= 0 {
		return fmt.Errorf("PROXIMITY_RADIUS_METERS must be positive, got %v", c.ProximityRadiusMeters)
	}
	if c.DispatchSearchLimit < 1 {
		return fmt.Errorf("DISPATCH_SEARCH_LIMIT must be at least 1, got %d", c.DispatchSearchLimit)
	}
	return nil
}
