package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	TransitionStrict     = "strict"
	TransitionPermissive = "permissive"

	EventsNone  = "none"
	EventsRedis = "redis"
	EventsKafka = "kafka"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	ServiceName          string        `mapstructure:"SERVICE_NAME"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	StatusTransitionMode string        `mapstructure:"STATUS_TRANSITION_MODE"`
	AllowNegativeStock   bool          `mapstructure:"ALLOW_NEGATIVE_STOCK"`
	ExposeErrorDetails   bool          `mapstructure:"EXPOSE_ERROR_DETAILS"`
	EnableSQLConsole     bool          `mapstructure:"ENABLE_SQL_CONSOLE"`
	EventsBackend        string        `mapstructure:"EVENTS_BACKEND"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	RedisChannel         string        `mapstructure:"REDIS_CHANNEL"`
	KafkaBrokers         []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic           string        `mapstructure:"KAFKA_TOPIC"`
	OTLPEndpoint         string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

var keys = []string{
	"PORT", "ENV", "SERVICE_NAME", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
	"STATUS_TRANSITION_MODE", "ALLOW_NEGATIVE_STOCK", "EXPOSE_ERROR_DETAILS",
	"ENABLE_SQL_CONSOLE", "EVENTS_BACKEND", "REDIS_URL", "REDIS_CHANNEL",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVICE_NAME", "clinic-server")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("STATUS_TRANSITION_MODE", TransitionStrict)
	v.SetDefault("ALLOW_NEGATIVE_STOCK", true)
	v.SetDefault("EXPOSE_ERROR_DETAILS", false)
	v.SetDefault("ENABLE_SQL_CONSOLE", false)
	v.SetDefault("EVENTS_BACKEND", EventsNone)
	v.SetDefault("REDIS_CHANNEL", "clinic.events")
	v.SetDefault("KAFKA_TOPIC", "clinic.events")

	// Unmarshal only sees keys viper knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.EnableSQLConsole {
		log.Warn().Msg("ENABLE_SQL_CONSOLE is set: POST /api/query executes caller-supplied SQL")
	}
	if cfg.ExposeErrorDetails {
		log.Warn().Msg("EXPOSE_ERROR_DETAILS is set: raw store errors are returned to clients")
	}

	return cfg, nil
}

// splitList parses comma separated env values, trimming blanks.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// StrictTransitions reports whether appointment status changes are checked
// against the transition table.
func (c *Config) StrictTransitions() bool {
	return c.StatusTransitionMode != TransitionPermissive
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.StatusTransitionMode {
	case TransitionStrict, TransitionPermissive:
	default:
		return fmt.Errorf("STATUS_TRANSITION_MODE must be %q or %q, got %q",
			TransitionStrict, TransitionPermissive, c.StatusTransitionMode)
	}

	switch c.EventsBackend {
	case EventsNone, "":
	case EventsRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when EVENTS_BACKEND is %q", EventsRedis)
		}
	case EventsKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_BACKEND is %q", EventsKafka)
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_TOPIC is required when EVENTS_BACKEND is %q", EventsKafka)
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be one of none, redis, kafka, got %q", c.EventsBackend)
	}

	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", c.DBMinConns)
	}

	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive when RATE_LIMIT_RPS is set, got %d", c.RateLimitBurst)
	}

	if c.IsProduction() && c.EnableSQLConsole {
		return fmt.Errorf("ENABLE_SQL_CONSOLE must not be set in production")
	}
	if c.IsProduction() && c.ExposeErrorDetails {
		return fmt.Errorf("EXPOSE_ERROR_DETAILS must not be set in production")
	}

	return nil
}
