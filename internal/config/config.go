package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	ProdOrigins string `envconfig:"PROD_ORIGINS" default:""`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// DBDSN is optional. When empty, payment resolutions are kept in memory.
	DBDSN     string `envconfig:"DB_DSN"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	Backend  BackendConfig
	Realtime RealtimeConfig
	Booking  BookingConfig
	Payment  PaymentConfig

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// BackendConfig points at the platform REST API.
type BackendConfig struct {
	BaseURL string        `envconfig:"BACKEND_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`
}

// RealtimeConfig selects and configures the realtime channel transport.
type RealtimeConfig struct {
	Driver         string        `envconfig:"REALTIME_DRIVER" default:"memory"`
	URL            string        `envconfig:"REALTIME_URL"`
	Token          string        `envconfig:"REALTIME_TOKEN"`
	Exchange       string        `envconfig:"REALTIME_EXCHANGE" default:"futsal.realtime"`
	Channels       []string      `envconfig:"REALTIME_CHANNELS" default:"new_booking,new_booking_points,booking_cancelled"`
	ReconnectDelay time.Duration `envconfig:"REALTIME_RECONNECT_DELAY" default:"2s"`
}

type BookingConfig struct {
	TimeZone       string        `envconfig:"BOOKING_TIMEZONE" default:"Asia/Kathmandu"`
	SelectionLimit int           `envconfig:"SELECTION_LIMIT" default:"3"`
	SessionIdleTTL time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
}

type PaymentConfig struct {
	SafeView        string        `envconfig:"PAYMENT_SAFE_VIEW" default:"/"`
	SuccessView     string        `envconfig:"PAYMENT_SUCCESS_VIEW" default:"/user/bookings"`
	// StaleClaimAfter bounds how long a callback may stay claimed without an outcome.
	StaleClaimAfter time.Duration `envconfig:"PAYMENT_STALE_CLAIM_AFTER" default:"2m"`
}

// IsProduction reports whether APP_ENV selects the production profile.
func (c *Config) IsProduction() bool {
	return c.AppEnv == PROD_STRING
}

// Location resolves BOOKING_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Booking.TimeZone)
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.IsProduction() && c.ProdOrigins == "" {
		return fmt.Errorf("PROD_ORIGINS is required when APP_ENV=%s", PROD_STRING)
	}

	switch c.Realtime.Driver {
	case "memory":
	case "websocket", "amqp":
		if c.Realtime.URL == "" {
			return fmt.Errorf("REALTIME_URL is required for driver %q", c.Realtime.Driver)
		}
	default:
		return fmt.Errorf("invalid REALTIME_DRIVER %q", c.Realtime.Driver)
	}

	if len(c.Realtime.Channels) == 0 {
		return fmt.Errorf("REALTIME_CHANNELS must name at least one channel")
	}

	if c.Booking.SelectionLimit < 1 {
		return fmt.Errorf("invalid SELECTION_LIMIT: %d", c.Booking.SelectionLimit)
	}

	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("invalid BACKEND_TIMEOUT: %s", c.Backend.Timeout)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE: %w", err)
	}

	return nil
}
