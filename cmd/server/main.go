package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/nekogravitycat/futsal-booking-session/internal/app"
	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
	"github.com/nekogravitycat/futsal-booking-session/internal/config"
	"github.com/nekogravitycat/futsal-booking-session/internal/db"
	"github.com/nekogravitycat/futsal-booking-session/internal/payment"
	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/logger"
	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/obs"
	"github.com/nekogravitycat/futsal-booking-session/internal/realtime"
)

var version = "dev"

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.LogLevel, cfg.IsProduction())
	zlog.Logger = log

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load booking time zone")
	}

	shutdownTracer, err := obs.InitTracer(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}

	// Resolution ledger: Postgres when configured, memory otherwise
	ledger := payment.NewMemoryRepository()
	if cfg.DBDSN != "" {
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to db")
		}
		defer pool.Close()

		if err := payment.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare payment ledger")
		}
		ledger = payment.NewPgxRepository(pool)
	} else {
		log.Warn().Msg("DB_DSN not set, payment resolutions are kept in memory")
	}

	conn := newRealtimeConn(ctx, cfg, log)

	container := app.NewContainer(app.Config{
		IsProduction:    cfg.IsProduction(),
		ProdOrigins:     cfg.ProdOrigins,
		JWTSecret:       cfg.JWTSecret,
		Backend:         backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout),
		Conn:            conn,
		Ledger:          ledger,
		Location:        loc,
		SelectionLimit:  cfg.Booking.SelectionLimit,
		Channels:        cfg.Realtime.Channels,
		IdleTTL:         cfg.Booking.SessionIdleTTL,
		SafeView:        cfg.Payment.SafeView,
		SuccessView:     cfg.Payment.SuccessView,
		StaleClaimAfter: cfg.Payment.StaleClaimAfter,
		Logger:          log,
	})

	sweepDone := make(chan struct{})
	go func() {
		container.Sessions.Run(ctx)
		close(sweepDone)
	}()

	// Use http.Server for graceful shutdown
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           container.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run server in separate goroutine
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("realtime", cfg.Realtime.Driver).Msg("server running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for Ctrl+C
	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	<-sweepDone

	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown failed")
	}

	log.Info().Msg("server exited gracefully")
}

// newRealtimeConn builds the configured transport and starts its connection
// loop, which ends with ctx.
func newRealtimeConn(ctx context.Context, cfg *config.Config, log zerolog.Logger) realtime.Conn {
	rc := cfg.Realtime
	switch rc.Driver {
	case "websocket":
		c := realtime.NewWSConn(rc.URL, rc.Token, rc.ReconnectDelay, log)
		go runConn(ctx, c.Run, log)
		return c
	case "amqp":
		c := realtime.NewAMQPConn(rc.URL, rc.Exchange, rc.ReconnectDelay, log)
		go runConn(ctx, c.Run, log)
		return c
	default:
		log.Warn().Msg("realtime driver is memory, only sessions of this process see each other")
		return realtime.NewBus()
	}
}

func runConn(ctx context.Context, run func(context.Context) error, log zerolog.Logger) {
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("realtime connection stopped")
	}
}
