package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/futsal-booking-session/internal/api"
	"github.com/nekogravitycat/futsal-booking-session/internal/auth"
	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
	"github.com/nekogravitycat/futsal-booking-session/internal/payment"
	paymentHttp "github.com/nekogravitycat/futsal-booking-session/internal/payment/http"
	"github.com/nekogravitycat/futsal-booking-session/internal/realtime"
	"github.com/nekogravitycat/futsal-booking-session/internal/session"
	sessionHttp "github.com/nekogravitycat/futsal-booking-session/internal/session/http"
)

// Config holds the dependencies and settings required to start the application.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	JWTSecret    string

	Backend *backend.Client
	Conn    realtime.Conn
	Ledger  payment.Repository

	Location       *time.Location
	SelectionLimit int
	Channels       []string
	IdleTTL        time.Duration

	SafeView        string
	SuccessView     string
	StaleClaimAfter time.Duration

	Logger zerolog.Logger
}

// Container holds the initialized components that are needed externally.
type Container struct {
	Router   *gin.Engine
	Sessions *session.Manager
}

// NewContainer initializes all modules and returns the container.
func NewContainer(cfg Config) *Container {
	// Init Components
	jwtManager := auth.NewJWTManager(cfg.JWTSecret)

	// Session Module
	sessions := session.NewManager(session.ManagerConfig{
		Conn: cfg.Conn,
		Backend: func(token string) session.Backend {
			return cfg.Backend.WithToken(token)
		},
		Location:       cfg.Location,
		SelectionLimit: cfg.SelectionLimit,
		Channels:       cfg.Channels,
		IdleTTL:        cfg.IdleTTL,
		Logger:         cfg.Logger,
	})

	// Payment Module
	resolver := payment.NewResolver(cfg.Backend, cfg.Ledger, payment.Config{
		SafeView:        cfg.SafeView,
		SuccessView:     cfg.SuccessView,
		StaleClaimAfter: cfg.StaleClaimAfter,
		Logger:          cfg.Logger,
	})

	// API Router Config
	routerParams := api.Config{
		IsProduction:   cfg.IsProduction,
		ProdOrigins:    cfg.ProdOrigins,
		JWTManager:     jwtManager,
		SessionHandler: sessionHttp.NewHandler(sessions),
		PaymentHandler: paymentHttp.NewHandler(resolver, cfg.Logger),
	}

	// Router
	router := api.NewRouter(routerParams)

	return &Container{
		Router:   router,
		Sessions: sessions,
	}
}
