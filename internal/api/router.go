package api

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/futsal-booking-session/internal/auth"
	paymentHttp "github.com/nekogravitycat/futsal-booking-session/internal/payment/http"
	sessionHttp "github.com/nekogravitycat/futsal-booking-session/internal/session/http"
)

// Config holds what the router needs to build its handlers.
type Config struct {
	IsProduction   bool
	ProdOrigins    string
	JWTManager     *auth.JWTManager
	SessionHandler *sessionHttp.Handler
	PaymentHandler *paymentHttp.Handler
}

// NewRouter initializes the HTTP router engine.
// It is responsible for assembling middleware (CORS, Logger, Auth) and registering routes for various modules.
func NewRouter(cfg Config) *gin.Engine {
	r := gin.New()

	// Global Middleware:
	// - Logger: Logs request information to the console.
	// - Recovery: Captures panics to prevent server crashes and returns a 500 error.
	r.Use(gin.Logger(), gin.Recovery())

	// Configure CORS (Cross-Origin Resource Sharing).
	config := cors.DefaultConfig()
	config.AllowOrigins = allowedOrigins(cfg.IsProduction, cfg.ProdOrigins)
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// authMiddleware: Validates if the request contains a valid JWT.
	authMiddleware := auth.AuthRequired(cfg.JWTManager)

	// Register API routes under /v1
	v1 := r.Group("/v1")
	{
		sessionHttp.RegisterRoutes(v1, cfg.SessionHandler, authMiddleware)
		paymentHttp.RegisterRoutes(v1, cfg.PaymentHandler)
	}

	return r
}

// allowedOrigins reads PROD_ORIGINS (comma separated) in production and
// allows the local frontend otherwise.
func allowedOrigins(production bool, prodOrigins string) []string {
	if !production {
		return []string{"http://localhost:3000", "http://localhost:5173"}
	}
	var out []string
	for _, o := range strings.Split(prodOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
