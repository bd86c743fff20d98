package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers booking-session routes.
func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/sessions")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.POST("", h.Create)
		group.GET("/:id", h.Get)
		group.DELETE("/:id", h.Delete)
		group.PUT("/:id/view", h.SetView)
		group.POST("/:id/selection", h.Toggle)
		group.POST("/:id/checkout", h.OpenCheckout)
		group.DELETE("/:id/checkout", h.CancelCheckout)
		group.POST("/:id/bookings", h.Submit)
	}
}
