package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the gateway return route. The browser arrives
// without our bearer token, so the route is public.
func RegisterRoutes(g *gin.RouterGroup, h *Handler) {
	group := g.Group("/payment")
	{
		group.GET("/callback", h.Callback)
	}
}
