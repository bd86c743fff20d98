package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/futsal-booking-session/internal/payment"
)

type Handler struct {
	resolver *payment.Resolver
	log      zerolog.Logger
}

func NewHandler(resolver *payment.Resolver, log zerolog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		log:      log.With().Str("component", "payment.http").Logger(),
	}
}

//
// GET /v1/payment/callback
//

func (h *Handler) Callback(c *gin.Context) {
	q := payment.QueryFromValues(c.Request.URL.Query())

	p := &redirectPresenter{}
	out, performed := h.resolver.Resolve(c.Request.Context(), q, p)
	if performed {
		out = payment.Outcome{State: p.state, Message: p.message, Target: p.target}
	}

	h.log.Info().
		Str("state", string(out.State)).
		Bool("replayed", !performed).
		Str("purchase_order_id", q.PurchaseOrderID).
		Msg("payment callback resolved")

	c.Redirect(http.StatusSeeOther, Location(out))
}
