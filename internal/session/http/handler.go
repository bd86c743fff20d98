package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nekogravitycat/futsal-booking-session/internal/auth"
	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
	"github.com/nekogravitycat/futsal-booking-session/internal/booking"
	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/apperror"
	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/response"
	"github.com/nekogravitycat/futsal-booking-session/internal/session"
)

type Handler struct {
	manager *session.Manager
}

func NewHandler(manager *session.Manager) *Handler {
	return &Handler{manager: manager}
}

// load resolves :id for the authenticated user and writes the error response
// when it cannot.
func (h *Handler) load(c *gin.Context) (*session.Session, bool) {
	s, err := h.manager.Get(c.Param("id"), auth.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return s, true
}

//
// POST /v1/sessions
//

func (h *Handler) Create(c *gin.Context) {
	s := h.manager.Create(auth.GetUserID(c), auth.GetToken(c))
	c.JSON(http.StatusCreated, s.Snapshot())
}

//
// GET /v1/sessions/:id
//

func (h *Handler) Get(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

//
// DELETE /v1/sessions/:id
//

func (h *Handler) Delete(c *gin.Context) {
	if err := h.manager.Close(c.Param("id"), auth.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

//
// PUT /v1/sessions/:id/view
//

func (h *Handler) SetView(c *gin.Context) {
	var req SetViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	s, ok := h.load(c)
	if !ok {
		return
	}

	if err := s.SetView(c.Request.Context(), req.CourtID, req.Date); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

//
// POST /v1/sessions/:id/selection
//

func (h *Handler) Toggle(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	s, ok := h.load(c)
	if !ok {
		return
	}

	res, err := s.Toggle(req.SlotID)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, ToggleResponse{
		Added:     res.Added,
		Size:      res.Size,
		Selection: s.Snapshot().Selection,
	})
}

//
// POST /v1/sessions/:id/checkout
//

func (h *Handler) OpenCheckout(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	if err := s.OpenCheckout(); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, CheckoutResponse{State: s.Snapshot().Checkout})
}

//
// DELETE /v1/sessions/:id/checkout
//

func (h *Handler) CancelCheckout(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	if err := s.CancelCheckout(); err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, CheckoutResponse{State: s.Snapshot().Checkout})
}

//
// POST /v1/sessions/:id/bookings
//

func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	method, err := backend.ParseMethod(req.PaymentMethod)
	if err != nil {
		response.Error(c, booking.ErrInvalidPaymentMethod)
		return
	}

	s, ok := h.load(c)
	if !ok {
		return
	}

	res, err := s.Submit(c.Request.Context(), req.Remarks, method)
	if err != nil {
		// Show the server's own reason when it gave one.
		var appErr *apperror.AppError
		if res.Message != "" && errors.As(err, &appErr) {
			err = apperror.Wrap(err, appErr.Code, res.Message)
		}
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewSubmitResponse(res))
}
