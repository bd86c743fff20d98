package http

import (
	"github.com/nekogravitycat/futsal-booking-session/internal/booking"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

// SetViewRequest selects the court and day the page shows.
type SetViewRequest struct {
	CourtID slot.CourtID `json:"court_id" binding:"required,gt=0"`
	Date    string       `json:"date" binding:"required"`
}

type ToggleRequest struct {
	SlotID slot.ID `json:"slot_id" binding:"required,gt=0"`
}

type ToggleResponse struct {
	Added     bool        `json:"added"`
	Size      int         `json:"size"`
	Selection []slot.Slot `json:"selection"`
}

type SubmitRequest struct {
	Remarks       string `json:"remarks"`
	PaymentMethod string `json:"payment_method" binding:"required"`
}

type CheckoutResponse struct {
	State booking.State `json:"state"`
}

// SubmitResponse carries RedirectURL on the gateway path; the page must
// navigate there.
type SubmitResponse struct {
	State       booking.State `json:"state"`
	BookingID   string        `json:"booking_id,omitempty"`
	RedirectURL string        `json:"redirect_url,omitempty"`
}

func NewSubmitResponse(r booking.Result) SubmitResponse {
	return SubmitResponse{
		State:       r.State,
		BookingID:   r.BookingID,
		RedirectURL: r.RedirectURL,
	}
}
