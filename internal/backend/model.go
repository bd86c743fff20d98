package backend

import (
	"fmt"

	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
)

// PaymentSuccess is the callback status the backend reports for a settled payment.
const PaymentSuccess = "PAYMENT_SUCCESS"

// BookingPayload is the body of both booking-creation endpoints.
type BookingPayload struct {
	BookingDate string           `json:"booking_date"`
	Remarks     string           `json:"remarks"`
	IsPaid      bool             `json:"is_paid"`
	Slots       []selection.Line `json:"slots"`
}

// BookingCreated is what the backend returns after creating a booking.
// PaymentURL is only set on the gateway path.
type BookingCreated struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PaymentURL string `json:"payment_url"`
}

// CallbackParams are the gateway's return-trip parameters forwarded to the backend.
type CallbackParams struct {
	Pidx            string `json:"pidx"`
	Amount          string `json:"amount"`
	PurchaseOrderID string `json:"purchase_order_id"`
	TransactionID   string `json:"transaction_id"`
	Message         string `json:"message"`
}

type CallbackResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// APIError is a non-2xx answer. Message is the server's text, verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status %d", e.StatusCode)
	}
	return e.Message
}
