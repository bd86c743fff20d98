package booking

import (
	"net/http"

	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/apperror"
	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
)

var (
	ErrNoSlotsSelected       = apperror.New(http.StatusBadRequest, "select at least one slot")
	ErrRemarksRequired       = apperror.New(http.StatusBadRequest, "remarks are required")
	ErrInvalidPaymentMethod  = apperror.New(http.StatusBadRequest, "invalid payment method")
	ErrSubmissionInProgress  = apperror.New(http.StatusConflict, "a booking is already being submitted")
	ErrNotConfirming         = apperror.New(http.StatusConflict, "no payment method prompt is open")
	ErrBookingCreationFailed = apperror.New(http.StatusUnprocessableEntity, "failed to create booking")
	ErrMissingPaymentURL     = apperror.New(http.StatusBadGateway, "booking was created but the payment gateway link was not returned, it remains unpaid")
)

type State string

const (
	StateIdle           State = "idle"
	StateConfirming     State = "confirming"
	StateGatewayPending State = "gateway_pending"
	StatePointsPending  State = "points_pending"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Busy reports whether the state blocks a new attempt. GatewayPending never
// clears: control has left for the payment gateway.
func (s State) Busy() bool {
	return s == StateGatewayPending || s == StatePointsPending
}

// Draft is the booking under construction. Slots and IsPaid are filled in
// by the coordinator at submission time.
type Draft struct {
	BookingDate string
	Remarks     string
	IsPaid      bool
	Slots       []selection.Line
}

// Result is the outcome of one submission attempt.
type Result struct {
	State       State
	BookingID   string
	RedirectURL string
	// Message is the server's reason on failure, verbatim when available.
	Message string
}
