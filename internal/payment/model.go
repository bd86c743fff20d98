package payment

import (
	"net/url"
	"strings"
	"time"

	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
)

type State string

const (
	StateUnresolved State = "unresolved"
	StateCancelled  State = "cancelled"
	StateIncomplete State = "incomplete"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Notices shown when the gateway or the backend gave nothing more specific.
const (
	MsgCancelled  = "payment was cancelled"
	MsgIncomplete = "payment information incomplete"
	MsgSuccess    = "payment successful, your booking is confirmed"
	MsgFailed     = "payment verification failed"
)

// Outcome is the terminal result of one callback.
type Outcome struct {
	State   State  `json:"state"`
	Message string `json:"message"`
	Target  string `json:"target"`
}

// CallbackQuery holds the gateway's return-trip parameters.
type CallbackQuery struct {
	Pidx            string
	Amount          string
	PurchaseOrderID string
	TransactionID   string
	Message         string
}

// QueryFromValues reads the callback parameters from a request query.
func QueryFromValues(v url.Values) CallbackQuery {
	return CallbackQuery{
		Pidx:            strings.TrimSpace(v.Get("pidx")),
		Amount:          strings.TrimSpace(v.Get("amount")),
		PurchaseOrderID: strings.TrimSpace(v.Get("purchase_order_id")),
		TransactionID:   strings.TrimSpace(v.Get("transaction_id")),
		Message:         strings.TrimSpace(v.Get("message")),
	}
}

// Key identifies a callback: identical parameters resolve once.
func (q CallbackQuery) Key() string {
	v := url.Values{}
	v.Set("pidx", q.Pidx)
	v.Set("amount", q.Amount)
	v.Set("purchase_order_id", q.PurchaseOrderID)
	v.Set("transaction_id", q.TransactionID)
	v.Set("message", q.Message)
	return v.Encode()
}

func (q CallbackQuery) params() backend.CallbackParams {
	return backend.CallbackParams{
		Pidx:            q.Pidx,
		Amount:          q.Amount,
		PurchaseOrderID: q.PurchaseOrderID,
		TransactionID:   q.TransactionID,
		Message:         q.Message,
	}
}

// Presenter shows the outcome to the user.
type Presenter interface {
	Notify(state State, message string)
	Navigate(target string)
}

// Record is a ledger row. Outcome.State is StateUnresolved until Complete.
type Record struct {
	Key        string
	Outcome    Outcome
	ClaimedAt  time.Time
	ResolvedAt *time.Time
}
