package slot

import (
	"net/http"

	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/apperror"
)

var (
	// ErrFetch marks a failed slot listing. The active entry is empty afterwards.
	ErrFetch      = apperror.New(http.StatusBadGateway, "failed to load slots")
	ErrNoActive   = apperror.New(http.StatusConflict, "no court and date selected")
	ErrInvalidKey = apperror.New(http.StatusBadRequest, "invalid court or date")
)

type (
	ID      int64
	CourtID int64
)

// Slot is a bookable time unit on a court, as last reported by the server.
type Slot struct {
	ID          ID      `json:"slot_id"`
	Title       string  `json:"title"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	Price       float64 `json:"price"`
	CreditPoint float64 `json:"credit_point"`
	IsAvailable bool    `json:"is_available"`
}

// Key identifies one cache entry. Date is a normalized calendar day.
type Key struct {
	CourtID CourtID
	Date    string
}

// Update is a single availability change carried by a patch or realtime event.
type Update struct {
	SlotID      ID   `json:"slot_id"`
	IsAvailable bool `json:"is_available"`
}
