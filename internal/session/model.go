package session

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/futsal-booking-session/internal/booking"
	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/apperror"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

var (
	ErrNotFound        = apperror.New(http.StatusNotFound, "session not found")
	ErrClosed          = apperror.New(http.StatusGone, "session closed")
	ErrSlotUnavailable = apperror.New(http.StatusConflict, "slot is not available")
)

// Backend is the part of the platform API one session talks to, already
// authenticated as the session owner.
type Backend interface {
	slot.Fetcher
	booking.Creator
}

type NoticeKind string

const (
	NoticeSlotsTaken NoticeKind = "slots_taken"
	NoticeBooked     NoticeKind = "booked"
	NoticeFailed     NoticeKind = "booking_failed"
)

// Notice is a user-facing message raised outside a request, or kept for the
// next snapshot.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	SlotIDs []slot.ID  `json:"slot_ids,omitempty"`
	At      time.Time  `json:"at"`
}

// Snapshot is everything a page needs to render the session.
type Snapshot struct {
	ID        string        `json:"id"`
	CourtID   slot.CourtID  `json:"court_id,omitempty"`
	Date      string        `json:"date,omitempty"`
	Slots     []slot.Slot   `json:"slots"`
	Selection []slot.Slot   `json:"selection"`
	Stale     bool          `json:"stale"`
	Connected bool          `json:"connected"`
	Checkout  booking.State `json:"checkout"`
	Notices   []Notice      `json:"notices"`
}
