package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

// Channel names emitted by the booking backend. They share one payload shape.
const (
	ChannelNewBooking       = "new_booking"
	ChannelNewBookingPoints = "new_booking_points"
	ChannelBookingCancelled = "booking_cancelled"
)

var DefaultChannels = []string{ChannelNewBooking, ChannelNewBookingPoints, ChannelBookingCancelled}

var (
	errMissingDate  = errors.New("event without booking_date")
	errMissingCourt = errors.New("event without court_id")
)

// Event is the outbound payload: the booking draft plus the availability changes.
type Event struct {
	BookingDate  string           `json:"booking_date"`
	CourtID      slot.CourtID     `json:"court_id"`
	Remarks      string           `json:"remarks,omitempty"`
	IsPaid       bool             `json:"is_paid"`
	Slots        []selection.Line `json:"slots,omitempty"`
	UpdatedSlots []slot.Update    `json:"updated_slots"`
}

// Inbound is a decoded peer event.
type Inbound struct {
	BookingDate  string
	CourtID      slot.CourtID
	UpdatedSlots []slot.Update
	// HasUpdates is false when the payload carried no updated_slots field.
	HasUpdates bool
}

type inboundWire struct {
	BookingDate  string          `json:"booking_date"`
	CourtID      json.RawMessage `json:"court_id"`
	UpdatedSlots *[]slot.Update  `json:"updated_slots"`
}

// DecodeEvent parses a peer payload. court_id may be a number or a numeric string.
func DecodeEvent(payload []byte) (Inbound, error) {
	var w inboundWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return Inbound{}, err
	}
	if w.BookingDate == "" {
		return Inbound{}, errMissingDate
	}

	court, err := parseCourtID(w.CourtID)
	if err != nil {
		return Inbound{}, err
	}

	in := Inbound{BookingDate: w.BookingDate, CourtID: court}
	if w.UpdatedSlots != nil {
		in.UpdatedSlots = *w.UpdatedSlots
		in.HasUpdates = true
	}
	return in, nil
}

func parseCourtID(raw json.RawMessage) (slot.CourtID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errMissingCourt
	}

	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return slot.CourtID(n), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return slot.CourtID(n), nil
}
