package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

func TestBusEmitAndUnsubscribe(t *testing.T) {
	bus := NewBus()

	var got []string
	sub := bus.Subscribe(ChannelNewBooking, func(p []byte) { got = append(got, string(p)) })
	bus.Subscribe(ChannelNewBookingPoints, func(p []byte) { t.Fatalf("wrong channel received %s", p) })

	require.NoError(t, bus.Emit(context.Background(), ChannelNewBooking, map[string]int{"court_id": 1}))
	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, bus.Emit(context.Background(), ChannelNewBooking, map[string]int{"court_id": 2}))

	assert.Equal(t, []string{`{"court_id":1}`}, got)
}

func TestBusStatusTransitions(t *testing.T) {
	bus := NewBus()
	var seen []bool
	bus.WatchStatus(func(c bool) { seen = append(seen, c) })

	bus.SetConnected(true) // already connected
	bus.SetConnected(false)
	bus.SetConnected(false)
	bus.SetConnected(true)

	assert.Equal(t, []bool{false, true}, seen)

	bus.SetConnected(false)
	assert.ErrorIs(t, bus.Emit(context.Background(), ChannelNewBooking, nil), ErrNotConnected)
}

func TestEventRoundTrip(t *testing.T) {
	raw, err := json.Marshal(Event{
		BookingDate:  "2025-06-01",
		CourtID:      2,
		UpdatedSlots: []slot.Update{{SlotID: 10, IsAvailable: false}},
	})
	require.NoError(t, err)

	in, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.True(t, in.HasUpdates)
	assert.Equal(t, slot.CourtID(2), in.CourtID)
	assert.Equal(t, []slot.Update{{SlotID: 10}}, in.UpdatedSlots)
}

func TestWSConn(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan frame, 1)
	authHeader := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_ = c.WriteJSON(map[string]any{
			"event": ChannelNewBooking,
			"data":  map[string]any{"court_id": 2, "booking_date": "2025-06-01"},
		})

		var f frame
		if err := c.ReadJSON(&f); err == nil {
			received <- f
		}
		// hold the socket open until the client goes away
		_, _, _ = c.ReadMessage()
	}))
	defer srv.Close()

	conn := NewWSConn("ws"+strings.TrimPrefix(srv.URL, "http"), "svc-token", 10*time.Millisecond, zerolog.Nop())

	events := make(chan []byte, 1)
	conn.Subscribe(ChannelNewBooking, func(p []byte) { events <- p })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	assert.Equal(t, "Bearer svc-token", <-authHeader)

	select {
	case p := <-events:
		in, err := DecodeEvent(p)
		require.NoError(t, err)
		assert.EqualValues(t, 2, in.CourtID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event dispatched")
	}

	require.Eventually(t, conn.Connected, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Emit(context.Background(), ChannelNewBookingPoints, Event{BookingDate: "2025-06-01", CourtID: 2}))

	select {
	case f := <-received:
		assert.Equal(t, ChannelNewBookingPoints, f.Event)
		assert.JSONEq(t, `{"booking_date":"2025-06-01","court_id":2,"is_paid":false,"updated_slots":null}`, string(f.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the emitted frame")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.False(t, conn.Connected())
	assert.ErrorIs(t, conn.Emit(context.Background(), ChannelNewBooking, nil), ErrNotConnected)
}
