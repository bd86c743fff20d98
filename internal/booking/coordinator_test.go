package booking

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
	"github.com/nekogravitycat/futsal-booking-session/internal/booking/mocks"
	"github.com/nekogravitycat/futsal-booking-session/internal/realtime"
	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

type staticFetcher []slot.Slot

func (f staticFetcher) ListSlots(context.Context, slot.CourtID, string) ([]slot.Slot, error) {
	return f, nil
}

type harness struct {
	creator *mocks.MockCreator
	bus     *realtime.Bus
	cache   *slot.Cache
	sel     *selection.Set
	coord   *Coordinator

	mu      sync.Mutex
	emitted map[string][]realtime.Event
}

func newHarness(t *testing.T, selected ...slot.ID) *harness {
	t.Helper()
	h := &harness{
		creator: new(mocks.MockCreator),
		bus:     realtime.NewBus(),
		sel:     selection.NewSet(selection.DefaultLimit),
		emitted: make(map[string][]realtime.Event),
	}
	h.cache = slot.NewCache(staticFetcher{
		{ID: 10, Price: 1500, CreditPoint: 15, IsAvailable: true},
		{ID: 11, Price: 1500, CreditPoint: 15, IsAvailable: true},
		{ID: 12, Price: 2000, CreditPoint: 20, IsAvailable: true},
	}, time.UTC)
	_, err := h.cache.Load(context.Background(), 2, "2025-06-01")
	require.NoError(t, err)

	for _, id := range selected {
		s, ok := h.cache.Lookup(id)
		require.True(t, ok)
		_, err := h.sel.Toggle(s)
		require.NoError(t, err)
	}

	for _, ch := range []string{realtime.ChannelNewBooking, realtime.ChannelNewBookingPoints} {
		name := ch
		h.bus.Subscribe(name, func(p []byte) {
			var ev realtime.Event
			assert.NoError(t, json.Unmarshal(p, &ev))
			h.mu.Lock()
			h.emitted[name] = append(h.emitted[name], ev)
			h.mu.Unlock()
		})
	}

	h.coord = NewCoordinator(h.creator, h.bus, h.cache, h.sel, Config{Logger: zerolog.Nop()})
	return h
}

func (h *harness) events(channel string) []realtime.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.emitted[channel]
}

func expectedPayload(remarks string) backend.BookingPayload {
	return backend.BookingPayload{
		BookingDate: "2025-06-01",
		Remarks:     remarks,
		IsPaid:      false,
		Slots: []selection.Line{
			{SlotID: 10, Price: 1500, CreditPoint: 15},
			{SlotID: 11, Price: 1500, CreditPoint: 15},
		},
	}
}

func TestSubmitPreconditions(t *testing.T) {
	tests := []struct {
		name     string
		selected []slot.ID
		remarks  string
		method   backend.Method
		wantErr  error
	}{
		{name: "empty selection", remarks: "match", method: backend.MethodPoints, wantErr: ErrNoSlotsSelected},
		{name: "empty selection wins over empty remarks", method: backend.MethodGateway, wantErr: ErrNoSlotsSelected},
		{name: "blank remarks", selected: []slot.ID{10}, remarks: "   ", method: backend.MethodPoints, wantErr: ErrRemarksRequired},
		{name: "unknown method", selected: []slot.ID{10}, remarks: "match", method: "cash", wantErr: ErrInvalidPaymentMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.selected...)

			res, err := h.coord.Submit(context.Background(), Draft{Remarks: tt.remarks}, tt.method)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateIdle, res.State)
			assert.Equal(t, StateIdle, h.coord.State())
			h.creator.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitCreationFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, 10, 11)
	h.creator.On("CreateBooking", mock.Anything, backend.MethodPoints, expectedPayload("evening game")).
		Return(nil, &backend.APIError{StatusCode: 409, Message: "Slot already booked"}).Once()

	_, before, _ := h.cache.Active()
	res, err := h.coord.Submit(context.Background(), Draft{Remarks: "evening game"}, backend.MethodPoints)

	assert.ErrorIs(t, err, ErrBookingCreationFailed)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "Slot already booked", res.Message)
	assert.Equal(t, 2, h.sel.Len())
	_, after, _ := h.cache.Active()
	assert.Equal(t, before, after)
	assert.Empty(t, h.events(realtime.ChannelNewBookingPoints))

	// the user may retry
	require.NoError(t, h.coord.Open())
	h.creator.AssertExpectations(t)
}

func TestSubmitFailureWithoutServerMessage(t *testing.T) {
	h := newHarness(t, 10)
	h.creator.On("CreateBooking", mock.Anything, backend.MethodGateway, mock.Anything).
		Return(nil, errors.New("connection refused"))

	res, err := h.coord.Submit(context.Background(), Draft{Remarks: "x"}, backend.MethodGateway)

	assert.ErrorIs(t, err, ErrBookingCreationFailed)
	assert.Equal(t, ErrBookingCreationFailed.Message, res.Message)
}

func TestSubmitPoints(t *testing.T) {
	h := newHarness(t, 10, 11)
	h.creator.On("CreateBooking", mock.Anything, backend.MethodPoints, expectedPayload("league")).
		Return(&backend.BookingCreated{ID: "b-77", Status: "confirmed"}, nil).Once()

	res, err := h.coord.Submit(context.Background(), Draft{Remarks: "league"}, backend.MethodPoints)
	require.NoError(t, err)

	assert.Equal(t, Result{State: StateCompleted, BookingID: "b-77"}, res)
	assert.Equal(t, StateCompleted, h.coord.State())
	assert.Zero(t, h.sel.Len())
	assert.Equal(t, map[slot.ID]struct{}{12: {}}, h.cache.AvailableIDs())

	evs := h.events(realtime.ChannelNewBookingPoints)
	require.Len(t, evs, 1)
	assert.Equal(t, slot.CourtID(2), evs[0].CourtID)
	assert.Equal(t, "2025-06-01", evs[0].BookingDate)
	assert.Equal(t, []slot.Update{{SlotID: 10}, {SlotID: 11}}, evs[0].UpdatedSlots)
	assert.Empty(t, h.events(realtime.ChannelNewBooking))
}

func TestSubmitGateway(t *testing.T) {
	h := newHarness(t, 10, 11)
	h.creator.On("CreateBooking", mock.Anything, backend.MethodGateway, expectedPayload("cup")).
		Return(&backend.BookingCreated{ID: "b-1", PaymentURL: "https://pay.example/?pidx=abc"}, nil).Once()

	require.NoError(t, h.coord.Open())
	res, err := h.coord.Submit(context.Background(), Draft{Remarks: "cup"}, backend.MethodGateway)
	require.NoError(t, err)

	assert.Equal(t, StateGatewayPending, res.State)
	assert.Equal(t, "https://pay.example/?pidx=abc", res.RedirectURL)
	assert.Len(t, h.events(realtime.ChannelNewBooking), 1)

	// control has left for the gateway
	assert.ErrorIs(t, h.coord.Open(), ErrSubmissionInProgress)
	_, err = h.coord.Submit(context.Background(), Draft{Remarks: "cup"}, backend.MethodGateway)
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	h.creator.AssertNumberOfCalls(t, "CreateBooking", 1)
}

func TestSubmitGatewayWithoutPaymentURL(t *testing.T) {
	h := newHarness(t, 10)
	h.creator.On("CreateBooking", mock.Anything, backend.MethodGateway, mock.Anything).
		Return(&backend.BookingCreated{ID: "b-2"}, nil)

	res, err := h.coord.Submit(context.Background(), Draft{Remarks: "x"}, backend.MethodGateway)

	assert.ErrorIs(t, err, ErrMissingPaymentURL)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, "b-2", res.BookingID)
	assert.Contains(t, res.Message, "b-2")
	assert.Contains(t, res.Message, "unpaid")
	assert.Empty(t, res.RedirectURL)
}

func TestSubmitIsNotReentrant(t *testing.T) {
	h := newHarness(t, 10)
	entered := make(chan struct{})
	release := make(chan struct{})
	h.creator.On("CreateBooking", mock.Anything, backend.MethodPoints, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&backend.BookingCreated{ID: "b-3"}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := h.coord.Submit(context.Background(), Draft{Remarks: "x"}, backend.MethodPoints)
		done <- err
	}()
	<-entered

	assert.Equal(t, StatePointsPending, h.coord.State())
	_, err := h.coord.Submit(context.Background(), Draft{Remarks: "x"}, backend.MethodPoints)
	assert.ErrorIs(t, err, ErrSubmissionInProgress)
	assert.ErrorIs(t, h.coord.Open(), ErrSubmissionInProgress)
	assert.ErrorIs(t, h.coord.Cancel(), ErrSubmissionInProgress)

	close(release)
	require.NoError(t, <-done)
	h.creator.AssertNumberOfCalls(t, "CreateBooking", 1)
}

func TestSubmitIgnoresCallerCancellation(t *testing.T) {
	h := newHarness(t, 10)
	h.creator.On("CreateBooking", mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil }),
		backend.MethodPoints, mock.Anything).
		Return(&backend.BookingCreated{ID: "b-4"}, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.coord.Submit(ctx, Draft{Remarks: "x"}, backend.MethodPoints)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
}

func TestSubmitSurvivesBroadcastFailure(t *testing.T) {
	h := newHarness(t, 10)
	h.bus.SetConnected(false)
	h.creator.On("CreateBooking", mock.Anything, backend.MethodPoints, mock.Anything).
		Return(&backend.BookingCreated{ID: "b-5"}, nil)

	res, err := h.coord.Submit(context.Background(), Draft{Remarks: "x"}, backend.MethodPoints)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	assert.NotContains(t, h.cache.AvailableIDs(), slot.ID(10))
}

func TestOpenAndCancel(t *testing.T) {
	h := newHarness(t, 10, 11)

	assert.ErrorIs(t, h.coord.Cancel(), ErrNotConfirming)

	require.NoError(t, h.coord.Open())
	assert.Equal(t, StateConfirming, h.coord.State())

	require.NoError(t, h.coord.Cancel())
	assert.Equal(t, StateIdle, h.coord.State())
	assert.Zero(t, h.sel.Len(), "cancel starts over with an empty selection")
	assert.Len(t, h.cache.AvailableIDs(), 3)
}
