package booking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
	"github.com/nekogravitycat/futsal-booking-session/internal/realtime"
	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

var tracer = otel.Tracer("github.com/nekogravitycat/futsal-booking-session/internal/booking")

// Creator is the booking-creation endpoint.
type Creator interface {
	CreateBooking(ctx context.Context, method backend.Method, payload backend.BookingPayload) (*backend.BookingCreated, error)
}

type Config struct {
	// Lock is shared with the realtime listener of the same session.
	Lock        sync.Locker
	EmitTimeout time.Duration
	Logger      zerolog.Logger
}

// Coordinator runs the confirm, create, notify sequence for one session.
type Coordinator struct {
	creator Creator
	conn    realtime.Conn
	cache   *slot.Cache
	sel     *selection.Set
	lock    sync.Locker
	emitTTL time.Duration
	log     zerolog.Logger

	mu    sync.Mutex
	state State
}

func NewCoordinator(creator Creator, conn realtime.Conn, cache *slot.Cache, sel *selection.Set, cfg Config) *Coordinator {
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = 5 * time.Second
	}
	return &Coordinator{
		creator: creator,
		conn:    conn,
		cache:   cache,
		sel:     sel,
		lock:    cfg.Lock,
		emitTTL: cfg.EmitTimeout,
		log:     cfg.Logger.With().Str("component", "booking.coordinator").Logger(),
		state:   StateIdle,
	}
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open shows the payment-method prompt.
func (c *Coordinator) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return ErrSubmissionInProgress
	}
	c.state = StateConfirming
	return nil
}

// Cancel closes the prompt without a choice and starts over with an empty selection.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	switch {
	case c.state.Busy():
		c.mu.Unlock()
		return ErrSubmissionInProgress
	case c.state != StateConfirming:
		c.mu.Unlock()
		return ErrNotConfirming
	}
	c.state = StateIdle
	c.mu.Unlock()

	c.lock.Lock()
	c.sel.Clear()
	c.lock.Unlock()
	return nil
}

// Submit creates the booking for the current selection. Preconditions fail
// before any network call. On failure the selection and cache are untouched.
func (c *Coordinator) Submit(ctx context.Context, draft Draft, method backend.Method) (Result, error) {
	c.mu.Lock()
	if c.state.Busy() {
		st := c.state
		c.mu.Unlock()
		return Result{State: st}, ErrSubmissionInProgress
	}

	lines := c.sel.Lines()
	key, bound := c.cache.Key()
	var precondition error
	switch {
	case len(lines) == 0:
		precondition = ErrNoSlotsSelected
	case strings.TrimSpace(draft.Remarks) == "":
		precondition = ErrRemarksRequired
	case method != backend.MethodGateway && method != backend.MethodPoints:
		precondition = ErrInvalidPaymentMethod
	case !bound:
		precondition = slot.ErrNoActive
	}
	if precondition != nil {
		st := c.state
		c.mu.Unlock()
		return Result{State: st}, precondition
	}

	pending := StatePointsPending
	if method == backend.MethodGateway {
		pending = StateGatewayPending
	}
	c.state = pending
	c.mu.Unlock()

	draft.BookingDate = key.Date
	draft.IsPaid = false
	draft.Slots = lines

	// The creation call is not idempotent; a caller going away must not abort it.
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "booking.Submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.method", string(method)),
		attribute.Int64("booking.court_id", int64(key.CourtID)),
		attribute.Int("booking.slots", len(lines)),
	)

	created, err := c.creator.CreateBooking(ctx, method, backend.BookingPayload{
		BookingDate: draft.BookingDate,
		Remarks:     draft.Remarks,
		IsPaid:      draft.IsPaid,
		Slots:       draft.Slots,
	})
	if err != nil {
		msg := backend.Message(err)
		if msg == "" {
			msg = ErrBookingCreationFailed.Message
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		c.log.Warn().Err(err).Str("method", string(method)).Msg("booking creation failed")
		c.setState(StateFailed)
		return Result{State: StateFailed, Message: msg}, ErrBookingCreationFailed.WithCause(err)
	}

	c.announce(ctx, key, draft, method)

	if method == backend.MethodPoints {
		c.setState(StateCompleted)
		return Result{State: StateCompleted, BookingID: created.ID}, nil
	}

	if created.PaymentURL == "" {
		// The booking exists server side; only the payment step is missing.
		c.setState(StateFailed)
		msg := fmt.Sprintf("booking %s was created but remains unpaid: the payment gateway did not return a link", created.ID)
		return Result{State: StateFailed, BookingID: created.ID, Message: msg}, ErrMissingPaymentURL
	}
	return Result{State: StateGatewayPending, BookingID: created.ID, RedirectURL: created.PaymentURL}, nil
}

// announce applies the booking to the local cache and selection, then tells
// peers the slots are gone. The echo of our own event finds nothing left to drop.
func (c *Coordinator) announce(ctx context.Context, key slot.Key, draft Draft, method backend.Method) {
	updates := make([]slot.Update, len(draft.Slots))
	for i, l := range draft.Slots {
		updates[i] = slot.Update{SlotID: l.SlotID, IsAvailable: false}
	}

	c.lock.Lock()
	c.cache.ApplyPatch(key, updates)
	c.sel.Clear()
	c.lock.Unlock()

	channel := realtime.ChannelNewBooking
	if method == backend.MethodPoints {
		channel = realtime.ChannelNewBookingPoints
	}

	emitCtx, cancel := context.WithTimeout(ctx, c.emitTTL)
	defer cancel()
	err := c.conn.Emit(emitCtx, channel, realtime.Event{
		BookingDate:  draft.BookingDate,
		CourtID:      key.CourtID,
		Remarks:      draft.Remarks,
		IsPaid:       draft.IsPaid,
		Slots:        draft.Slots,
		UpdatedSlots: updates,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("channel", channel).Msg("availability broadcast failed")
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
