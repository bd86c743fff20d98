package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
	"github.com/nekogravitycat/futsal-booking-session/internal/booking"
	"github.com/nekogravitycat/futsal-booking-session/internal/realtime"
	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

const maxNotices = 20

// Session is one browser tab: a cache, a selection, the listener keeping
// them current and the checkout coordinator.
type Session struct {
	id    string
	owner string
	conn  realtime.Conn
	log   zerolog.Logger

	// lock serializes selection changes with the listener's patch+reconcile.
	lock sync.Mutex

	cache    *slot.Cache
	sel      *selection.Set
	listener *realtime.Listener
	coord    *booking.Coordinator

	mu       sync.Mutex
	notices  []Notice
	lastSeen time.Time
	closed   bool
}

type options struct {
	conn     realtime.Conn
	backend  Backend
	loc      *time.Location
	limit    int
	channels []string
	log      zerolog.Logger
}

func newSession(id, owner string, o options) *Session {
	s := &Session{
		id:       id,
		owner:    owner,
		conn:     o.conn,
		log:      o.log.With().Str("session", id).Logger(),
		cache:    slot.NewCache(o.backend, o.loc),
		sel:      selection.NewSet(o.limit),
		lastSeen: time.Now(),
	}
	s.listener = realtime.NewListener(o.conn, s.cache, s.sel, realtime.ListenerConfig{
		Channels:  o.channels,
		Lock:      &s.lock,
		OnDropped: s.onDropped,
		Logger:    s.log,
	})
	s.coord = booking.NewCoordinator(o.backend, o.conn, s.cache, s.sel, booking.Config{
		Lock:   &s.lock,
		Logger: s.log,
	})
	s.listener.Start()
	return s
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Owner() string { return s.owner }

// SetView switches the page to another court or day. The selection belongs
// to the previous key; it is cleared and the new key bound in one step so a
// toggle can never land on the old entry after the clear.
func (s *Session) SetView(ctx context.Context, courtID slot.CourtID, date string) error {
	if err := s.usable(); err != nil {
		return err
	}
	s.lock.Lock()
	b, err := s.cache.Bind(courtID, date)
	if err == nil {
		s.sel.Clear()
	}
	s.lock.Unlock()
	if err != nil {
		return err
	}

	if _, err := b.Fetch(ctx); err != nil {
		return err
	}
	return nil
}

// Toggle selects or deselects a slot. Only available slots of the active
// entry can be added; a selected slot can always be removed.
func (s *Session) Toggle(id slot.ID) (selection.Result, error) {
	if err := s.usable(); err != nil {
		return selection.Result{}, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, bound := s.cache.Key(); !bound {
		return selection.Result{}, slot.ErrNoActive
	}
	if s.sel.Contains(id) {
		return s.sel.Toggle(slot.Slot{ID: id})
	}
	sl, ok := s.cache.Lookup(id)
	if !ok || !sl.IsAvailable {
		return selection.Result{}, ErrSlotUnavailable
	}
	return s.sel.Toggle(sl)
}

func (s *Session) OpenCheckout() error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.coord.Open()
}

func (s *Session) CancelCheckout() error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.coord.Cancel()
}

// Submit books the current selection with the chosen payment method.
func (s *Session) Submit(ctx context.Context, remarks string, method backend.Method) (booking.Result, error) {
	if err := s.usable(); err != nil {
		return booking.Result{}, err
	}

	res, err := s.coord.Submit(ctx, booking.Draft{Remarks: remarks}, method)
	switch {
	case res.State == booking.StateFailed:
		s.notify(Notice{Kind: NoticeFailed, Message: res.Message})
	case res.State == booking.StateCompleted:
		s.notify(Notice{Kind: NoticeBooked, Message: "booking confirmed"})
	}
	return res, err
}

func (s *Session) Snapshot() Snapshot {
	s.lock.Lock()
	key, slots, _ := s.cache.Active()
	items := s.sel.Items()
	s.lock.Unlock()

	if slots == nil {
		slots = []slot.Slot{}
	}
	if items == nil {
		items = []slot.Slot{}
	}

	s.mu.Lock()
	notices := append([]Notice{}, s.notices...)
	s.mu.Unlock()

	return Snapshot{
		ID:        s.id,
		CourtID:   key.CourtID,
		Date:      key.Date,
		Slots:     slots,
		Selection: items,
		Stale:     s.cache.Stale(),
		Connected: s.conn.Connected(),
		Checkout:  s.coord.State(),
		Notices:   notices,
	}
}

// Close releases the realtime subscriptions. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.listener.Close()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Session) onDropped(key slot.Key, dropped []slot.Slot) {
	ids := make([]slot.ID, len(dropped))
	for i, d := range dropped {
		ids[i] = d.ID
	}
	s.notify(Notice{
		Kind:    NoticeSlotsTaken,
		Message: fmt.Sprintf("%d selected slot(s) on %s were just booked by someone else", len(dropped), key.Date),
		SlotIDs: ids,
	})
}

func (s *Session) notify(n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = s.notices[len(s.notices)-maxNotices:]
	}
}
