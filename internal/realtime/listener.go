package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

// DroppedFunc receives the selected slots that a peer event made unavailable.
type DroppedFunc func(key slot.Key, dropped []slot.Slot)

type ListenerConfig struct {
	Channels      []string
	ReloadTimeout time.Duration
	// Lock serializes patch+reconcile with the owner's own selection changes.
	Lock      sync.Locker
	OnDropped DroppedFunc
	Logger    zerolog.Logger
}

// Listener keeps one cache and selection in line with peer events. It never
// writes server state. Patches apply on the delivering goroutine; reloads run
// on the listener's own worker so a slow backend only delays this listener.
type Listener struct {
	conn  Conn
	cache *slot.Cache
	sel   *selection.Set
	cfg   ListenerConfig
	log   zerolog.Logger

	// reloads requested while one is pending collapse into it
	reloadCh chan struct{}

	mu     sync.Mutex
	subs   []Subscription
	closed bool
	stop   context.CancelFunc
}

func NewListener(conn Conn, cache *slot.Cache, sel *selection.Set, cfg ListenerConfig) *Listener {
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.ReloadTimeout <= 0 {
		cfg.ReloadTimeout = 10 * time.Second
	}
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}
	return &Listener{
		conn:  conn,
		cache: cache,
		sel:   sel,
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "realtime.listener").Logger(),

		reloadCh: make(chan struct{}, 1),
	}
}

// Start subscribes every channel. Calling it twice does not double-subscribe.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || len(l.subs) > 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.stop = cancel
	go l.runReloads(ctx)

	for _, ch := range l.cfg.Channels {
		name := ch
		l.subs = append(l.subs, l.conn.Subscribe(name, func(payload []byte) {
			l.handle(name, payload)
		}))
	}
	l.subs = append(l.subs, l.conn.WatchStatus(l.onStatus))
}

// Close releases every subscription. It is safe to call more than once.
func (l *Listener) Close() {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.closed = true
	stop := l.stop
	l.stop = nil
	l.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	if stop != nil {
		stop()
	}
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Listener) handle(channel string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Str("channel", channel).Msg("event handler panicked")
		}
	}()

	if l.isClosed() {
		return
	}

	ev, err := DecodeEvent(payload)
	if err != nil {
		l.log.Debug().Err(err).Str("channel", channel).Msg("dropping malformed event")
		return
	}

	day, ok := slot.NormalizeDate(ev.BookingDate, l.cache.Location())
	if !ok {
		l.log.Debug().Str("channel", channel).Str("booking_date", ev.BookingDate).Msg("dropping event with bad date")
		return
	}
	key := slot.Key{CourtID: ev.CourtID, Date: day}

	if active, bound := l.cache.Key(); !bound || active != key {
		return
	}

	if !ev.HasUpdates {
		l.requestReload()
		return
	}

	dropped := l.patch(key, ev.UpdatedSlots)

	l.log.Debug().
		Str("channel", channel).
		Int64("court_id", int64(key.CourtID)).
		Str("date", key.Date).
		Int("dropped", len(dropped)).
		Msg("event reconciled")

	l.notifyDropped(key, dropped)
}

func (l *Listener) notifyDropped(key slot.Key, dropped []slot.Slot) {
	if len(dropped) > 0 && l.cfg.OnDropped != nil {
		l.cfg.OnDropped(key, dropped)
	}
}

// requestReload schedules a reload of the active key without blocking.
func (l *Listener) requestReload() {
	select {
	case l.reloadCh <- struct{}{}:
	default:
	}
}

func (l *Listener) runReloads(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.reloadCh:
			l.reloadActive(ctx)
		}
	}
}

func (l *Listener) reloadActive(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("reload panicked")
		}
	}()

	key, bound := l.cache.Key()
	if !bound {
		return
	}
	dropped := l.reload(ctx, key)
	if l.isClosed() {
		return
	}

	l.log.Debug().
		Int64("court_id", int64(key.CourtID)).
		Str("date", key.Date).
		Int("dropped", len(dropped)).
		Msg("reload reconciled")

	l.notifyDropped(key, dropped)
}

func (l *Listener) patch(key slot.Key, updates []slot.Update) []slot.Slot {
	l.cfg.Lock.Lock()
	defer l.cfg.Lock.Unlock()

	if !l.cache.ApplyPatch(key, updates) {
		return nil
	}
	return l.sel.Reconcile(l.cache.AvailableIDs())
}

// reload refetches the active key and reconciles against the fresh entry.
// A failed fetch leaves the entry empty, which drops the whole selection.
func (l *Listener) reload(ctx context.Context, key slot.Key) []slot.Slot {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ReloadTimeout)
	defer cancel()

	if _, err := l.cache.Reload(ctx); err != nil {
		if errors.Is(err, slot.ErrSuperseded) {
			return nil
		}
		if l.isClosed() {
			return nil
		}
		l.log.Warn().Err(err).Int64("court_id", int64(key.CourtID)).Str("date", key.Date).Msg("reload failed")
	}

	l.cfg.Lock.Lock()
	defer l.cfg.Lock.Unlock()

	if active, bound := l.cache.Key(); !bound || active != key {
		return nil
	}
	return l.sel.Reconcile(l.cache.AvailableIDs())
}

// onStatus flags the cache stale while disconnected and resyncs on reconnect.
func (l *Listener) onStatus(connected bool) {
	if l.isClosed() {
		return
	}
	if !connected {
		l.log.Warn().Msg("realtime channel disconnected, availability may be stale")
		l.cache.MarkStale()
		return
	}

	l.log.Info().Msg("realtime channel connected")
	if _, bound := l.cache.Key(); bound && l.cache.Stale() {
		l.requestReload()
	}
}
