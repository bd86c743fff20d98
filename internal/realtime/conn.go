package realtime

import (
	"context"
	"errors"
	"sync"
)

var ErrNotConnected = errors.New("realtime channel is not connected")

// Handler receives the raw JSON payload of one event.
type Handler func(payload []byte)

// StatusHandler observes connect/disconnect transitions.
type StatusHandler func(connected bool)

// Subscription releases a handler. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Conn is a named-event broadcast channel. Emit is best-effort; it is a
// notification, never the system of record.
type Conn interface {
	Subscribe(event string, h Handler) Subscription
	WatchStatus(fn StatusHandler) Subscription
	Emit(ctx context.Context, event string, payload any) error
	Connected() bool
}

type subscription struct {
	once sync.Once
	fn   func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.fn)
}

// dispatcher is the handler registry shared by every transport.
type dispatcher struct {
	mu        sync.RWMutex
	next      uint64
	handlers  map[string]map[uint64]Handler
	watchers  map[uint64]StatusHandler
	connected bool
}

func (d *dispatcher) Subscribe(event string, h Handler) Subscription {
	d.mu.Lock()
	if d.handlers == nil {
		d.handlers = make(map[string]map[uint64]Handler)
	}
	if d.handlers[event] == nil {
		d.handlers[event] = make(map[uint64]Handler)
	}
	d.next++
	id := d.next
	d.handlers[event][id] = h
	d.mu.Unlock()

	return &subscription{fn: func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[event], id)
		if len(d.handlers[event]) == 0 {
			delete(d.handlers, event)
		}
	}}
}

func (d *dispatcher) WatchStatus(fn StatusHandler) Subscription {
	d.mu.Lock()
	if d.watchers == nil {
		d.watchers = make(map[uint64]StatusHandler)
	}
	d.next++
	id := d.next
	d.watchers[id] = fn
	d.mu.Unlock()

	return &subscription{fn: func() {
		d.mu.Lock()
		delete(d.watchers, id)
		d.mu.Unlock()
	}}
}

func (d *dispatcher) Connected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// dispatch calls every handler of event outside the registry lock.
func (d *dispatcher) dispatch(event string, payload []byte) {
	d.mu.RLock()
	hs := make([]Handler, 0, len(d.handlers[event]))
	for _, h := range d.handlers[event] {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}

// setStatus notifies watchers on transitions only.
func (d *dispatcher) setStatus(connected bool) {
	d.mu.Lock()
	if d.connected == connected {
		d.mu.Unlock()
		return
	}
	d.connected = connected
	ws := make([]StatusHandler, 0, len(d.watchers))
	for _, w := range d.watchers {
		ws = append(ws, w)
	}
	d.mu.Unlock()

	for _, w := range ws {
		w(connected)
	}
}

// events lists the event names that currently have handlers.
func (d *dispatcher) events() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.handlers))
	for e := range d.handlers {
		out = append(out, e)
	}
	return out
}
