package slot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/apperror"
)

// ErrSuperseded is returned by a load whose key was replaced by a newer Load before it finished.
var ErrSuperseded = apperror.New(http.StatusConflict, "slot listing superseded by a newer selection")

// Fetcher lists the slots of a court on a day.
type Fetcher interface {
	ListSlots(ctx context.Context, courtID CourtID, date string) ([]Slot, error)
}

// Cache holds the slots of exactly one active (court, date) key.
type Cache struct {
	fetcher Fetcher
	loc     *time.Location

	mu    sync.RWMutex
	key   Key
	bound bool
	slots []Slot
	gen   uint64
	stale bool

	// patches applied while a fetch is in flight, replayed onto its result
	inflight int
	log      []Update
}

func NewCache(fetcher Fetcher, loc *time.Location) *Cache {
	if loc == nil {
		loc = time.UTC
	}
	return &Cache{fetcher: fetcher, loc: loc}
}

// Location is the zone used to normalize dates.
func (c *Cache) Location() *time.Location {
	return c.loc
}

// Binding is an active key bound by Bind whose slots are not fetched yet.
type Binding struct {
	c   *Cache
	key Key
	gen uint64
}

func (b Binding) Key() Key {
	return b.key
}

// Fetch lists the bound key's slots. It returns ErrSuperseded when another
// Bind or Reload started after this binding.
func (b Binding) Fetch(ctx context.Context) ([]Slot, error) {
	return b.c.fetch(ctx, b.key, b.gen)
}

// Bind makes (courtID, date) the active key and drops the previous entry
// without fetching. Callers that must rebind under their own lock fetch later.
func (c *Cache) Bind(courtID CourtID, date string) (Binding, error) {
	day, ok := NormalizeDate(date, c.loc)
	if !ok || courtID <= 0 {
		return Binding{}, ErrInvalidKey
	}
	key := Key{CourtID: courtID, Date: day}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.key = key
	c.bound = true
	c.slots = nil
	c.log = nil
	return Binding{c: c, key: key, gen: c.gen}, nil
}

// Load binds the active key to (courtID, date) and fetches its slots.
// The previous entry is dropped before the fetch starts.
func (c *Cache) Load(ctx context.Context, courtID CourtID, date string) ([]Slot, error) {
	b, err := c.Bind(courtID, date)
	if err != nil {
		return nil, err
	}
	return b.Fetch(ctx)
}

// Reload refetches the active key.
func (c *Cache) Reload(ctx context.Context) ([]Slot, error) {
	c.mu.Lock()
	if !c.bound {
		c.mu.Unlock()
		return nil, ErrNoActive
	}
	c.gen++
	gen, key := c.gen, c.key
	c.mu.Unlock()

	return c.fetch(ctx, key, gen)
}

func (c *Cache) fetch(ctx context.Context, key Key, gen uint64) ([]Slot, error) {
	c.mu.Lock()
	c.inflight++
	from := len(c.log)
	c.mu.Unlock()

	slots, err := c.fetcher.ListSlots(ctx, key.CourtID, key.Date)
	if err == nil {
		err = validate(slots)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	missed := c.settle(from)

	if c.gen != gen {
		return nil, ErrSuperseded
	}

	if err != nil {
		c.slots = nil
		return nil, ErrFetch.WithCause(err)
	}

	c.slots = append([]Slot(nil), slots...)
	// The listing may predate patches delivered during the fetch.
	patch(c.slots, missed)
	c.stale = false
	return append([]Slot(nil), c.slots...), nil
}

// settle ends an in-flight fetch and returns the patches logged since it began.
// Must be called with mu held.
func (c *Cache) settle(from int) []Update {
	c.inflight--
	var missed []Update
	if from <= len(c.log) {
		missed = append(missed, c.log[from:]...)
	}
	if c.inflight == 0 {
		c.log = nil
	}
	return missed
}

func validate(slots []Slot) error {
	seen := make(map[ID]struct{}, len(slots))
	for _, s := range slots {
		if s.ID == 0 {
			return fmt.Errorf("slot without id")
		}
		if s.Price < 0 || s.CreditPoint < 0 {
			return fmt.Errorf("slot %d has a negative price or credit point", s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate slot %d", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// Active returns a copy of the active entry.
func (c *Cache) Active() (Key, []Slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.bound {
		return Key{}, nil, false
	}
	return c.key, append([]Slot(nil), c.slots...), true
}

// Key returns the active key.
func (c *Cache) Key() (Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key, c.bound
}

// ApplyPatch sets availability on the matching slots when key is the active key.
// It reports whether the key matched; a patch for any other key is ignored.
func (c *Cache) ApplyPatch(key Key, updates []Update) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bound || key != c.key {
		return false
	}

	patch(c.slots, updates)
	if c.inflight > 0 {
		c.log = append(c.log, updates...)
	}
	return true
}

// patch applies updates in order, so a later update for a slot wins.
func patch(slots []Slot, updates []Update) {
	if len(updates) == 0 {
		return
	}
	next := make(map[ID]bool, len(updates))
	for _, u := range updates {
		next[u.SlotID] = u.IsAvailable
	}
	for i := range slots {
		if avail, ok := next[slots[i].ID]; ok {
			slots[i].IsAvailable = avail
		}
	}
}

// AvailableIDs returns the ids of the active slots that are currently bookable.
func (c *Cache) AvailableIDs() map[ID]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[ID]struct{}, len(c.slots))
	for _, s := range c.slots {
		if s.IsAvailable {
			ids[s.ID] = struct{}{}
		}
	}
	return ids
}

// Lookup finds a slot of the active entry.
func (c *Cache) Lookup(id ID) (Slot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// MarkStale flags the entry as possibly outdated until the next successful load.
func (c *Cache) MarkStale() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

func (c *Cache) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stale
}
