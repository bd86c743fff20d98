package selection

import (
	"net/http"
	"sync"

	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/apperror"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

// DefaultLimit is the number of slots one booking may hold.
const DefaultLimit = 3

var ErrLimitExceeded = apperror.New(http.StatusUnprocessableEntity, "selection limit reached")

// Result tells which way a toggle went.
type Result struct {
	Slot  slot.Slot
	Added bool
	Size  int
}

// Line is the draft tuple the booking API expects for each selected slot.
type Line struct {
	SlotID      slot.ID `json:"slot_id"`
	Price       float64 `json:"price"`
	CreditPoint float64 `json:"credit_point"`
}

// Set is the ordered, bounded selection of the booking being composed.
type Set struct {
	mu    sync.Mutex
	limit int
	items []slot.Slot
}

func NewSet(limit int) *Set {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Set{limit: limit}
}

// Toggle removes s when it is selected and adds it otherwise.
func (s *Set) Toggle(sl slot.Slot) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(sl.ID); i >= 0 {
		removed := s.items[i]
		s.items = append(s.items[:i:i], s.items[i+1:]...)
		return Result{Slot: removed, Size: len(s.items)}, nil
	}

	if len(s.items) >= s.limit {
		return Result{Size: len(s.items)}, ErrLimitExceeded
	}

	s.items = append(s.items, sl)
	return Result{Slot: sl, Added: true, Size: len(s.items)}, nil
}

// Reconcile keeps only members whose id is in available and returns the dropped ones.
func (s *Set) Reconcile(available map[slot.ID]struct{}) []slot.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []slot.Slot
	kept := s.items[:0:0]
	for _, it := range s.items {
		if _, ok := available[it.ID]; ok {
			kept = append(kept, it)
			continue
		}
		dropped = append(dropped, it)
	}
	s.items = kept
	return dropped
}

func (s *Set) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

func (s *Set) Items() []slot.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]slot.Slot(nil), s.items...)
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Set) Contains(id slot.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

// Lines derives the booking draft tuples in selection order.
func (s *Set) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]Line, len(s.items))
	for i, it := range s.items {
		lines[i] = Line{SlotID: it.ID, Price: it.Price, CreditPoint: it.CreditPoint}
	}
	return lines
}

func (s *Set) indexOf(id slot.ID) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}
