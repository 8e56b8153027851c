package counting

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stocktake-system/internal/database/models"
)

// Session is the in-memory aggregate over a persisted counting session. It
// tracks which items have in-flight edits so that a background refresh from
// storage never clobbers a half-typed count: refreshed values are applied to
// every item except the pending ones.
type Session struct {
	mu           sync.Mutex
	record       *models.ReconciliationSession
	pendingEdits map[int64]struct{}
}

func newSession(record *models.ReconciliationSession) *Session {
	return &Session{
		record:       record,
		pendingEdits: make(map[int64]struct{}),
	}
}

func (s *Session) ID() int64           { return s.record.ID }
func (s *Session) RestaurantID() int64 { return s.record.RestaurantID }

func (s *Session) Status() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record.Status
}

func (s *Session) StartedAt() time.Time { return s.record.StartedAt }

// Items returns a copy of the item snapshots; mutating the copy does not
// touch session state.
func (s *Session) Items() []models.ReconciliationItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.ReconciliationItem, len(s.record.Items))
	copy(items, s.record.Items)
	return items
}

func (s *Session) item(itemID int64) *models.ReconciliationItem {
	for i := range s.record.Items {
		if s.record.Items[i].ID == itemID {
			return &s.record.Items[i]
		}
	}
	return nil
}

func (s *Session) Item(itemID int64) (models.ReconciliationItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.item(itemID)
	if it == nil {
		return models.ReconciliationItem{}, false
	}
	return *it, true
}

// BeginEdit marks an item as having an in-flight edit. The mark survives
// refreshes and is cleared only once a value for the item is committed.
func (s *Session) BeginEdit(itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.item(itemID) == nil {
		return ErrItemNotFound
	}
	s.pendingEdits[itemID] = struct{}{}
	return nil
}

func (s *Session) Pending(itemID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pendingEdits[itemID]
	return ok
}

// applyRefresh merges freshly loaded storage state into the aggregate.
// Items with pending edits keep their local ActualQuantity; everything else,
// including session status, takes the stored value.
func (s *Session) applyRefresh(fresh *models.ReconciliationSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pendingValues := make(map[int64]*float64, len(s.pendingEdits))
	for id := range s.pendingEdits {
		if it := s.item(id); it != nil {
			pendingValues[id] = it.ActualQuantity
		}
	}

	s.record = fresh
	for i := range s.record.Items {
		if v, ok := pendingValues[s.record.Items[i].ID]; ok {
			s.record.Items[i].ActualQuantity = v
		}
	}
}

func (s *Session) countedItems() int {
	n := 0
	for i := range s.record.Items {
		if s.record.Items[i].Counted() {
			n++
		}
	}
	return n
}

func (s *Session) CountedItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countedItems()
}

type Summary struct {
	TotalItems         int             `json:"total_items"`
	TotalItemsCounted  int             `json:"total_items_counted"`
	TotalVarianceValue decimal.Decimal `json:"total_variance_value"`
}

// Summary aggregates over the item snapshots. Uncounted items are excluded
// from the counted tally; items without a usable unit cost contribute nothing
// to the monetary total.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{
		TotalItems:         len(s.record.Items),
		TotalVarianceValue: decimal.Zero,
	}
	for i := range s.record.Items {
		item := &s.record.Items[i]
		if !item.Counted() {
			continue
		}
		summary.TotalItemsCounted++
		if v := item.VarianceValue(); v != nil {
			summary.TotalVarianceValue = summary.TotalVarianceValue.Add(*v)
		}
	}
	return summary
}
