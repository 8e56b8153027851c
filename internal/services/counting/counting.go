// Package counting drives the stateful physical-inventory-count workflow:
// one session per restaurant, per-item count entry with in-flight edit
// protection, and terminal complete/cancel transitions. It never writes to
// the inventory ledger; applying counted quantities back to stock is the
// adjustment collaborator's job, fed by the completion event.
package counting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"stocktake-system/internal/database/models"
)

const (
	EventSessionStarted   = "count.session.started"
	EventSessionCompleted = "count.session.completed"
	EventSessionCancelled = "count.session.cancelled"
)

// Store is the persistence collaborator. CreateSession must be atomic with
// respect to the one-active-session-per-restaurant check; SaveItem must be an
// atomic per-item write (last successful write wins), nothing cross-item.
type Store interface {
	CreateSession(ctx context.Context, session *models.ReconciliationSession) error
	ActiveSession(ctx context.Context, restaurantID int64) (*models.ReconciliationSession, error)
	SaveItem(ctx context.Context, item *models.ReconciliationItem) error
	UpdateSessionStatus(ctx context.Context, sessionID int64, status int32) error
}

// ProductCatalog is the read-only catalog collaborator.
type ProductCatalog interface {
	ActiveProducts(ctx context.Context, restaurantID int64) ([]models.Product, error)
}

type Manager struct {
	store   Store
	catalog ProductCatalog
	events  *redis.Client // optional; nil disables event publishing

	mu   sync.Mutex
	live map[int64]*Session // restaurantID -> live aggregate
}

func NewManager(store Store, catalog ProductCatalog, events *redis.Client) *Manager {
	return &Manager{
		store:   store,
		catalog: catalog,
		events:  events,
		live:    make(map[int64]*Session),
	}
}

// StartSession snapshots every active product into a reconciliation item with
// the current on-hand stock as the expected quantity and no actual count yet.
// The store rejects the create when a counting session already exists, so two
// racing starts cannot both succeed.
func (m *Manager) StartSession(ctx context.Context, restaurantID int64) (*Session, error) {
	products, err := m.catalog.ActiveProducts(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load products for count: %w", err)
	}

	record := &models.ReconciliationSession{
		RestaurantID: restaurantID,
		Status:       models.SessionStatusCounting,
		StartedAt:    time.Now(),
		Items:        make([]models.ReconciliationItem, 0, len(products)),
	}
	for i := range products {
		p := &products[i]
		record.Items = append(record.Items, models.ReconciliationItem{
			ProductID:        p.ID,
			ExpectedQuantity: p.OnHandQuantity,
			UnitCost:         p.UnitCost,
			Product:          p,
		})
	}

	if err := m.store.CreateSession(ctx, record); err != nil {
		return nil, err
	}

	session := newSession(record)
	m.mu.Lock()
	m.live[restaurantID] = session
	m.mu.Unlock()

	m.publish(ctx, EventSessionStarted, record, nil)
	return session, nil
}

// ActiveSession returns the live aggregate for the restaurant, refreshing it
// from storage. The refresh updates every item except the ones with pending
// edits, whose local values are preserved.
func (m *Manager) ActiveSession(ctx context.Context, restaurantID int64) (*Session, error) {
	record, err := m.store.ActiveSession(ctx, restaurantID)
	if err != nil {
		// Only a genuinely absent session invalidates the live aggregate; a
		// transient storage error must not throw away pending edits.
		if errors.Is(err, ErrNoActiveSession) {
			m.mu.Lock()
			delete(m.live, restaurantID)
			m.mu.Unlock()
		}
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.live[restaurantID]; ok && session.ID() == record.ID {
		session.applyRefresh(record)
		return session, nil
	}
	session := newSession(record)
	m.live[restaurantID] = session
	return session, nil
}

// ParseCount turns raw user input into an actual quantity. The empty string
// means "uncounted" and maps to nil; non-numeric input is rejected.
func ParseCount(raw string) (*float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCount, raw)
	}
	return &value, nil
}

// EnterCount parses raw input and commits the item's actual quantity.
// Invalid input leaves state untouched. The item is marked in-flight for the
// duration of the write; a failed write keeps the mark (and the local value)
// so a background refresh cannot wipe what the user typed.
func (m *Manager) EnterCount(ctx context.Context, session *Session, itemID int64, raw string) (models.ReconciliationItem, error) {
	if session.Status() != models.SessionStatusCounting {
		return models.ReconciliationItem{}, ErrSessionClosed
	}

	value, err := ParseCount(raw)
	if err != nil {
		return models.ReconciliationItem{}, err
	}

	session.mu.Lock()
	item := session.item(itemID)
	if item == nil {
		session.mu.Unlock()
		return models.ReconciliationItem{}, ErrItemNotFound
	}
	item.ActualQuantity = value
	session.pendingEdits[itemID] = struct{}{}
	pending := *item
	session.mu.Unlock()

	if err := m.store.SaveItem(ctx, &pending); err != nil {
		return models.ReconciliationItem{}, fmt.Errorf("failed to save count: %w", err)
	}

	session.mu.Lock()
	delete(session.pendingEdits, itemID)
	committed := *session.item(itemID)
	session.mu.Unlock()
	return committed, nil
}

// SaveProgress persists every item without closing the session. Idempotent,
// no ledger side effects. A failure on one item does not roll back the ones
// already written; the first error is reported.
func (m *Manager) SaveProgress(ctx context.Context, session *Session) error {
	if session.Status() != models.SessionStatusCounting {
		return ErrSessionClosed
	}
	for _, item := range session.Items() {
		it := item
		if err := m.store.SaveItem(ctx, &it); err != nil {
			return fmt.Errorf("failed to save item %d: %w", item.ID, err)
		}
	}
	return nil
}

// CompleteSession closes the session for review-confirmed counts. At least
// one item must have been counted. The completion event carries the counted
// quantities so the downstream adjustment collaborator can write them back as
// the new on-hand stock; this engine itself never touches the ledger.
func (m *Manager) CompleteSession(ctx context.Context, session *Session) error {
	if session.Status() != models.SessionStatusCounting {
		return ErrSessionClosed
	}
	if session.CountedItems() == 0 {
		return ErrNoItemsCounted
	}

	if err := m.SaveProgress(ctx, session); err != nil {
		return err
	}
	if err := m.store.UpdateSessionStatus(ctx, session.ID(), models.SessionStatusCompleted); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	session.mu.Lock()
	session.record.Status = models.SessionStatusCompleted
	now := time.Now()
	session.record.CompletedAt = &now
	counts := countedQuantities(session.record)
	record := session.record
	session.mu.Unlock()

	m.forget(session.RestaurantID(), session.ID())
	m.publish(ctx, EventSessionCompleted, record, counts)
	return nil
}

// CancelSession abandons the count. Guarantee: no inventory adjustment of any
// kind happens and already-entered counts are discarded, never applied
// partially. Callers are expected to confirm with the user first when counted
// items exist; the guarantee holds either way.
func (m *Manager) CancelSession(ctx context.Context, session *Session) error {
	if session.Status() != models.SessionStatusCounting {
		return ErrSessionClosed
	}

	if err := m.store.UpdateSessionStatus(ctx, session.ID(), models.SessionStatusCancelled); err != nil {
		return fmt.Errorf("failed to cancel session: %w", err)
	}

	session.mu.Lock()
	session.record.Status = models.SessionStatusCancelled
	session.pendingEdits = make(map[int64]struct{})
	record := session.record
	session.mu.Unlock()

	m.forget(session.RestaurantID(), session.ID())
	m.publish(ctx, EventSessionCancelled, record, nil)
	return nil
}

func (m *Manager) forget(restaurantID, sessionID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.live[restaurantID]; ok && s.ID() == sessionID {
		delete(m.live, restaurantID)
	}
}

type CountedQuantity struct {
	ProductID int32   `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

func countedQuantities(record *models.ReconciliationSession) []CountedQuantity {
	counts := make([]CountedQuantity, 0, len(record.Items))
	for i := range record.Items {
		item := &record.Items[i]
		if item.Counted() {
			counts = append(counts, CountedQuantity{ProductID: item.ProductID, Quantity: *item.ActualQuantity})
		}
	}
	return counts
}

type sessionEvent struct {
	EventType    string            `json:"event_type"`
	SessionID    int64             `json:"session_id"`
	RestaurantID int64             `json:"restaurant_id"`
	Status       int32             `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Counts       []CountedQuantity `json:"counts,omitempty"`
}

// publish is best effort: a session transition never fails because the event
// bus is down.
func (m *Manager) publish(ctx context.Context, eventType string, record *models.ReconciliationSession, counts []CountedQuantity) {
	if m.events == nil {
		return
	}

	event := sessionEvent{
		EventType:    eventType,
		SessionID:    record.ID,
		RestaurantID: record.RestaurantID,
		Status:       record.Status,
		Timestamp:    time.Now(),
		Counts:       counts,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal session event: %v", err)
		return
	}

	channel := fmt.Sprintf("stocktake:events:%s", eventType)
	if err := m.events.Publish(ctx, channel, eventJSON).Err(); err != nil {
		log.Printf("failed to publish session event: %v", err)
	}
	if err := m.events.Publish(ctx, "stocktake:events:all", eventJSON).Err(); err != nil {
		log.Printf("failed to publish to all channel: %v", err)
	}
}
