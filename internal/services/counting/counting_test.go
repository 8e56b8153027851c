package counting

import (
	"context"
	"errors"
	"sync"
	"testing"

	"stocktake-system/internal/database/models"
)

// fakeStore keeps sessions in memory and hands out deep copies, the way a
// reload from the database would.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[int64]*models.ReconciliationSession
	nextID    int64
	itemSaves int
	failSaves bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[int64]*models.ReconciliationSession)}
}

func (s *fakeStore) CreateSession(ctx context.Context, session *models.ReconciliationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.RestaurantID == session.RestaurantID && existing.Status == models.SessionStatusCounting {
			return ErrSessionAlreadyActive
		}
	}
	s.nextID++
	session.ID = s.nextID
	for i := range session.Items {
		s.nextID++
		session.Items[i].ID = s.nextID
		session.Items[i].SessionID = session.ID
	}
	s.sessions[session.ID] = copySession(session)
	return nil
}

func (s *fakeStore) ActiveSession(ctx context.Context, restaurantID int64) (*models.ReconciliationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.RestaurantID == restaurantID && session.Status == models.SessionStatusCounting {
			return copySession(session), nil
		}
	}
	return nil, ErrNoActiveSession
}

func (s *fakeStore) SaveItem(ctx context.Context, item *models.ReconciliationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves {
		return errors.New("storage unavailable")
	}
	s.itemSaves++
	for _, session := range s.sessions {
		for i := range session.Items {
			if session.Items[i].ID == item.ID {
				session.Items[i].ActualQuantity = copyFloat(item.ActualQuantity)
				return nil
			}
		}
	}
	return errors.New("item not found")
}

func (s *fakeStore) UpdateSessionStatus(ctx context.Context, sessionID int64, status int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return errors.New("session not found")
	}
	session.Status = status
	return nil
}

// setStoredActual simulates a concurrent writer committing a count directly
// to storage.
func (s *fakeStore) setStoredActual(itemID int64, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		for i := range session.Items {
			if session.Items[i].ID == itemID {
				session.Items[i].ActualQuantity = &value
				return
			}
		}
	}
}

func (s *fakeStore) storedStatus(sessionID int64) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID].Status
}

func copySession(s *models.ReconciliationSession) *models.ReconciliationSession {
	out := *s
	out.Items = make([]models.ReconciliationItem, len(s.Items))
	for i, item := range s.Items {
		item.ActualQuantity = copyFloat(item.ActualQuantity)
		out.Items[i] = item
	}
	return &out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

type fakeCatalog struct {
	products []models.Product
}

func (c *fakeCatalog) ActiveProducts(ctx context.Context, restaurantID int64) ([]models.Product, error) {
	return c.products, nil
}

// fakeLedger stands in for the inventory ledger so tests can assert the
// cancel guarantee: its transaction count must never change.
type fakeLedger struct {
	transactions []models.InventoryTransaction
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{products: []models.Product{
		{ID: 1, ProductName: "Tomatoes", ProductCode: "PRD-001", PurchaseUnit: "kg", UnitCost: "2.00", OnHandQuantity: 50, IsActive: true},
		{ID: 2, ProductName: "Vodka", ProductCode: "PRD-002", PurchaseUnit: "bottle", UnitCost: "24.00", OnHandQuantity: 12, IsActive: true},
		{ID: 3, ProductName: "Napkins", ProductCode: "PRD-003", PurchaseUnit: "case", UnitCost: "", OnHandQuantity: 8, IsActive: true},
	}}
}

func newTestManager() (*Manager, *fakeStore) {
	store := newFakeStore()
	return NewManager(store, testCatalog(), nil), store
}

func TestStartSessionSnapshotsProducts(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()

	session, err := m.StartSession(ctx, 7)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	items := session.Items()
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	for _, item := range items {
		if item.Counted() {
			t.Errorf("item %d should start uncounted", item.ID)
		}
		if item.Variance() != nil {
			t.Errorf("item %d variance should be undefined before counting", item.ID)
		}
	}
	if items[0].ExpectedQuantity != 50 || items[0].UnitCost != "2.00" {
		t.Errorf("expected snapshot not taken from catalog: %+v", items[0])
	}
}

func TestStartSessionExclusive(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()

	first, err := m.StartSession(ctx, 7)
	if err != nil {
		t.Fatalf("first StartSession: %v", err)
	}
	if _, err := m.StartSession(ctx, 7); !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("second StartSession error = %v, want ErrSessionAlreadyActive", err)
	}

	// The losing start must leave the first session untouched.
	if got := store.storedStatus(first.ID()); got != models.SessionStatusCounting {
		t.Errorf("first session status = %d, want counting", got)
	}

	// A different restaurant is unaffected.
	if _, err := m.StartSession(ctx, 8); err != nil {
		t.Errorf("StartSession for other restaurant: %v", err)
	}
}

func TestEnterCountParsing(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	session, _ := m.StartSession(ctx, 7)
	itemID := session.Items()[0].ID

	// Non-numeric input is rejected without mutating state.
	savesBefore := store.itemSaves
	if _, err := m.EnterCount(ctx, session, itemID, "abc"); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("EnterCount(abc) error = %v, want ErrInvalidCount", err)
	}
	if item, _ := session.Item(itemID); item.Counted() {
		t.Error("rejected input must not mutate the item")
	}
	if store.itemSaves != savesBefore {
		t.Error("rejected input must not reach storage")
	}

	// A decimal commits.
	item, err := m.EnterCount(ctx, session, itemID, " 42.5 ")
	if err != nil {
		t.Fatalf("EnterCount(42.5): %v", err)
	}
	if item.ActualQuantity == nil || *item.ActualQuantity != 42.5 {
		t.Fatalf("actual = %v, want 42.5", item.ActualQuantity)
	}
	if v := item.Variance(); v == nil || *v != -7.5 {
		t.Errorf("variance = %v, want -7.5", v)
	}

	// Empty string means uncounted again.
	item, err = m.EnterCount(ctx, session, itemID, "")
	if err != nil {
		t.Fatalf("EnterCount(empty): %v", err)
	}
	if item.Counted() {
		t.Error("empty input should clear the count")
	}

	// Unknown item.
	if _, err := m.EnterCount(ctx, session, 9999, "1"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("EnterCount(unknown item) error = %v, want ErrItemNotFound", err)
	}
}

func TestDirtyEditSurvivesRefresh(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	session, _ := m.StartSession(ctx, 7)
	items := session.Items()
	itemX, itemY := items[0].ID, items[1].ID

	// The write for item X fails mid-edit: the local value stays in flight.
	store.failSaves = true
	if _, err := m.EnterCount(ctx, session, itemX, "12"); err == nil {
		t.Fatal("expected save failure")
	}
	store.failSaves = false
	if !session.Pending(itemX) {
		t.Fatal("item X should still be pending after a failed commit")
	}

	// Meanwhile another writer commits different values for X and Y.
	store.setStoredActual(itemX, 99)
	store.setStoredActual(itemY, 7)

	refreshed, err := m.ActiveSession(ctx, 7)
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if refreshed != session {
		t.Fatal("refresh should reuse the live aggregate")
	}

	x, _ := refreshed.Item(itemX)
	if x.ActualQuantity == nil || *x.ActualQuantity != 12 {
		t.Errorf("in-flight item X = %v, want the locally typed 12", x.ActualQuantity)
	}
	y, _ := refreshed.Item(itemY)
	if y.ActualQuantity == nil || *y.ActualQuantity != 7 {
		t.Errorf("item Y = %v, want the refreshed 7", y.ActualQuantity)
	}

	// Once the in-flight value commits, the dirty mark clears and later
	// refreshes update X normally.
	if _, err := m.EnterCount(ctx, session, itemX, "12"); err != nil {
		t.Fatalf("EnterCount retry: %v", err)
	}
	if session.Pending(itemX) {
		t.Error("pending mark should clear after a successful commit")
	}
	store.setStoredActual(itemX, 31)
	refreshed, _ = m.ActiveSession(ctx, 7)
	x, _ = refreshed.Item(itemX)
	if x.ActualQuantity == nil || *x.ActualQuantity != 31 {
		t.Errorf("committed item X after refresh = %v, want 31", x.ActualQuantity)
	}
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager()
	session, _ := m.StartSession(ctx, 7)
	items := session.Items()

	// Tomatoes: expected 50, counted 42, $2 -> variance value -16.
	if _, err := m.EnterCount(ctx, session, items[0].ID, "42"); err != nil {
		t.Fatal(err)
	}
	// Napkins carry no cost; they count but add nothing to the money total.
	if _, err := m.EnterCount(ctx, session, items[2].ID, "8"); err != nil {
		t.Fatal(err)
	}

	summary := session.Summary()
	if summary.TotalItems != 3 {
		t.Errorf("total items = %d, want 3", summary.TotalItems)
	}
	if summary.TotalItemsCounted != 2 {
		t.Errorf("counted = %d, want 2", summary.TotalItemsCounted)
	}
	if summary.TotalVarianceValue.StringFixed(2) != "-16.00" {
		t.Errorf("total variance value = %s, want -16.00", summary.TotalVarianceValue.StringFixed(2))
	}
}

func TestCompleteSession(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	session, _ := m.StartSession(ctx, 7)

	if err := m.CompleteSession(ctx, session); !errors.Is(err, ErrNoItemsCounted) {
		t.Fatalf("complete with no counts error = %v, want ErrNoItemsCounted", err)
	}

	if _, err := m.EnterCount(ctx, session, session.Items()[0].ID, "42"); err != nil {
		t.Fatal(err)
	}
	if err := m.CompleteSession(ctx, session); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if got := store.storedStatus(session.ID()); got != models.SessionStatusCompleted {
		t.Errorf("stored status = %d, want completed", got)
	}

	// Terminal means immutable.
	if _, err := m.EnterCount(ctx, session, session.Items()[0].ID, "1"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("EnterCount after completion error = %v, want ErrSessionClosed", err)
	}
	if err := m.CancelSession(ctx, session); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("CancelSession after completion error = %v, want ErrSessionClosed", err)
	}

	// The restaurant can start a fresh session afterwards.
	if _, err := m.StartSession(ctx, 7); err != nil {
		t.Errorf("StartSession after completion: %v", err)
	}
}

func TestCancelGuarantee(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager()
	session, _ := m.StartSession(ctx, 7)

	ledger := &fakeLedger{transactions: []models.InventoryTransaction{
		{ID: 1, RestaurantID: 7, ProductID: 1, TransactionType: models.TxTypeSale, Quantity: -3},
	}}
	ledgerBefore := len(ledger.transactions)

	items := session.Items()
	for _, id := range []int64{items[0].ID, items[1].ID} {
		if _, err := m.EnterCount(ctx, session, id, "5"); err != nil {
			t.Fatal(err)
		}
	}
	savesBefore := store.itemSaves

	if session.CountedItems() != 2 {
		t.Fatalf("counted = %d, want 2 before cancel", session.CountedItems())
	}
	if err := m.CancelSession(ctx, session); err != nil {
		t.Fatalf("CancelSession: %v", err)
	}

	if got := store.storedStatus(session.ID()); got != models.SessionStatusCancelled {
		t.Errorf("stored status = %d, want cancelled", got)
	}
	// No inventory adjustment of any kind: the ledger is untouched and no
	// further item writes happened during cancellation.
	if len(ledger.transactions) != ledgerBefore {
		t.Errorf("ledger transaction count changed: %d -> %d", ledgerBefore, len(ledger.transactions))
	}
	if store.itemSaves != savesBefore {
		t.Errorf("cancel performed %d extra item writes", store.itemSaves-savesBefore)
	}
}

func TestParseCount(t *testing.T) {
	if v, err := ParseCount("  "); err != nil || v != nil {
		t.Errorf("ParseCount(blank) = %v, %v; want nil, nil", v, err)
	}
	if v, err := ParseCount("-3.5"); err != nil || v == nil || *v != -3.5 {
		t.Errorf("ParseCount(-3.5) = %v, %v", v, err)
	}
	if _, err := ParseCount("12x"); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("ParseCount(12x) error = %v, want ErrInvalidCount", err)
	}
}
