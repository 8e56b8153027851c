package counting

import (
	"testing"

	"stocktake-system/internal/database/models"
)

func ptr(v float64) *float64 { return &v }

func sampleItems() []models.ReconciliationItem {
	return []models.ReconciliationItem{
		{ID: 1, ExpectedQuantity: 50, ActualQuantity: ptr(42), UnitCost: "2.00",
			Product: &models.Product{ProductName: "Tomatoes", ProductCode: "PRD-001", PurchaseUnit: "kg"}},
		{ID: 2, ExpectedQuantity: 12, ActualQuantity: nil, UnitCost: "24.00",
			Product: &models.Product{ProductName: "Vodka", ProductCode: "PRD-002", PurchaseUnit: "bottle"}},
		{ID: 3, ExpectedQuantity: 8, ActualQuantity: ptr(8), UnitCost: "",
			Product: &models.Product{ProductName: "Napkins", ProductCode: "PRD-003", PurchaseUnit: "case"}},
		{ID: 4, ExpectedQuantity: 30, ActualQuantity: nil, UnitCost: "1.10",
			Product: &models.Product{ProductName: "Basil", ProductCode: "PRD-004", PurchaseUnit: "kg"}},
	}
}

func ids(items []models.ReconciliationItem) []int64 {
	out := make([]int64, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func assertOrder(t *testing.T, got, want []int64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got order %v, want %v", got, want)
			return
		}
	}
}

func TestFilterItems(t *testing.T) {
	items := sampleItems()

	if got := FilterItems(items, ""); len(got) != 4 {
		t.Errorf("empty filter kept %d items, want 4", len(got))
	}
	if got := FilterItems(items, "vod"); len(got) != 1 || got[0].ID != 2 {
		t.Errorf("name filter = %v", ids(got))
	}
	if got := FilterItems(items, "prd-003"); len(got) != 1 || got[0].ID != 3 {
		t.Errorf("code filter = %v", ids(got))
	}
	if got := FilterItems(items, "zzz"); len(got) != 0 {
		t.Errorf("no-match filter = %v", ids(got))
	}
}

func TestSortItemsByName(t *testing.T) {
	items := sampleItems()
	SortItems(items, SortByName)
	assertOrder(t, ids(items), []int64{4, 3, 1, 2}) // Basil, Napkins, Tomatoes, Vodka
}

func TestSortItemsActualNullsFirst(t *testing.T) {
	items := sampleItems()
	SortItems(items, SortByActual)
	// Uncounted (nil) first, name tie-break: Basil before Vodka; then by
	// value: Napkins(8), Tomatoes(42).
	assertOrder(t, ids(items), []int64{4, 2, 3, 1})
}

func TestSortItemsVarianceNullsFirst(t *testing.T) {
	items := sampleItems()
	SortItems(items, SortByVariance)
	// nil variances first, then larger |variance| before smaller.
	assertOrder(t, ids(items), []int64{4, 2, 1, 3})
}

func TestSortItemsCountedStatus(t *testing.T) {
	items := sampleItems()
	SortItems(items, SortByCounted)
	// Uncounted first, name tie-break within each block.
	assertOrder(t, ids(items), []int64{4, 2, 3, 1})
}

func TestSortItemsByUnit(t *testing.T) {
	items := sampleItems()
	SortItems(items, SortByUnit)
	// bottle, case, kg, kg; kg tie broken by name (Basil before Tomatoes).
	assertOrder(t, ids(items), []int64{2, 3, 4, 1})
}
