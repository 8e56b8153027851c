package counting

import (
	"math"
	"sort"
	"strings"

	"stocktake-system/internal/database/models"
)

type SortField string

const (
	SortByName     SortField = "name"
	SortByUnit     SortField = "unit"
	SortByExpected SortField = "expected"
	SortByActual   SortField = "actual"
	SortByVariance SortField = "variance"
	SortByCounted  SortField = "counted"
)

// FilterItems keeps items whose product name, code or barcode contains the
// query, case-insensitively. An empty query keeps everything.
func FilterItems(items []models.ReconciliationItem, query string) []models.ReconciliationItem {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	filtered := make([]models.ReconciliationItem, 0, len(items))
	for _, item := range items {
		if item.Product == nil {
			continue
		}
		if strings.Contains(strings.ToLower(item.Product.ProductName), q) ||
			strings.Contains(strings.ToLower(item.Product.ProductCode), q) ||
			(item.Product.Barcode != nil && strings.Contains(strings.ToLower(*item.Product.Barcode), q)) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// SortItems orders items by the given field. Nil actual/variance values sort
// first so uncounted items stay visually prioritized; product name and item
// ID break ties to keep the order total.
func SortItems(items []models.ReconciliationItem, field SortField) {
	sort.SliceStable(items, func(a, b int) bool {
		if c := compareItems(&items[a], &items[b], field); c != 0 {
			return c < 0
		}
		if c := strings.Compare(itemName(&items[a]), itemName(&items[b])); c != 0 {
			return c < 0
		}
		return items[a].ID < items[b].ID
	})
}

func itemName(i *models.ReconciliationItem) string {
	if i.Product == nil {
		return ""
	}
	return strings.ToLower(i.Product.ProductName)
}

func itemUnit(i *models.ReconciliationItem) string {
	if i.Product == nil {
		return ""
	}
	return strings.ToLower(i.Product.PurchaseUnit)
}

func compareItems(a, b *models.ReconciliationItem, field SortField) int {
	switch field {
	case SortByUnit:
		return strings.Compare(itemUnit(a), itemUnit(b))
	case SortByExpected:
		return compareFloat(a.ExpectedQuantity, b.ExpectedQuantity)
	case SortByActual:
		return compareNullableFloat(a.ActualQuantity, b.ActualQuantity)
	case SortByVariance:
		// Counted items ordered by |variance| descending so the biggest
		// discrepancies surface right after the uncounted block.
		return compareNullableAbsDesc(a.Variance(), b.Variance())
	case SortByCounted:
		if a.Counted() != b.Counted() {
			if !a.Counted() {
				return -1
			}
			return 1
		}
		return 0
	default:
		return strings.Compare(itemName(a), itemName(b))
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareNullableFloat(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compareFloat(*a, *b)
}

func compareNullableAbsDesc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return compareFloat(math.Abs(*b), math.Abs(*a))
}
