package models

import (
	"time"

	"github.com/shopspring/decimal"

	"stocktake-system/internal/services/units"
)

type Product struct {
	ID             int32   `gorm:"primaryKey"`
	RestaurantID   int64   `gorm:"index;not null"`
	ProductCode    string  `gorm:"size:100;index"`
	Barcode        *string `gorm:"size:100"`
	ProductName    string  `gorm:"size:255"`
	PurchaseUnit   string  `gorm:"size:50"`
	UnitCost       string  `gorm:"size:50"`
	PackageSize    *float64
	PackageUnit    *string `gorm:"size:50"`
	OnHandQuantity float64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Conversions []UnitConversion `gorm:"foreignKey:ProductID"`
}

// UnitConversion is a per-product override row. Overrides take precedence
// over the generic unit-family tables and may bridge families (e.g. a
// volume-to-mass factor for a specific ingredient).
type UnitConversion struct {
	ID        int32  `gorm:"primaryKey"`
	ProductID int32  `gorm:"index;not null"`
	FromUnit  string `gorm:"size:50;not null"`
	ToUnit    string `gorm:"size:50;not null"`
	Factor    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OverrideTable flattens the conversion rows into the lookup shape the units
// package consumes.
func (p *Product) OverrideTable() units.Overrides {
	if len(p.Conversions) == 0 {
		return nil
	}
	ov := make(units.Overrides, len(p.Conversions))
	for _, c := range p.Conversions {
		ov.Add(c.FromUnit, c.ToUnit, c.Factor)
	}
	return ov
}

// UnitCostDecimal reports the parsed unit cost and whether it is usable
// (present, parseable and positive). Missing cost data is a normal
// steady-state condition, not an error.
func (p *Product) UnitCostDecimal() (decimal.Decimal, bool) {
	if p.UnitCost == "" {
		return decimal.Zero, false
	}
	cost, err := decimal.NewFromString(p.UnitCost)
	if err != nil || !cost.IsPositive() {
		return decimal.Zero, false
	}
	return cost, true
}

type Recipe struct {
	ID           int32  `gorm:"primaryKey"`
	RestaurantID int64  `gorm:"index;not null"`
	RecipeName   string `gorm:"size:255"`
	PosItemName  string `gorm:"size:255;index"`
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Ingredients []RecipeIngredient `gorm:"foreignKey:RecipeID"`
}

type RecipeIngredient struct {
	ID        int64 `gorm:"primaryKey"`
	RecipeID  int32 `gorm:"index;not null"`
	ProductID int32 `gorm:"not null"`
	Quantity  float64
	Unit      string `gorm:"size:50"`
	CreatedAt time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

type SaleRecord struct {
	ID           int64  `gorm:"primaryKey"`
	RestaurantID int64  `gorm:"index;not null"`
	PosItemName  string `gorm:"size:255"`
	Quantity     float64
	SaleDate     time.Time `gorm:"index"`
	CreatedAt    time.Time
}

const (
	TxTypeSale int32 = iota + 1
	TxTypeAdjustment
	TxTypeReceipt
	TxTypeCount
)

// InventoryTransaction is a ledger entry produced outside this engine.
// Quantity is signed: deductions are negative, receipts positive.
type InventoryTransaction struct {
	ID              int64 `gorm:"primaryKey"`
	RestaurantID    int64 `gorm:"index;not null"`
	ProductID       int32 `gorm:"index;not null"`
	TransactionType int32 `gorm:"not null"`
	Quantity        float64
	UnitCost        *string   `gorm:"size:50"`
	ReferenceID     *string   `gorm:"size:100"`
	Notes           *string   `gorm:"size:255"`
	CreatedAt       time.Time `gorm:"index"`
}
