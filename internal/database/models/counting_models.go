package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SessionStatusCounting int32 = iota + 1
	SessionStatusCompleted
	SessionStatusCancelled
)

// ReconciliationSession is one physical-count workflow. At most one session
// per restaurant may be in SessionStatusCounting at a time; the completed and
// cancelled states are terminal.
type ReconciliationSession struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	RestaurantID int64 `gorm:"index;not null"`
	Status       int32 `gorm:"not null"`
	StartedAt    time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Items []ReconciliationItem `gorm:"foreignKey:SessionID"`
}

func (s *ReconciliationSession) Terminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusCancelled
}

// ReconciliationItem snapshots one product at session start. ActualQuantity
// stays nil until the item is counted; ExpectedQuantity and UnitCost are
// frozen copies so later catalog edits cannot skew an open count.
type ReconciliationItem struct {
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	SessionID        int64 `gorm:"index;not null"`
	ProductID        int32 `gorm:"not null"`
	ExpectedQuantity float64
	ActualQuantity   *float64
	UnitCost         string `gorm:"size:50"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

// Variance is actual minus expected, defined only once the item is counted.
func (i *ReconciliationItem) Variance() *float64 {
	if i.ActualQuantity == nil {
		return nil
	}
	v := *i.ActualQuantity - i.ExpectedQuantity
	return &v
}

// VarianceValue is the monetary variance, defined only when the item is
// counted and carries a usable unit cost.
func (i *ReconciliationItem) VarianceValue() *decimal.Decimal {
	v := i.Variance()
	if v == nil {
		return nil
	}
	cost, err := decimal.NewFromString(i.UnitCost)
	if err != nil || !cost.IsPositive() {
		return nil
	}
	value := decimal.NewFromFloat(*v).Mul(cost)
	return &value
}

func (i *ReconciliationItem) Counted() bool {
	return i.ActualQuantity != nil
}

func (i *ReconciliationItem) UnitCostDecimal() (decimal.Decimal, bool) {
	if i.UnitCost == "" {
		return decimal.Zero, false
	}
	cost, err := decimal.NewFromString(i.UnitCost)
	if err != nil || !cost.IsPositive() {
		return decimal.Zero, false
	}
	return cost, true
}
