// Package variance classifies count and usage discrepancies into severity
// tiers for downstream badge rendering and reporting.
package variance

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// Severity is a closed set; presentation code switches on it instead of
// comparing ad-hoc strings.
type Severity int

const (
	SeverityNotCounted Severity = iota
	SeverityOK
	SeverityCaution
	SeverityAlert
)

func (s Severity) String() string {
	switch s {
	case SeverityNotCounted:
		return "not_counted"
	case SeverityOK:
		return "ok"
	case SeverityCaution:
		return "caution"
	case SeverityAlert:
		return "alert"
	}
	return "unknown"
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Monetary threshold is preferred over the quantity one: a large variance on
// a cheap item matters less than a small variance on an expensive one. The
// quantity fallback exists because not every product carries cost data.
var valueAlertThreshold = decimal.NewFromInt(50)

const qtyAlertThreshold = 10.0

// Classify maps a variance onto a severity tier. A nil varianceQty means the
// count has not been entered yet; zero variance is OK regardless of price
// availability. With a usable positive unit cost the monetary variance
// decides Caution vs Alert, otherwise the raw quantity does.
func Classify(varianceQty *float64, varianceValue *decimal.Decimal, unitCost *decimal.Decimal) Severity {
	if varianceQty == nil {
		return SeverityNotCounted
	}
	if *varianceQty == 0 {
		return SeverityOK
	}

	if unitCost != nil && unitCost.IsPositive() && varianceValue != nil {
		if varianceValue.Abs().LessThan(valueAlertThreshold) {
			return SeverityCaution
		}
		return SeverityAlert
	}

	if math.Abs(*varianceQty) < qtyAlertThreshold {
		return SeverityCaution
	}
	return SeverityAlert
}
