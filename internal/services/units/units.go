// Package units converts physical quantities between the measurement systems
// a restaurant actually mixes: purchase packaging (bottles, cases, kg),
// recipe usage (oz, cups, tsp) and ledger units. Generic conversion works
// inside one unit family via canonical base units; per-product overrides win
// over the generic tables and may bridge families.
package units

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownUnit        = errors.New("unknown unit")
	ErrIncompatibleUnits  = errors.New("incompatible units")
	ErrMissingPackageInfo = errors.New("missing package info")
)

type Family int

const (
	FamilyMass Family = iota + 1
	FamilyVolume
	FamilyCount
)

type unitDef struct {
	family Family
	toBase float64 // factor into the family base unit (g, mL, each)
}

// Only mass, volume and count carry generic rules. Anything else (bottle,
// case, keg, ...) is product packaging and needs a per-product override.
var genericUnits = map[string]unitDef{
	// mass, base gram
	"mg": {FamilyMass, 0.001},
	"g":  {FamilyMass, 1},
	"kg": {FamilyMass, 1000},
	"lb": {FamilyMass, 453.592},

	// volume, base millilitre; "oz" means fluid ounce in kitchen usage
	"ml":   {FamilyVolume, 1},
	"l":    {FamilyVolume, 1000},
	"oz":   {FamilyVolume, 29.5735},
	"tsp":  {FamilyVolume, 4.92892},
	"tbsp": {FamilyVolume, 14.7868},
	"cup":  {FamilyVolume, 236.588},
	"pt":   {FamilyVolume, 473.176},
	"qt":   {FamilyVolume, 946.353},
	"gal":  {FamilyVolume, 3785.41},

	// count, base each
	"each":  {FamilyCount, 1},
	"dozen": {FamilyCount, 12},
}

var unitAliases = map[string]string{
	"gram": "g", "grams": "g",
	"kilogram": "kg", "kilograms": "kg",
	"pound": "lb", "pounds": "lb", "lbs": "lb",
	"milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",
	"liter": "l", "liters": "l", "litre": "l", "litres": "l",
	"ounce": "oz", "ounces": "oz", "fl oz": "oz", "floz": "oz",
	"teaspoon": "tsp", "teaspoons": "tsp",
	"tablespoon": "tbsp", "tablespoons": "tbsp",
	"cups": "cup",
	"pint": "pt", "pints": "pt",
	"quart": "qt", "quarts": "qt",
	"gallon": "gal", "gallons": "gal",
	"ea": "each", "unit": "each", "units": "each", "piece": "each", "pieces": "each", "pc": "each",
	"dz": "dozen",
}

// Normalize lowercases, trims and resolves aliases. The result is not
// guaranteed to be a generic unit; packaging labels pass through unchanged.
func Normalize(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if alias, ok := unitAliases[u]; ok {
		return alias
	}
	return u
}

// Overrides is a product-specific conversion table: from-unit to to-unit to
// multiplication factor.
type Overrides map[string]map[string]float64

func (o Overrides) Add(from, to string, factor float64) {
	f, t := Normalize(from), Normalize(to)
	if o[f] == nil {
		o[f] = make(map[string]float64)
	}
	o[f][t] = factor
}

func (o Overrides) lookup(from, to string) (float64, bool) {
	if factor, ok := o[from][to]; ok {
		return factor, true
	}
	// A stored reverse factor still serves, inverted, so that overrides stay
	// round-trip consistent without duplicating every row.
	if factor, ok := o[to][from]; ok && factor != 0 {
		return 1 / factor, true
	}
	return 0, false
}

// Convert expresses qty (in from-unit) as an amount of to-unit. The product
// override table wins over generic family rules; cross-family conversion
// fails with ErrIncompatibleUnits unless an override bridges it. Identity
// conversions return the input unchanged for any quantity sign.
func Convert(qty float64, from, to string, overrides Overrides) (float64, error) {
	f, t := Normalize(from), Normalize(to)
	if f == t {
		return qty, nil
	}

	if factor, ok := overrides.lookup(f, t); ok {
		return qty * factor, nil
	}

	fromDef, fromOK := genericUnits[f]
	toDef, toOK := genericUnits[t]
	if !fromOK {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, from)
	}
	if !toOK {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, to)
	}
	if fromDef.family != toDef.family {
		return 0, fmt.Errorf("%w: %q -> %q", ErrIncompatibleUnits, from, to)
	}

	return qty * fromDef.toBase / toDef.toBase, nil
}

// Impact describes what one recipe execution takes out of a purchased unit.
type Impact struct {
	Deduction        float64         `json:"inventory_deduction"`
	DeductionUnit    string          `json:"inventory_deduction_unit"`
	PercentOfPackage float64         `json:"percentage_of_package"`
	CostImpact       decimal.Decimal `json:"cost_impact"`
	// Approximate is set when conversion failed and the numbers fell back to
	// raw recipe-unit math; callers surface it as a soft warning.
	Approximate bool   `json:"approximate"`
	Warning     string `json:"warning,omitempty"`
}

// CalculateImpact computes the inventory deduction, percentage-of-package and
// cost impact of one recipe usage. When packageSize/packageUnit are present
// (e.g. a 750 mL bottle) the percentage is taken against the package size, so
// a "case" purchase unit still reports the fraction of one bottle. Conversion
// failures degrade to approximate raw math instead of failing: costing
// previews must always render something.
func CalculateImpact(recipeQty float64, recipeUnit string, purchaseQty float64, purchaseUnit string,
	overrides Overrides, unitCost decimal.Decimal, packageSize *float64, packageUnit *string) Impact {

	if packageSize != nil && packageUnit != nil && *packageSize > 0 {
		deduction, err := Convert(recipeQty, recipeUnit, *packageUnit, overrides)
		if err == nil {
			fraction := deduction / *packageSize
			return Impact{
				Deduction:        deduction,
				DeductionUnit:    Normalize(*packageUnit),
				PercentOfPackage: fraction * 100,
				CostImpact:       unitCost.Mul(decimal.NewFromFloat(fraction)),
			}
		}
		return approximateImpact(recipeQty, recipeUnit, err)
	}

	// No package descriptor: percentage-of-package math is impossible, so
	// fall back to raw purchase-unit math with a MissingPackageInfo warning
	// when the caller asked for it implicitly via a non-packaged product.
	deduction, err := Convert(recipeQty, recipeUnit, purchaseUnit, overrides)
	if err != nil {
		return approximateImpact(recipeQty, recipeUnit, err)
	}
	if purchaseQty <= 0 {
		return approximateImpact(recipeQty, recipeUnit,
			fmt.Errorf("%w: purchase quantity %v", ErrMissingPackageInfo, purchaseQty))
	}
	fraction := deduction / purchaseQty
	return Impact{
		Deduction:        deduction,
		DeductionUnit:    Normalize(purchaseUnit),
		PercentOfPackage: fraction * 100,
		CostImpact:       unitCost.Mul(decimal.NewFromFloat(fraction)),
	}
}

func approximateImpact(recipeQty float64, recipeUnit string, err error) Impact {
	return Impact{
		Deduction:     recipeQty,
		DeductionUnit: Normalize(recipeUnit),
		CostImpact:    decimal.Zero,
		Approximate:   true,
		Warning:       err.Error(),
	}
}

// Portions reports how many recipe-sized portions one purchased quantity
// yields. Preview math only; ledger arithmetic never goes through here.
func Portions(purchaseQty float64, purchaseUnit string, perPortionQty float64, recipeUnit string, overrides Overrides) (float64, error) {
	if perPortionQty <= 0 {
		return 0, fmt.Errorf("portion quantity must be positive, got %v", perPortionQty)
	}
	total, err := Convert(purchaseQty, purchaseUnit, recipeUnit, overrides)
	if err != nil {
		return 0, err
	}
	return total / perPortionQty, nil
}
