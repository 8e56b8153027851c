// Package usage computes theoretical-vs-actual ingredient consumption over a
// trailing window: what the recipes say the sales should have used versus
// what the inventory ledger recorded as used, with a monetary cost attached
// to each gap.
package usage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stocktake-system/internal/database/models"
	"stocktake-system/internal/services/units"
)

const (
	DefaultWindowDays = 7

	// SignificantVariancePercent flags the rows worth a manager's attention.
	SignificantVariancePercent = 10.0
)

type ProductCatalog interface {
	Product(ctx context.Context, id int32) (*models.Product, error)
}

type RecipeCatalog interface {
	RecipesByPOSItemName(ctx context.Context, restaurantID int64) (map[string]models.Recipe, error)
}

type SalesFeed interface {
	Sales(ctx context.Context, restaurantID int64, from, to time.Time) ([]models.SaleRecord, error)
}

type Ledger interface {
	Transactions(ctx context.Context, restaurantID int64, from, to time.Time, txType *int32) ([]models.InventoryTransaction, error)
}

// Finding is one product's usage gap for the window. Derived on demand,
// never persisted.
type Finding struct {
	ProductID       int32           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Unit            string          `json:"unit"`
	Theoretical     float64         `json:"theoretical_usage"`
	Actual          float64         `json:"actual_usage"`
	Variance        float64         `json:"variance"`
	VariancePercent float64         `json:"variance_percentage"`
	CostImpact      decimal.Decimal `json:"cost_impact"`
	Significant     bool            `json:"significant"`
	// Approximate marks rows where a recipe unit could not be converted to
	// the product's purchase unit and raw quantities were accumulated
	// instead.
	Approximate bool `json:"approximate"`
}

// Analyzer is stateless: read, compute, return. Concurrent runs over the
// same data produce the same result.
type Analyzer struct {
	products ProductCatalog
	recipes  RecipeCatalog
	sales    SalesFeed
	ledger   Ledger
}

func NewAnalyzer(products ProductCatalog, recipes RecipeCatalog, sales SalesFeed, ledger Ledger) *Analyzer {
	return &Analyzer{products: products, recipes: recipes, sales: sales, ledger: ledger}
}

// AnalyzeWindow runs the analysis over the trailing number of days ending now.
func (a *Analyzer) AnalyzeWindow(ctx context.Context, restaurantID int64, days int) ([]Finding, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}
	to := time.Now()
	return a.Analyze(ctx, restaurantID, to.AddDate(0, 0, -days), to)
}

func (a *Analyzer) Analyze(ctx context.Context, restaurantID int64, from, to time.Time) ([]Finding, error) {
	recipes, err := a.recipes.RecipesByPOSItemName(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}
	sales, err := a.sales.Sales(ctx, restaurantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}
	txType := models.TxTypeSale
	transactions, err := a.ledger.Transactions(ctx, restaurantID, from, to, &txType)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger transactions: %w", err)
	}

	theoretical := make(map[int32]float64)
	approximate := make(map[int32]bool)
	productCache := make(map[int32]*models.Product)

	product := func(id int32) (*models.Product, error) {
		if p, ok := productCache[id]; ok {
			return p, nil
		}
		p, err := a.products.Product(ctx, id)
		if err != nil {
			return nil, err
		}
		productCache[id] = p
		return p, nil
	}

	// Theoretical usage: sales joined to recipes by POS item name. Unmapped
	// sales contribute nothing; that is expected steady state, not an error.
	for _, sale := range sales {
		recipe, ok := recipes[sale.PosItemName]
		if !ok {
			continue
		}
		for _, ing := range recipe.Ingredients {
			p, err := product(ing.ProductID)
			if err != nil {
				return nil, fmt.Errorf("failed to load product %d: %w", ing.ProductID, err)
			}
			qty := ing.Quantity * sale.Quantity
			converted, convErr := units.Convert(qty, ing.Unit, p.PurchaseUnit, p.OverrideTable())
			if convErr != nil {
				// Degrade to raw recipe-unit math and mark the row
				// approximate rather than failing the whole report.
				converted = qty
				approximate[ing.ProductID] = true
			}
			theoretical[ing.ProductID] += converted
		}
	}

	// Actual usage: absolute sale-driven ledger deductions, plus the most
	// recently observed unit cost per product within the window.
	actual := make(map[int32]float64)
	latestCost := make(map[int32]decimal.Decimal)
	latestCostAt := make(map[int32]time.Time)
	for _, tx := range transactions {
		actual[tx.ProductID] += math.Abs(tx.Quantity)
		if tx.UnitCost == nil {
			continue
		}
		cost, err := decimal.NewFromString(*tx.UnitCost)
		if err != nil || !cost.IsPositive() {
			continue
		}
		if at, ok := latestCostAt[tx.ProductID]; !ok || tx.CreatedAt.After(at) {
			latestCost[tx.ProductID] = cost
			latestCostAt[tx.ProductID] = tx.CreatedAt
		}
	}

	productIDs := make(map[int32]struct{}, len(theoretical)+len(actual))
	for id := range theoretical {
		productIDs[id] = struct{}{}
	}
	for id := range actual {
		productIDs[id] = struct{}{}
	}

	findings := make([]Finding, 0, len(productIDs))
	for id := range productIDs {
		th := theoretical[id]
		ac := actual[id]
		if th <= 0 && ac <= 0 {
			continue
		}

		p, err := product(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load product %d: %w", id, err)
		}

		v := ac - th
		pct := 0.0
		if th > 0 {
			pct = v / th * 100
		}

		cost, costKnown := latestCost[id], true
		if _, ok := latestCost[id]; !ok {
			cost, costKnown = p.UnitCostDecimal()
		}
		impact := decimal.Zero
		if costKnown {
			impact = decimal.NewFromFloat(v).Mul(cost)
		}

		findings = append(findings, Finding{
			ProductID:       id,
			ProductName:     p.ProductName,
			Unit:            p.PurchaseUnit,
			Theoretical:     th,
			Actual:          ac,
			Variance:        v,
			VariancePercent: pct,
			CostImpact:      impact,
			Significant:     math.Abs(pct) > SignificantVariancePercent,
			Approximate:     approximate[id],
		})
	}

	// Worst offenders first.
	sort.SliceStable(findings, func(i, j int) bool {
		pi, pj := math.Abs(findings[i].VariancePercent), math.Abs(findings[j].VariancePercent)
		if pi != pj {
			return pi > pj
		}
		return findings[i].ProductID < findings[j].ProductID
	})

	return findings, nil
}
