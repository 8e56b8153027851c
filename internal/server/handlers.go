package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stocktake-system/internal/database/models"
	"stocktake-system/internal/services/counting"
	"stocktake-system/internal/services/units"
	"stocktake-system/internal/services/usage"
	"stocktake-system/internal/services/variance"
)

// ProductDirectory is the slice of the product catalog the HTTP surface
// needs. catalog.ProductService satisfies it.
type ProductDirectory interface {
	Product(ctx context.Context, id int32) (*models.Product, error)
	SearchProducts(ctx context.Context, restaurantID int64, term string, activeOnly bool) ([]models.Product, error)
}

type Handler struct {
	products ProductDirectory
	counts   *counting.Manager
	analyzer *usage.Analyzer
}

func NewHandler(products ProductDirectory, counts *counting.Manager, analyzer *usage.Analyzer) *Handler {
	return &Handler{
		products: products,
		counts:   counts,
		analyzer: analyzer,
	}
}

// Helper functions
func (h *Handler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (h *Handler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func parseInt64Param(c *gin.Context, param string) (int64, error) {
	return strconv.ParseInt(c.Param(param), 10, 64)
}

// -- Products --

func (h *Handler) ListProducts(c *gin.Context) {
	restaurantID, err := parseInt64Param(c, "id")
	if err != nil {
		h.error(c, http.StatusBadRequest, "invalid restaurant id")
		return
	}

	activeOnly := c.DefaultQuery("active", "true") != "false"
	products, err := h.products.SearchProducts(c.Request.Context(), restaurantID, c.Query("search"), activeOnly)
	if err != nil {
		h.error(c, http.StatusInternalServerError, "failed to list products")
		return
	}
	h.success(c, products)
}

// ProductImpact previews what a recipe usage takes out of one purchased unit:
// deduction, percentage of package and cost. Conversion problems come back as
// approximate numbers with a warning, never as a failure.
func (h *Handler) ProductImpact(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productID"), 10, 32)
	if err != nil {
		h.error(c, http.StatusBadRequest, "invalid product id")
		return
	}
	recipeQty, err := strconv.ParseFloat(c.Query("quantity"), 64)
	if err != nil {
		h.error(c, http.StatusBadRequest, "quantity must be a number")
		return
	}
	recipeUnit := c.Query("unit")
	if recipeUnit == "" {
		h.error(c, http.StatusBadRequest, "unit is required")
		return
	}

	product, err := h.products.Product(c.Request.Context(), int32(productID))
	if err != nil {
		h.error(c, http.StatusNotFound, "product not found")
		return
	}

	unitCost, _ := product.UnitCostDecimal()
	impact := units.CalculateImpact(recipeQty, recipeUnit, 1, product.PurchaseUnit,
		product.OverrideTable(), unitCost, product.PackageSize, product.PackageUnit)

	payload := gin.H{"impact": impact}
	if perPortion, err := strconv.ParseFloat(c.Query("per_portion"), 64); err == nil && perPortion > 0 {
		if portions, err := units.Portions(1, product.PurchaseUnit, perPortion, recipeUnit, product.OverrideTable()); err == nil {
			payload["total_portions"] = portions
		}
	}
	h.success(c, payload)
}

// -- Count sessions --

type itemView struct {
	ID               int64             `json:"id"`
	ProductID        int32             `json:"product_id"`
	ProductName      string            `json:"product_name"`
	ProductCode      string            `json:"product_code"`
	Unit             string            `json:"unit"`
	ExpectedQuantity float64           `json:"expected_quantity"`
	ActualQuantity   *float64          `json:"actual_quantity"`
	Variance         *float64          `json:"variance"`
	VarianceValue    *decimal.Decimal  `json:"variance_value"`
	Severity         variance.Severity `json:"severity"`
	Pending          bool              `json:"pending"`
}

func (h *Handler) itemViews(session *counting.Session, items []models.ReconciliationItem) []itemView {
	views := make([]itemView, 0, len(items))
	for i := range items {
		item := &items[i]
		view := itemView{
			ID:               item.ID,
			ProductID:        item.ProductID,
			ExpectedQuantity: item.ExpectedQuantity,
			ActualQuantity:   item.ActualQuantity,
			Variance:         item.Variance(),
			VarianceValue:    item.VarianceValue(),
			Pending:          session.Pending(item.ID),
		}
		if item.Product != nil {
			view.ProductName = item.Product.ProductName
			view.ProductCode = item.Product.ProductCode
			view.Unit = item.Product.PurchaseUnit
		}
		var cost *decimal.Decimal
		if c, ok := item.UnitCostDecimal(); ok {
			cost = &c
		}
		view.Severity = variance.Classify(item.Variance(), item.VarianceValue(), cost)
		views = append(views, view)
	}
	return views
}

func (h *Handler) sessionPayload(c *gin.Context, session *counting.Session) gin.H {
	items := counting.FilterItems(session.Items(), c.Query("search"))
	counting.SortItems(items, counting.SortField(c.DefaultQuery("sort", "name")))
	return gin.H{
		"id":            session.ID(),
		"restaurant_id": session.RestaurantID(),
		"status":        session.Status(),
		"started_at":    session.StartedAt(),
		"items":         h.itemViews(session, items),
		"summary":       session.Summary(),
	}
}

func (h *Handler) StartSession(c *gin.Context) {
	restaurantID, err := parseInt64Param(c, "id")
	if err != nil {
		h.error(c, http.StatusBadRequest, "invalid restaurant id")
		return
	}

	session, err := h.counts.StartSession(c.Request.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, counting.ErrSessionAlreadyActive) {
			h.error(c, http.StatusConflict, err.Error())
			return
		}
		h.error(c, http.StatusInternalServerError, "failed to start counting session")
		return
	}
	h.success(c, h.sessionPayload(c, session))
}

func (h *Handler) activeSession(c *gin.Context) (*counting.Session, bool) {
	restaurantID, err := parseInt64Param(c, "id")
	if err != nil {
		h.error(c, http.StatusBadRequest, "invalid restaurant id")
		return nil, false
	}

	session, err := h.counts.ActiveSession(c.Request.Context(), restaurantID)
	if err != nil {
		if errors.Is(err, counting.ErrNoActiveSession) {
			h.error(c, http.StatusNotFound, err.Error())
			return nil, false
		}
		h.error(c, http.StatusInternalServerError, "failed to load counting session")
		return nil, false
	}
	return session, true
}

func (h *Handler) GetActiveSession(c *gin.Context) {
	session, ok := h.activeSession(c)
	if !ok {
		return
	}
	h.success(c, h.sessionPayload(c, session))
}

func (h *Handler) GetSummary(c *gin.Context) {
	session, ok := h.activeSession(c)
	if !ok {
		return
	}
	h.success(c, session.Summary())
}

type enterCountRequest struct {
	Count string `json:"count"`
}

func (h *Handler) BeginItemEdit(c *gin.Context) {
	session, ok := h.activeSession(c)
	if !ok {
		return
	}
	itemID, err := parseInt64Param(c, "itemID")
	if err != nil {
		h.error(c, http.StatusBadRequest, "invalid item id")
		return
	}
	if err := session.BeginEdit(itemID); err != nil {
		h.error(c, http.StatusNotFound, err.Error())
		return
	}
	h.success(c, gin.H{"item_id": itemID, "pending": true})
}

func (h *Handler) EnterCount(c *gin.Context) {
	session, ok := h.activeSession(c)
	if !ok {
		return
	}
	itemID, err := parseInt64Param(c, "itemID")
	if err != nil {
		h.error(c, http.StatusBadRequest, "invalid item id")
		return
	}

	var req enterCountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.error(c, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.counts.EnterCount(c.Request.Context(), session, itemID, req.Count)
	if err != nil {
		switch {
		case errors.Is(err, counting.ErrInvalidCount):
			h.error(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, counting.ErrItemNotFound):
			h.error(c, http.StatusNotFound, err.Error())
		case errors.Is(err, counting.ErrSessionClosed):
			h.error(c, http.StatusConflict, err.Error())
		default:
			h.error(c, http.StatusInternalServerError, "failed to save count")
		}
		return
	}
	views := h.itemViews(session, []models.ReconciliationItem{item})
	h.success(c, views[0])
}

func (h *Handler) SaveProgress(c *gin.Context) {
	session, ok := h.activeSession(c)
	if !ok {
		return
	}
	if err := h.counts.SaveProgress(c.Request.Context(), session); err != nil {
		h.error(c, http.StatusInternalServerError, "failed to save progress")
		return
	}
	h.success(c, session.Summary())
}

func (h *Handler) CompleteSession(c *gin.Context) {
	session, ok := h.activeSession(c)
	if !ok {
		return
	}
	if err := h.counts.CompleteSession(c.Request.Context(), session); err != nil {
		if errors.Is(err, counting.ErrNoItemsCounted) {
			h.error(c, http.StatusBadRequest, err.Error())
			return
		}
		h.error(c, http.StatusInternalServerError, "failed to complete session")
		return
	}
	h.success(c, session.Summary())
}

// CancelSession discards the count. Cancelling with counted items present is
// destructive, so it must be confirmed explicitly; the no-adjustment
// guarantee holds whether or not the caller confirmed.
func (h *Handler) CancelSession(c *gin.Context) {
	session, ok := h.activeSession(c)
	if !ok {
		return
	}

	if counted := session.CountedItems(); counted > 0 && c.Query("confirm") != "true" {
		c.JSON(http.StatusConflict, gin.H{
			"success":               false,
			"error":                 "session has counted items; pass confirm=true to discard them",
			"confirmation_required": true,
			"counted_items":         counted,
		})
		return
	}

	if err := h.counts.CancelSession(c.Request.Context(), session); err != nil {
		h.error(c, http.StatusInternalServerError, "failed to cancel session")
		return
	}
	h.success(c, gin.H{"cancelled": true})
}

// -- Usage variance --

func (h *Handler) UsageVariance(c *gin.Context) {
	restaurantID, err := parseInt64Param(c, "id")
	if err != nil {
		h.error(c, http.StatusBadRequest, "invalid restaurant id")
		return
	}

	days := usage.DefaultWindowDays
	if raw := c.Query("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}

	findings, err := h.analyzer.AnalyzeWindow(c.Request.Context(), restaurantID, days)
	if err != nil {
		h.error(c, http.StatusInternalServerError, "failed to analyze usage variance")
		return
	}
	h.success(c, gin.H{
		"window_days": days,
		"findings":    findings,
	})
}
