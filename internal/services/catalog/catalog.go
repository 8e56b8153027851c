// Package catalog holds the read-only data collaborators: product catalog,
// recipe catalog, sales feed and inventory ledger. All of them read through
// gorm; the product catalog additionally caches in Redis since it is hit on
// every count-session start and every costing preview.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"stocktake-system/internal/database/models"
)

const (
	PRODUCT_CACHE_PREFIX  = "catalog:product:"
	PRODUCTS_CACHE_PREFIX = "catalog:products:"
	CACHE_TTL_SHORT       = 5 * time.Minute
	CACHE_TTL_MEDIUM      = 30 * time.Minute
)

type ProductService struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewProductService(db *gorm.DB, redisClient *redis.Client) *ProductService {
	return &ProductService{db: db, redis: redisClient}
}

// ActiveProducts returns every active product for the restaurant, conversion
// overrides preloaded. Cache failures fall through to the database.
func (s *ProductService) ActiveProducts(ctx context.Context, restaurantID int64) ([]models.Product, error) {
	cacheKey := fmt.Sprintf("%s%d", PRODUCTS_CACHE_PREFIX, restaurantID)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var products []models.Product
			if json.Unmarshal([]byte(cached), &products) == nil {
				return products, nil
			}
		}
	}

	var products []models.Product
	err := s.db.WithContext(ctx).
		Preload("Conversions").
		Where("restaurant_id = ? AND is_active = ?", restaurantID, true).
		Order("product_name").
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(products); err == nil {
			_ = s.redis.Set(ctx, cacheKey, data, CACHE_TTL_SHORT)
		}
	}
	return products, nil
}

func (s *ProductService) Product(ctx context.Context, id int32) (*models.Product, error) {
	cacheKey := fmt.Sprintf("%s%d", PRODUCT_CACHE_PREFIX, id)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var product models.Product
			if json.Unmarshal([]byte(cached), &product) == nil {
				return &product, nil
			}
		}
	}

	var product models.Product
	if err := s.db.WithContext(ctx).Preload("Conversions").First(&product, id).Error; err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(product); err == nil {
			_ = s.redis.Set(ctx, cacheKey, data, CACHE_TTL_MEDIUM)
		}
	}
	return &product, nil
}

// SearchProducts is the listing surface behind the product API: free-text
// match on name, code and barcode.
func (s *ProductService) SearchProducts(ctx context.Context, restaurantID int64, term string, activeOnly bool) ([]models.Product, error) {
	query := s.db.WithContext(ctx).
		Preload("Conversions").
		Where("restaurant_id = ?", restaurantID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if term != "" {
		searchTerm := "%" + term + "%"
		query = query.Where(
			"product_name ILIKE ? OR product_code ILIKE ? OR barcode ILIKE ?",
			searchTerm, searchTerm, searchTerm,
		)
	}

	var products []models.Product
	if err := query.Order("product_name").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (s *ProductService) InvalidateProductCaches(ctx context.Context, restaurantID int64, productIDs ...int32) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, fmt.Sprintf("%s%d", PRODUCTS_CACHE_PREFIX, restaurantID))
	for _, id := range productIDs {
		_ = s.redis.Del(ctx, fmt.Sprintf("%s%d", PRODUCT_CACHE_PREFIX, id))
	}
}

type RecipeService struct {
	db *gorm.DB
}

func NewRecipeService(db *gorm.DB) *RecipeService {
	return &RecipeService{db: db}
}

// RecipesByPOSItemName maps each POS item name to its recipe bill of
// materials. Later duplicates win, matching how the POS export overwrites
// renamed items.
func (s *RecipeService) RecipesByPOSItemName(ctx context.Context, restaurantID int64) (map[string]models.Recipe, error) {
	var recipes []models.Recipe
	err := s.db.WithContext(ctx).
		Preload("Ingredients").
		Where("restaurant_id = ? AND is_active = ?", restaurantID, true).
		Find(&recipes).Error
	if err != nil {
		return nil, err
	}

	byName := make(map[string]models.Recipe, len(recipes))
	for _, r := range recipes {
		byName[r.PosItemName] = r
	}
	return byName, nil
}

type SalesService struct {
	db *gorm.DB
}

func NewSalesService(db *gorm.DB) *SalesService {
	return &SalesService{db: db}
}

func (s *SalesService) Sales(ctx context.Context, restaurantID int64, from, to time.Time) ([]models.SaleRecord, error) {
	var sales []models.SaleRecord
	err := s.db.WithContext(ctx).
		Where("restaurant_id = ? AND sale_date >= ? AND sale_date <= ?", restaurantID, from, to).
		Order("sale_date").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

type LedgerService struct {
	db *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

func (s *LedgerService) Transactions(ctx context.Context, restaurantID int64, from, to time.Time, txType *int32) ([]models.InventoryTransaction, error) {
	query := s.db.WithContext(ctx).
		Where("restaurant_id = ? AND created_at >= ? AND created_at <= ?", restaurantID, from, to)
	if txType != nil {
		query = query.Where("transaction_type = ?", *txType)
	}

	var transactions []models.InventoryTransaction
	if err := query.Order("created_at").Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}
