package counting

import (
	"context"
	"time"

	"gorm.io/gorm"

	"stocktake-system/internal/database/models"
)

// GormStore is the Postgres-backed session store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CreateSession runs the exclusivity check and the insert in one transaction
// so two racing starts cannot both create a counting session.
func (s *GormStore) CreateSession(ctx context.Context, session *models.ReconciliationSession) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.ReconciliationSession{}).
			Where("restaurant_id = ? AND status = ?", session.RestaurantID, models.SessionStatusCounting).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrSessionAlreadyActive
		}
		return tx.Create(session).Error
	})
}

func (s *GormStore) ActiveSession(ctx context.Context, restaurantID int64) (*models.ReconciliationSession, error) {
	var session models.ReconciliationSession
	err := s.db.WithContext(ctx).
		Preload("Items.Product.Conversions").
		Where("restaurant_id = ? AND status = ?", restaurantID, models.SessionStatusCounting).
		First(&session).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveItem writes one item's actual quantity. Single-column update: atomic
// per item, last successful write wins, no cross-item transaction.
func (s *GormStore) SaveItem(ctx context.Context, item *models.ReconciliationItem) error {
	return s.db.WithContext(ctx).Model(&models.ReconciliationItem{}).
		Where("id = ?", item.ID).
		Update("actual_quantity", item.ActualQuantity).Error
}

func (s *GormStore) UpdateSessionStatus(ctx context.Context, sessionID int64, status int32) error {
	updates := map[string]interface{}{"status": status}
	if status == models.SessionStatusCompleted || status == models.SessionStatusCancelled {
		updates["completed_at"] = time.Now()
	}
	return s.db.WithContext(ctx).Model(&models.ReconciliationSession{}).
		Where("id = ?", sessionID).
		Updates(updates).Error
}
