package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LockRepository persists fulfillment claims. Insert relies on the
// (payment_id, attempt) primary key so that concurrent inserts of the same
// attempt resolve with exactly one winner.
type LockRepository interface {
	// Insert reports whether the row was created; false means the attempt
	// already exists.
	Insert(ctx context.Context, paymentID string, attempt int, claimedAt time.Time) (bool, error)
	// Latest returns the highest attempt for paymentID, or nil when none exists.
	Latest(ctx context.Context, paymentID string) (*models.FulfillmentLock, error)
}

type gormLockRepository struct {
	db *gorm.DB
}

func NewGormLockRepository(db *gorm.DB) LockRepository {
	return &gormLockRepository{db: db}
}

func (r *gormLockRepository) Insert(ctx context.Context, paymentID string, attempt int, claimedAt time.Time) (bool, error) {
	lock := models.FulfillmentLock{PaymentID: paymentID, Attempt: attempt, ClaimedAt: claimedAt}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&lock)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormLockRepository) Latest(ctx context.Context, paymentID string) (*models.FulfillmentLock, error) {
	var lock models.FulfillmentLock
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("attempt DESC").
		Take(&lock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lock, nil
}
