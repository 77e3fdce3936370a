package repository

import (
	"context"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SaleRepository interface {
	// Insert reports whether the row was created; false means the
	// (payment_id, product_id) pair was already recorded.
	Insert(ctx context.Context, sale *models.Sale) (bool, error)
	CountByPayment(ctx context.Context, paymentID string) (int64, error)
	FindByPayment(ctx context.Context, paymentID string) ([]models.Sale, error)
	List(ctx context.Context, filter models.SaleFilter) ([]models.Sale, int64, error)
}

type gormSaleRepository struct {
	db *gorm.DB
}

func NewGormSaleRepository(db *gorm.DB) SaleRepository {
	return &gormSaleRepository{db: db}
}

func (r *gormSaleRepository) Insert(ctx context.Context, sale *models.Sale) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sale)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *gormSaleRepository) CountByPayment(ctx context.Context, paymentID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("payment_id = ?", paymentID).
		Count(&n).Error
	return n, err
}

func (r *gormSaleRepository) FindByPayment(ctx context.Context, paymentID string) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&sales).Error
	return sales, err
}

func (r *gormSaleRepository) List(ctx context.Context, filter models.SaleFilter) ([]models.Sale, int64, error) {
	var sales []models.Sale
	var total int64

	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if filter.Page < 1 {
		filter.Page = 1
	}

	query := r.db.WithContext(ctx).Model(&models.Sale{})
	if filter.Email != "" {
		query = query.Where("customer_email = ?", filter.Email)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Find(&sales).Error
	return sales, total, err
}
