package repository

import (
	"context"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"gorm.io/gorm"
)

// ProductRepository is the read side of the catalog.
type ProductRepository interface {
	// FindByIDs returns the products matching ids in no particular order.
	// Unknown ids are simply absent from the result.
	FindByIDs(ctx context.Context, ids []string) ([]models.Product, error)
}

type gormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) ProductRepository {
	return &gormProductRepository{db: db}
}

func (r *gormProductRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error
	return products, err
}
