package models

import "time"

// Product is a catalog item. FileKey is the object key of the downloadable
// file in the delivery bucket.
type Product struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(255)"`
	Title      string    `json:"title" gorm:"type:varchar(255);not null"`
	Price      float64   `json:"price" gorm:"not null"`
	FileKey    string    `json:"file_key" gorm:"type:varchar(1024)"`
	CoverImage string    `json:"cover_image,omitempty" gorm:"type:varchar(1024)"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
