package models

import "time"

const (
	SaleStatusApproved = "approved"

	MethodMercadoPago = "mercadopago"
	MethodStripe      = "stripe"
	MethodManual      = "manual_pix"
)

// Sale is the durable proof that one product of one payment was fulfilled.
// (payment_id, product_id) is the primary key; rows are insert-only.
type Sale struct {
	PaymentID     string    `json:"payment_id" gorm:"primaryKey;type:varchar(255)"`
	ProductID     string    `json:"product_id" gorm:"primaryKey;type:varchar(255)"`
	CustomerEmail string    `json:"customer_email" gorm:"type:varchar(320);not null;index"`
	Amount        float64   `json:"amount" gorm:"not null"`
	Status        string    `json:"status" gorm:"type:varchar(20);not null"`
	PaymentMethod string    `json:"payment_method" gorm:"type:varchar(20);not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// SaleFilter drives the admin sales listing.
type SaleFilter struct {
	Email    string
	Page     int
	PageSize int
}
