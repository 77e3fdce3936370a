package models

import "time"

// FulfillmentLock is one claim on a payment id. The live claim is the row
// with the highest attempt; reclaiming inserts attempt+1 so the primary key
// arbitrates concurrent reclaimers. Rows are never updated or deleted.
type FulfillmentLock struct {
	PaymentID string    `json:"payment_id" gorm:"primaryKey;type:varchar(255)"`
	Attempt   int       `json:"attempt" gorm:"primaryKey;autoIncrement:false"`
	ClaimedAt time.Time `json:"claimed_at" gorm:"not null"`
}
