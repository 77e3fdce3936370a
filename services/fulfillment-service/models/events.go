package models

import "time"

const (
	EventClaim        = "claim"
	EventItemRecorded = "item_recorded"
	EventLinkFailed   = "link_failed"
	EventNotify       = "notify"
	EventOutcome      = "outcome"
)

// FulfillmentEvent is the structured record emitted at every decision point
// of the pipeline.
type FulfillmentEvent struct {
	Type      string    `json:"type"`
	PaymentID string    `json:"payment_id"`
	ProductID string    `json:"product_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
