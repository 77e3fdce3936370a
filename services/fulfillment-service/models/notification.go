package models

import (
	"encoding/json"
	"net/url"
	"strings"
)

const TopicPayment = "payment"

// PaymentNotification is what a processor callback tells us: which payment
// changed, and optionally what kind of resource it is.
type PaymentNotification struct {
	Topic     string `json:"topic,omitempty"`
	PaymentID string `json:"payment_id"`
}

// Relevant reports whether the notification concerns a payment. A missing
// topic is treated as a payment.
func (n PaymentNotification) Relevant() bool {
	return n.Topic == "" || strings.EqualFold(n.Topic, TopicPayment)
}

type notificationBody struct {
	ID    json.RawMessage `json:"id"`
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParsePaymentNotification reads the payment id from the query string
// (id, data.id, data_id) or from a JSON body (data.id, id). Query values win.
func ParsePaymentNotification(query url.Values, body []byte) PaymentNotification {
	var n PaymentNotification
	n.Topic = firstNonEmpty(query.Get("topic"), query.Get("type"))
	n.PaymentID = firstNonEmpty(query.Get("id"), query.Get("data.id"), query.Get("data_id"))

	if len(body) == 0 || (n.PaymentID != "" && n.Topic != "") {
		return n
	}

	var b notificationBody
	if err := json.Unmarshal(body, &b); err != nil {
		return n
	}
	if n.Topic == "" {
		n.Topic = firstNonEmpty(b.Type, b.Topic)
	}
	if n.PaymentID == "" {
		n.PaymentID = firstNonEmpty(rawID(b.Data.ID), rawID(b.ID))
	}
	return n
}

// rawID accepts ids sent either as JSON strings or numbers.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
