package providers

import (
	"context"
	"errors"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
)

// ErrEmptyPaymentID is returned by every verifier for a blank id.
var ErrEmptyPaymentID = errors.New("payment id is empty")

// PaymentVerifier asks a payment processor for the authoritative state of a
// payment. Implementations never trust the notification payload.
type PaymentVerifier interface {
	Verify(ctx context.Context, paymentID string) (models.PaymentFacts, error)
}
