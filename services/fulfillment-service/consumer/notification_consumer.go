package consumer

import (
	"context"
	"encoding/json"
	"strings"

	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
	"go.uber.org/zap"
)

// Poller is satisfied by awspkg.SQSConsumer.
type Poller interface {
	StartPolling(ctx context.Context, handler awspkg.MessageHandler) error
}

// NotificationConsumer feeds queued payment notifications into the same
// fulfillment path as the webhook endpoints.
type NotificationConsumer struct {
	poller      Poller
	fulfillment services.FulfillmentService
	logger      *zap.Logger
}

func NewNotificationConsumer(poller Poller, fulfillment services.FulfillmentService, logger *zap.Logger) *NotificationConsumer {
	return &NotificationConsumer{poller: poller, fulfillment: fulfillment, logger: logger}
}

// snsEnvelope unwraps the SNS → SQS message wrapper
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type providerHint struct {
	Provider string `json:"provider"`
}

func (c *NotificationConsumer) Start(ctx context.Context) error {
	return c.poller.StartPolling(ctx, c.Handle)
}

// Handle processes one message body. Only retryable acknowledgements return
// an error, which leaves the message on the queue for redelivery.
func (c *NotificationConsumer) Handle(ctx context.Context, body string) error {
	payload := []byte(body)

	var env snsEnvelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Message != "" {
		payload = []byte(env.Message)
	}

	var hint providerHint
	_ = json.Unmarshal(payload, &hint)
	provider := strings.ToLower(strings.TrimSpace(hint.Provider))
	if provider == "" {
		provider = models.ProviderMercadoPago
	}

	n := models.ParsePaymentNotification(nil, payload)
	if !n.Relevant() || n.PaymentID == "" {
		c.logger.Info("ignoring queued notification",
			zap.String("topic", n.Topic),
			zap.String("payment_id", n.PaymentID),
		)
		return nil
	}

	ack := c.fulfillment.HandleNotification(ctx, provider, n.PaymentID)
	c.logger.Info("queued notification processed",
		zap.String("provider", provider),
		zap.String("payment_id", n.PaymentID),
		zap.String("status", string(ack.Status)),
	)
	if ack.Retryable {
		return ack.Err
	}
	return nil
}
