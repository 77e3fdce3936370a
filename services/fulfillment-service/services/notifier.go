package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/sender"
	"go.uber.org/zap"
)

var errNoRecipient = errors.New("no recipient address")

// Notifier sends one message per invocation. There is no retry; failures
// are reported to the caller and logged.
type Notifier struct {
	sender sender.EmailSender
	logger *zap.Logger
}

func NewNotifier(s sender.EmailSender, logger *zap.Logger) *Notifier {
	return &Notifier{sender: s, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, paymentID, to string, d *Delivery) error {
	if to == "" {
		return errNoRecipient
	}
	if d == nil || d.Body == "" {
		return fmt.Errorf("empty message for payment %s", paymentID)
	}

	res, err := n.sender.SendEmail(ctx, to, d.Subject, d.Body)
	if err != nil {
		n.logger.Error("delivery email failed",
			zap.String("payment_id", paymentID),
			zap.String("to", to),
			zap.Error(err),
		)
		return err
	}

	n.logger.Info("delivery email sent",
		zap.String("payment_id", paymentID),
		zap.String("message_id", res.MessageID),
		zap.Int("items", len(d.Entries)),
	)
	return nil
}
