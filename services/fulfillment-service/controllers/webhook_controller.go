package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yashrajoria/digital-fulfillment/services/common/errors"
	"github.com/yashrajoria/digital-fulfillment/services/common/logger"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/providers"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
	"go.uber.org/zap"
)

// maxWebhookBody bounds how much of a callback body is read.
const maxWebhookBody = 1 << 20

// StripeWebhookParser is satisfied by *providers.StripeClient.
type StripeWebhookParser interface {
	ParseWebhook(payload []byte, signature string) (string, error)
}

// WebhookController receives payment processor callbacks.
type WebhookController struct {
	fulfillment services.FulfillmentService
	stripe      StripeWebhookParser
	logger      *zap.Logger
}

func NewWebhookController(fulfillment services.FulfillmentService, stripe StripeWebhookParser, logger *zap.Logger) *WebhookController {
	return &WebhookController{fulfillment: fulfillment, stripe: stripe, logger: logger}
}

// MercadoPago handles GET|POST /webhooks/mercadopago
func (wc *WebhookController) MercadoPago(c *gin.Context) {
	log := logger.For(c, wc.logger)

	var body []byte
	if c.Request.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	}

	n := models.ParsePaymentNotification(c.Request.URL.Query(), body)
	if !n.Relevant() {
		c.JSON(http.StatusOK, gin.H{"status": services.OutcomeIgnored, "topic": n.Topic})
		return
	}
	if n.PaymentID == "" {
		log.Warn("mercadopago notification without payment id", zap.String("topic", n.Topic))
		c.JSON(http.StatusOK, gin.H{"status": services.OutcomeIgnored})
		return
	}

	ack := wc.fulfillment.HandleNotification(pipelineContext(c), models.ProviderMercadoPago, n.PaymentID)
	wc.respond(c, ack)
}

// Stripe handles POST /webhooks/stripe
func (wc *WebhookController) Stripe(c *gin.Context) {
	log := logger.For(c, wc.logger)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		_ = c.Error(apperrors.Wrap(apperrors.ErrInvalidPayload, err))
		return
	}

	sessionID, err := wc.stripe.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, providers.ErrInvalidStripeSignature) {
			log.Warn("Stripe webhook signature verification failed", zap.Error(err))
			_ = c.Error(apperrors.Wrap(apperrors.ErrInvalidSignature, err))
			return
		}
		log.Error("Stripe webhook decode failed", zap.Error(err))
		_ = c.Error(apperrors.Wrap(apperrors.ErrInvalidPayload, err))
		return
	}
	if sessionID == "" {
		c.JSON(http.StatusOK, gin.H{"status": services.OutcomeIgnored})
		return
	}

	ack := wc.fulfillment.HandleNotification(pipelineContext(c), models.ProviderStripe, sessionID)
	wc.respond(c, ack)
}

// pipelineContext keeps request values but drops cancellation: once a
// notification is accepted it runs to completion even if the processor
// hangs up.
func pipelineContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func (wc *WebhookController) respond(c *gin.Context, ack services.Acknowledgement) {
	if ack.Err != nil {
		logger.For(c, wc.logger).Info("notification handled with error",
			zap.String("payment_id", ack.PaymentID),
			zap.String("status", string(ack.Status)),
			zap.Error(ack.Err),
		)
	}
	if ack.Retryable {
		// Recorded for the request log; the acknowledgement is the body.
		_ = c.Error(ackError(ack))
	}
	c.JSON(ack.HTTPStatus(), ack)
}

func ackError(ack services.Acknowledgement) *apperrors.Error {
	switch {
	case errors.Is(ack.Err, services.ErrVerification):
		return apperrors.Wrap(apperrors.ErrVerificationFailed, ack.Err)
	case errors.Is(ack.Err, services.ErrLedgerWrite):
		return apperrors.Wrap(apperrors.ErrLedgerWrite, ack.Err)
	default:
		return apperrors.Wrap(apperrors.ErrInternalServer, ack.Err)
	}
}
