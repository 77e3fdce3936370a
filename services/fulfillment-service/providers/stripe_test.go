package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
)

func newTestStripeClient() *StripeClient {
	return &StripeClient{
		webhookSecret: "whsec_test",
		currency:      "brl",
		successURL:    "https://shop.example/ok",
		cancelURL:     "https://shop.example/",
	}
}

func TestSessionFacts_Paid(t *testing.T) {
	cs := &stripe.CheckoutSession{
		ID:              "cs_1",
		PaymentStatus:   stripe.CheckoutSessionPaymentStatusPaid,
		PaymentIntent:   &stripe.PaymentIntent{ID: "pi_9"},
		AmountTotal:     2990,
		CustomerDetails: &stripe.CheckoutSessionCustomerDetails{Email: "card@example.com"},
		Metadata:        map[string]string{"product_ids": "A,B", "customer_email": "buyer@example.com"},
	}

	facts := SessionFacts(cs)
	assert.True(t, facts.Approved())
	assert.Equal(t, "STRIPE_pi_9", facts.PaymentID)
	assert.Equal(t, models.MethodStripe, facts.PaymentMethod())
	assert.Equal(t, 29.9, facts.Amount)
	assert.Equal(t, "card@example.com", facts.BuyerEmail)
	assert.Equal(t, "buyer@example.com", facts.MetadataEmail)
	assert.Equal(t, "A,B", facts.CartRefs)
}

func TestSessionFacts_UnpaidFallsBackToSessionID(t *testing.T) {
	facts := SessionFacts(&stripe.CheckoutSession{
		ID:            "cs_2",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
	})
	assert.False(t, facts.Approved())
	assert.Equal(t, "STRIPE_cs_2", facts.PaymentID)
}

func TestStripeVerify(t *testing.T) {
	c := newTestStripeClient()
	c.getSession = func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		assert.Equal(t, "cs_1", id)
		return &stripe.CheckoutSession{ID: id, PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid}, nil
	}

	facts, err := c.Verify(context.Background(), "cs_1")
	require.NoError(t, err)
	assert.True(t, facts.Approved())

	c.getSession = func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("network down")
	}
	_, err = c.Verify(context.Background(), "cs_1")
	assert.Error(t, err)

	_, err = c.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyPaymentID)
}

func signedPayload(t *testing.T, secret string, body string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	c := newTestStripeClient()
	header, payload := signedPayload(t, "whsec_test",
		`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_77","object":"checkout.session"}}}`)

	id, err := c.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "cs_77", id)
}

func TestParseWebhook_OtherEventIgnored(t *testing.T) {
	c := newTestStripeClient()
	header, payload := signedPayload(t, "whsec_test",
		`{"id":"evt_2","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`)

	id, err := c.ParseWebhook(payload, header)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	c := newTestStripeClient()
	header, payload := signedPayload(t, "whsec_other",
		`{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)

	_, err := c.ParseWebhook(payload, header)
	assert.ErrorIs(t, err, ErrInvalidStripeSignature)
}

func TestCreateCheckoutSession(t *testing.T) {
	c := newTestStripeClient()
	var got *stripe.CheckoutSessionParams
	c.newSession = func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = params
		return &stripe.CheckoutSession{ID: "cs_new", URL: "https://checkout.stripe.test/cs_new"}, nil
	}

	out, err := c.CreateCheckoutSession(context.Background(),
		[]models.Product{{ID: "A", Title: "Guide A", Price: 19.99}},
		[]string{"A"}, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cs_new", out.ID)

	require.Len(t, got.LineItems, 1)
	assert.Equal(t, int64(1999), *got.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "A", got.Metadata["product_ids"])
	assert.Equal(t, "buyer@example.com", *got.CustomerEmail)
}
