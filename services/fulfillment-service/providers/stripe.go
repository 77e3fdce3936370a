package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
)

// StripePaymentPrefix marks ledger payment ids that came from Stripe.
const StripePaymentPrefix = "STRIPE_"

var ErrInvalidStripeSignature = errors.New("invalid stripe signature")

// StripeClient verifies Checkout Sessions, parses signed webhooks and opens
// new Checkout Sessions.
type StripeClient struct {
	webhookSecret string
	currency      string
	successURL    string
	cancelURL     string

	getSession func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	newSession func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeClient(secretKey, webhookSecret, successURL, cancelURL string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{
		webhookSecret: webhookSecret,
		currency:      "brl",
		successURL:    successURL,
		cancelURL:     cancelURL,
		getSession:    session.Get,
		newSession:    session.New,
	}
}

// Verify retrieves the Checkout Session identified by sessionID.
func (s *StripeClient) Verify(ctx context.Context, sessionID string) (models.PaymentFacts, error) {
	if strings.TrimSpace(sessionID) == "" {
		return models.PaymentFacts{}, ErrEmptyPaymentID
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.getSession(sessionID, params)
	if err != nil {
		return models.PaymentFacts{}, fmt.Errorf("stripe Verify: %w", err)
	}
	return SessionFacts(cs), nil
}

// SessionFacts maps a Checkout Session onto PaymentFacts.
func SessionFacts(cs *stripe.CheckoutSession) models.PaymentFacts {
	paymentRef := cs.ID
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		paymentRef = cs.PaymentIntent.ID
	}

	status := string(cs.PaymentStatus)
	if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		status = models.PaymentStatusApproved
	}

	facts := models.PaymentFacts{
		PaymentID: StripePaymentPrefix + paymentRef,
		Provider:  models.ProviderStripe,
		Status:    status,
		Amount:    float64(cs.AmountTotal) / 100,
	}
	if cs.CustomerDetails != nil {
		facts.BuyerEmail = cs.CustomerDetails.Email
	}
	if facts.BuyerEmail == "" {
		facts.BuyerEmail = cs.CustomerEmail
	}
	if cs.Metadata != nil {
		facts.MetadataEmail = cs.Metadata["customer_email"]
		facts.CartRefs = cs.Metadata["product_ids"]
	}
	return facts
}

// ParseWebhook checks the Stripe-Signature header and returns the Checkout
// Session id carried by a checkout.session.completed event. Other event
// types yield an empty id and no error.
func (s *StripeClient) ParseWebhook(payload []byte, signature string) (string, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStripeSignature, err)
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return "", nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return "", fmt.Errorf("decode checkout session: %w", err)
	}
	return cs.ID, nil
}

// CheckoutSession is the part of a created session the storefront needs.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession opens a card payment for products. productIDs and
// customerEmail travel in the session metadata for the webhook to read back.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, products []models.Product, productIDs []string, customerEmail string) (*CheckoutSession, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(products))
	for _, p := range products {
		productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(p.Title),
			Metadata: map[string]string{"product_id": p.ID},
		}
		if p.CoverImage != "" {
			productData.Images = stripe.StringSlice([]string{p.CoverImage})
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(s.currency),
				ProductData: productData,
				UnitAmount:  stripe.Int64(int64(math.Round(p.Price * 100))),
			},
			Quantity: stripe.Int64(1),
		})
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(s.successURL),
		CancelURL:          stripe.String(s.cancelURL),
		Metadata: map[string]string{
			"product_ids":    strings.Join(productIDs, ","),
			"customer_email": customerEmail,
		},
	}
	if customerEmail != "" {
		params.CustomerEmail = stripe.String(customerEmail)
	}
	params.Context = ctx

	cs, err := s.newSession(params)
	if err != nil {
		return nil, fmt.Errorf("stripe CreateCheckoutSession: %w", err)
	}
	return &CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}
