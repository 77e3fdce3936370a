package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/providers"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/repository"
	"go.uber.org/zap"
)

type CheckoutItem struct {
	ID string `json:"id" binding:"required"`
}

type CheckoutRequest struct {
	Items         []CheckoutItem `json:"items" binding:"required,min=1,dive"`
	CustomerEmail string         `json:"customer_email"`
}

// CheckoutSessionCreator is satisfied by *providers.StripeClient.
type CheckoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, products []models.Product, productIDs []string, customerEmail string) (*providers.CheckoutSession, error)
}

// MercadoPagoCheckout is satisfied by *providers.MercadoPagoClient.
type MercadoPagoCheckout interface {
	CreatePreference(ctx context.Context, products []models.Product, productIDs []string, customerEmail string) (*providers.Preference, error)
	CreatePayment(ctx context.Context, body json.RawMessage, idempotencyKey string) (json.RawMessage, error)
}

type CheckoutService interface {
	CreateStripeCheckout(ctx context.Context, req *CheckoutRequest) (*providers.CheckoutSession, *ServiceError)
	CreateMercadoPagoCheckout(ctx context.Context, req *CheckoutRequest) (*providers.Preference, *ServiceError)
	ProcessMercadoPagoPayment(ctx context.Context, body json.RawMessage, idempotencyKey string) (json.RawMessage, *ServiceError)
}

type checkoutServiceImpl struct {
	products    repository.ProductRepository
	stripe      CheckoutSessionCreator
	mercadoPago MercadoPagoCheckout
	logger      *zap.Logger
}

func NewCheckoutService(products repository.ProductRepository, stripe CheckoutSessionCreator, mercadoPago MercadoPagoCheckout, logger *zap.Logger) CheckoutService {
	return &checkoutServiceImpl{products: products, stripe: stripe, mercadoPago: mercadoPago, logger: logger}
}

// CreateStripeCheckout prices the cart from the catalog, never from the
// request, and opens a Stripe Checkout Session for it.
func (s *checkoutServiceImpl) CreateStripeCheckout(ctx context.Context, req *CheckoutRequest) (*providers.CheckoutSession, *ServiceError) {
	products, productIDs, svcErr := s.priceCart(ctx, req)
	if svcErr != nil {
		return nil, svcErr
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, products, productIDs, strings.TrimSpace(req.CustomerEmail))
	if err != nil {
		s.logger.Error("create checkout session failed", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to create checkout session"}
	}
	return session, nil
}

// CreateMercadoPagoCheckout prices the cart from the catalog and opens a
// Checkout Pro preference whose notifications come back to the webhook.
func (s *checkoutServiceImpl) CreateMercadoPagoCheckout(ctx context.Context, req *CheckoutRequest) (*providers.Preference, *ServiceError) {
	if s.mercadoPago == nil {
		return nil, &ServiceError{StatusCode: http.StatusServiceUnavailable, Message: "Mercado Pago is not configured"}
	}
	products, productIDs, svcErr := s.priceCart(ctx, req)
	if svcErr != nil {
		return nil, svcErr
	}

	pref, err := s.mercadoPago.CreatePreference(ctx, products, productIDs, strings.TrimSpace(req.CustomerEmail))
	if err != nil {
		s.logger.Error("create preference failed", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to create checkout"}
	}
	return pref, nil
}

// ProcessMercadoPagoPayment forwards a Payment Brick submission. A missing
// idempotency key gets a fresh one.
func (s *checkoutServiceImpl) ProcessMercadoPagoPayment(ctx context.Context, body json.RawMessage, idempotencyKey string) (json.RawMessage, *ServiceError) {
	if s.mercadoPago == nil {
		return nil, &ServiceError{StatusCode: http.StatusServiceUnavailable, Message: "Mercado Pago is not configured"}
	}
	if len(body) == 0 || !json.Valid(body) {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid payment form"}
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = uuid.NewString()
	}

	out, err := s.mercadoPago.CreatePayment(ctx, body, idempotencyKey)
	if err != nil {
		s.logger.Error("create payment failed", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to process payment"}
	}
	return out, nil
}

// priceCart loads the requested items from the catalog, in request order.
func (s *checkoutServiceImpl) priceCart(ctx context.Context, req *CheckoutRequest) ([]models.Product, []string, *ServiceError) {
	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		if id := strings.TrimSpace(item.ID); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Cart is empty"}
	}

	found, err := s.products.FindByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		s.logger.Error("checkout catalog lookup failed", zap.Error(err))
		return nil, nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to load products"}
	}

	products := orderByIDs(found, ids)
	if len(products) == 0 {
		return nil, nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "No valid products in cart"}
	}
	productIDs := make([]string, len(products))
	for i, p := range products {
		productIDs[i] = p.ID
	}
	return products, productIDs, nil
}
