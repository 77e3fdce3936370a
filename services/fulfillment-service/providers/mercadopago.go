package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
)

const defaultMercadoPagoBaseURL = "https://api.mercadopago.com"

const mercadoPagoCurrency = "BRL"

// MercadoPagoClient verifies payments and opens Checkout Pro preferences and
// Brick card payments against the Mercado Pago API.
type MercadoPagoClient struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client

	notificationURL string
	successURL      string
	failureURL      string
}

func NewMercadoPagoClient(accessToken, baseURL string) *MercadoPagoClient {
	if baseURL == "" {
		baseURL = defaultMercadoPagoBaseURL
	}
	return &MercadoPagoClient{
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// WithPreferenceURLs sets where the processor sends notifications and where
// the buyer lands after paying.
func (m *MercadoPagoClient) WithPreferenceURLs(notificationURL, successURL, failureURL string) *MercadoPagoClient {
	m.notificationURL = notificationURL
	m.successURL = successURL
	m.failureURL = failureURL
	return m
}

// ---- Mercado Pago API structs ----

type mpPayment struct {
	Status            string  `json:"status"`
	TransactionAmount float64 `json:"transaction_amount"`
	ExternalReference string  `json:"external_reference"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (m *MercadoPagoClient) Verify(ctx context.Context, paymentID string) (models.PaymentFacts, error) {
	if strings.TrimSpace(paymentID) == "" {
		return models.PaymentFacts{}, ErrEmptyPaymentID
	}

	var payment mpPayment
	path := "/v1/payments/" + url.PathEscape(paymentID)
	if err := m.doRequest(ctx, http.MethodGet, path, nil, nil, &payment); err != nil {
		return models.PaymentFacts{}, fmt.Errorf("mercadopago Verify: %w", err)
	}

	return models.PaymentFacts{
		PaymentID:     paymentID,
		Provider:      models.ProviderMercadoPago,
		Status:        payment.Status,
		Amount:        payment.TransactionAmount,
		BuyerEmail:    payment.Payer.Email,
		MetadataEmail: metadataString(payment.Metadata, "customer_email"),
		PrimaryRef:    payment.ExternalReference,
		CartRefs:      metadataString(payment.Metadata, "product_ids"),
	}, nil
}

type mpPreferenceItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	PictureURL string  `json:"picture_url,omitempty"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
	CurrencyID string  `json:"currency_id"`
}

type mpBackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
}

type mpPreferenceRequest struct {
	Items             []mpPreferenceItem `json:"items"`
	Payer             *mpPayer           `json:"payer,omitempty"`
	ExternalReference string             `json:"external_reference"`
	Metadata          map[string]string  `json:"metadata"`
	BackURLs          *mpBackURLs        `json:"back_urls,omitempty"`
	AutoReturn        string             `json:"auto_return,omitempty"`
	NotificationURL   string             `json:"notification_url,omitempty"`
}

type mpPayer struct {
	Email string `json:"email"`
}

// Preference is the part of a created preference the storefront needs.
type Preference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreatePreference opens a Checkout Pro preference for products. The first
// product id goes in external_reference; the full list and customerEmail
// travel in metadata for the webhook to read back.
func (m *MercadoPagoClient) CreatePreference(ctx context.Context, products []models.Product, productIDs []string, customerEmail string) (*Preference, error) {
	if len(products) == 0 {
		return nil, errors.New("mercadopago CreatePreference: no products")
	}

	items := make([]mpPreferenceItem, 0, len(products))
	for _, p := range products {
		items = append(items, mpPreferenceItem{
			ID:         p.ID,
			Title:      "Apostila: " + p.Title,
			PictureURL: p.CoverImage,
			UnitPrice:  p.Price,
			Quantity:   1,
			CurrencyID: mercadoPagoCurrency,
		})
	}

	body := mpPreferenceRequest{
		Items:             items,
		ExternalReference: productIDs[0],
		Metadata: map[string]string{
			"product_ids":    strings.Join(productIDs, ","),
			"customer_email": customerEmail,
		},
		NotificationURL: m.notificationURL,
	}
	if customerEmail != "" {
		body.Payer = &mpPayer{Email: customerEmail}
	}
	if m.successURL != "" || m.failureURL != "" {
		body.BackURLs = &mpBackURLs{Success: m.successURL, Failure: m.failureURL}
		if m.successURL != "" {
			body.AutoReturn = "approved"
		}
	}

	var pref Preference
	if err := m.doRequest(ctx, http.MethodPost, "/checkout/preferences", body, nil, &pref); err != nil {
		return nil, fmt.Errorf("mercadopago CreatePreference: %w", err)
	}
	return &pref, nil
}

// CreatePayment submits a card payment built by the Payment Brick. The body
// is forwarded as the storefront sent it; idempotencyKey guards against a
// double submit.
func (m *MercadoPagoClient) CreatePayment(ctx context.Context, body json.RawMessage, idempotencyKey string) (json.RawMessage, error) {
	header := http.Header{}
	header.Set("X-Idempotency-Key", idempotencyKey)

	var out json.RawMessage
	if err := m.doRequest(ctx, http.MethodPost, "/v1/payments", body, header, &out); err != nil {
		return nil, fmt.Errorf("mercadopago CreatePayment: %w", err)
	}
	return out, nil
}

// metadataString tolerates the processor echoing metadata values as numbers
// or arrays.
func metadataString(md map[string]interface{}, key string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

// ---- HTTP helper ----

func (m *MercadoPagoClient) doRequest(ctx context.Context, method, path string, in interface{}, header http.Header, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mercadopago API error (status %d): %s", resp.StatusCode, string(respBytes))
	}

	if err := json.Unmarshal(respBytes, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
