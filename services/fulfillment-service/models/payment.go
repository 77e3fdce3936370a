package models

import "strings"

const (
	PaymentStatusApproved = "approved"

	ProviderMercadoPago = "mercadopago"
	ProviderStripe      = "stripe"
	ProviderManual      = "manual"
)

// PaymentFacts is the normalized answer of a payment processor for one
// payment id.
type PaymentFacts struct {
	PaymentID string
	Provider  string
	Status    string
	Amount    float64

	// BuyerEmail is the processor's default payer address; it may be an
	// anonymized placeholder.
	BuyerEmail string

	// MetadataEmail is the address captured at checkout time.
	MetadataEmail string

	// PrimaryRef is the single catalog id recorded as the order reference.
	PrimaryRef string

	// CartRefs is the comma-joined id list carried in checkout metadata.
	CartRefs string
}

func (f PaymentFacts) Approved() bool {
	return strings.EqualFold(f.Status, PaymentStatusApproved)
}

// PaymentMethod maps the provider to the ledger's payment_method column.
func (f PaymentFacts) PaymentMethod() string {
	switch f.Provider {
	case ProviderStripe:
		return MethodStripe
	case ProviderManual:
		return MethodManual
	default:
		return MethodMercadoPago
	}
}
