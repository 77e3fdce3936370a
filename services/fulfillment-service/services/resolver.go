package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/repository"
	"go.uber.org/zap"
)

// Resolution is who gets the delivery and what it contains. Items follow
// the order of References; unknown references are dropped.
type Resolution struct {
	BuyerEmail string
	References []string
	Items      []models.Product
}

type FulfillmentResolver struct {
	products repository.ProductRepository
	logger   *zap.Logger
}

func NewFulfillmentResolver(products repository.ProductRepository, logger *zap.Logger) *FulfillmentResolver {
	return &FulfillmentResolver{products: products, logger: logger}
}

// ParseReferences returns the cart list when present, otherwise the single
// primary reference. Duplicates are kept.
func ParseReferences(facts models.PaymentFacts) []string {
	var refs []string
	for _, part := range strings.Split(facts.CartRefs, ",") {
		if id := strings.TrimSpace(part); id != "" {
			refs = append(refs, id)
		}
	}
	if len(refs) > 0 {
		return refs
	}
	if id := strings.TrimSpace(facts.PrimaryRef); id != "" {
		return []string{id}
	}
	return nil
}

// BuyerEmail prefers the address captured at checkout.
func BuyerEmail(facts models.PaymentFacts) string {
	if email := strings.TrimSpace(facts.MetadataEmail); email != "" {
		return email
	}
	return strings.TrimSpace(facts.BuyerEmail)
}

func (r *FulfillmentResolver) Resolve(ctx context.Context, facts models.PaymentFacts) (*Resolution, error) {
	refs := ParseReferences(facts)
	if len(refs) == 0 {
		return nil, ErrNoItemsIdentified
	}

	products, err := r.products.FindByIDs(ctx, uniqueStrings(refs))
	if err != nil {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}
	if len(products) == 0 {
		return nil, ErrCatalogLookupEmpty
	}

	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	items := make([]models.Product, 0, len(refs))
	for _, ref := range refs {
		p, ok := byID[ref]
		if !ok {
			r.logger.Warn("referenced item not in catalog",
				zap.String("payment_id", facts.PaymentID),
				zap.String("product_id", ref),
			)
			continue
		}
		items = append(items, p)
	}

	return &Resolution{
		BuyerEmail: BuyerEmail(facts),
		References: refs,
		Items:      items,
	}, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
