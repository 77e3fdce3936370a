package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
	"go.uber.org/zap"
)

func TestParseReferences(t *testing.T) {
	cases := []struct {
		name  string
		facts models.PaymentFacts
		want  []string
	}{
		{"cart wins over primary", models.PaymentFacts{CartRefs: "A,B", PrimaryRef: "Z"}, []string{"A", "B"}},
		{"trims and drops empties", models.PaymentFacts{CartRefs: " A ,, B ,"}, []string{"A", "B"}},
		{"keeps duplicates", models.PaymentFacts{CartRefs: "A,A"}, []string{"A", "A"}},
		{"falls back to primary", models.PaymentFacts{CartRefs: " , ", PrimaryRef: " Z "}, []string{"Z"}},
		{"nothing", models.PaymentFacts{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, services.ParseReferences(tc.facts))
		})
	}
}

func TestBuyerEmail_PrefersMetadata(t *testing.T) {
	assert.Equal(t, "meta@example.com", services.BuyerEmail(models.PaymentFacts{MetadataEmail: " meta@example.com ", BuyerEmail: "mp@example.com"}))
	assert.Equal(t, "mp@example.com", services.BuyerEmail(models.PaymentFacts{BuyerEmail: "mp@example.com"}))
}

func TestResolve_OrderAndMissing(t *testing.T) {
	r := services.NewFulfillmentResolver(newCatalog(product("A", 1), product("C", 3)), zap.NewNop())

	res, err := r.Resolve(context.Background(), models.PaymentFacts{CartRefs: "C,ghost,A", BuyerEmail: "b@example.com"})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "C", res.Items[0].ID)
	assert.Equal(t, "A", res.Items[1].ID)
	assert.Equal(t, []string{"C", "ghost", "A"}, res.References)
	assert.Equal(t, "b@example.com", res.BuyerEmail)
}

func TestResolve_Errors(t *testing.T) {
	r := services.NewFulfillmentResolver(newCatalog(product("A", 1)), zap.NewNop())

	_, err := r.Resolve(context.Background(), models.PaymentFacts{})
	assert.ErrorIs(t, err, services.ErrNoItemsIdentified)

	_, err = r.Resolve(context.Background(), models.PaymentFacts{PrimaryRef: "ghost"})
	assert.ErrorIs(t, err, services.ErrCatalogLookupEmpty)

	broken := newCatalog()
	broken.err = errors.New("redis: connection refused")
	_, err = services.NewFulfillmentResolver(broken, zap.NewNop()).Resolve(context.Background(), models.PaymentFacts{PrimaryRef: "A"})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, services.ErrCatalogLookupEmpty))
}
