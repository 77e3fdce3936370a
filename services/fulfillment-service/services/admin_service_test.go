package services_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
	"go.uber.org/zap"
)

func newTestAdmin(h *harness) services.AdminService {
	return services.NewAdminService(h.sales, h.catalog, h.assembler, h.notifier, h.svc, zap.NewNop())
}

func TestResendDelivery_FreshLinksNoLedgerWrites(t *testing.T) {
	h := newHarness(t, product("A", 10), product("B", 15))
	h.sales.seed("P1", "B", "A")
	admin := newTestAdmin(h)

	res, svcErr := admin.ResendDelivery(context.Background(), "P1")
	require.Nil(t, svcErr)
	assert.Equal(t, 2, res.Items)
	assert.Equal(t, "buyer@example.com", res.Email)

	require.Equal(t, 1, h.sender.count())
	sent := h.sender.sent[0]
	assert.True(t, strings.HasSuffix(sent.Subject, "(Reenvio)"))
	assert.Less(t, strings.Index(sent.Body, "files/B.pdf"), strings.Index(sent.Body, "files/A.pdf"))
	assert.Len(t, h.sales.forPayment("P1"), 2)
}

func TestResendDelivery_UnknownPayment(t *testing.T) {
	h := newHarness(t, product("A", 10))
	_, svcErr := newTestAdmin(h).ResendDelivery(context.Background(), "nope")
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
}

func TestResendDelivery_SendFailure(t *testing.T) {
	h := newHarness(t, product("A", 10))
	h.sales.seed("P1", "A")
	h.sender.err = errors.New("rejected")

	_, svcErr := newTestAdmin(h).ResendDelivery(context.Background(), "P1")
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadGateway, svcErr.StatusCode)
}

func TestCreateManualSale(t *testing.T) {
	h := newHarness(t, product("A", 10), product("B", 15))
	admin := newTestAdmin(h)

	ack, svcErr := admin.CreateManualSale(context.Background(), &services.ManualSaleRequest{
		Email:      "pix@example.com",
		ProductIDs: []string{"A", " B "},
	})
	require.Nil(t, svcErr)
	assert.Equal(t, services.OutcomeDelivered, ack.Status)
	assert.True(t, strings.HasPrefix(ack.PaymentID, services.ManualPaymentPrefix))

	sales := h.sales.forPayment(ack.PaymentID)
	require.Len(t, sales, 2)
	assert.Equal(t, models.MethodManual, sales[0].PaymentMethod)
	assert.Equal(t, "pix@example.com", h.sender.sent[0].To)
}

func TestCreateManualSale_Validation(t *testing.T) {
	h := newHarness(t, product("A", 10))
	admin := newTestAdmin(h)

	_, svcErr := admin.CreateManualSale(context.Background(), &services.ManualSaleRequest{Email: "not-an-email", ProductIDs: []string{"A"}})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)

	_, svcErr = admin.CreateManualSale(context.Background(), &services.ManualSaleRequest{Email: "a@example.com", ProductIDs: []string{" "}})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)

	_, svcErr = admin.CreateManualSale(context.Background(), &services.ManualSaleRequest{Email: "a@example.com", ProductIDs: []string{"ghost"}})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusUnprocessableEntity, svcErr.StatusCode)
}

func TestListSales(t *testing.T) {
	h := newHarness(t)
	h.sales.seed("P1", "A", "B")
	admin := newTestAdmin(h)

	page, svcErr := admin.ListSales(context.Background(), models.SaleFilter{Email: "buyer@example.com", PageSize: 1000})
	require.Nil(t, svcErr)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 20, page.PageSize)
	assert.Equal(t, 1, page.Page)

	h.sales.listErr = errors.New("db down")
	_, svcErr = admin.ListSales(context.Background(), models.SaleFilter{})
	require.NotNil(t, svcErr)
	assert.Equal(t, http.StatusInternalServerError, svcErr.StatusCode)
}
