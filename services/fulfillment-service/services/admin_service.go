package services

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/repository"
	"go.uber.org/zap"
)

const ManualPaymentPrefix = "MANUAL_"

var validate = validator.New()

type ResendResult struct {
	PaymentID string `json:"payment_id"`
	Email     string `json:"email"`
	Items     int    `json:"items"`
	Failed    int    `json:"failed"`
}

type ManualSaleRequest struct {
	Email      string   `json:"email" binding:"required"`
	ProductIDs []string `json:"product_ids" binding:"required,min=1"`
}

// UnmarshalJSON also accepts productIds, the key older admin pages post.
func (r *ManualSaleRequest) UnmarshalJSON(data []byte) error {
	type plain ManualSaleRequest
	var aux struct {
		plain
		LegacyProductIDs []string `json:"productIds"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ManualSaleRequest(aux.plain)
	if len(r.ProductIDs) == 0 {
		r.ProductIDs = aux.LegacyProductIDs
	}
	return nil
}

type SalesPage struct {
	Sales    []models.Sale `json:"sales"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// AdminService backs the operator endpoints.
type AdminService interface {
	ResendDelivery(ctx context.Context, paymentID string) (*ResendResult, *ServiceError)
	CreateManualSale(ctx context.Context, req *ManualSaleRequest) (*Acknowledgement, *ServiceError)
	ListSales(ctx context.Context, filter models.SaleFilter) (*SalesPage, *ServiceError)
}

type adminServiceImpl struct {
	sales       repository.SaleRepository
	products    repository.ProductRepository
	assembler   *DeliveryAssembler
	notifier    *Notifier
	fulfillment FulfillmentService
	logger      *zap.Logger
}

func NewAdminService(
	sales repository.SaleRepository,
	products repository.ProductRepository,
	assembler *DeliveryAssembler,
	notifier *Notifier,
	fulfillment FulfillmentService,
	logger *zap.Logger,
) AdminService {
	return &adminServiceImpl{
		sales:       sales,
		products:    products,
		assembler:   assembler,
		notifier:    notifier,
		fulfillment: fulfillment,
		logger:      logger,
	}
}

// ResendDelivery issues fresh links for everything recorded under paymentID
// and mails them to the recorded buyer. The ledger is only read.
func (s *adminServiceImpl) ResendDelivery(ctx context.Context, paymentID string) (*ResendResult, *ServiceError) {
	sales, err := s.sales.FindByPayment(ctx, paymentID)
	if err != nil {
		s.logger.Error("resend: read ledger failed", zap.String("payment_id", paymentID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to read sales"}
	}
	if len(sales) == 0 {
		return nil, &ServiceError{StatusCode: http.StatusNotFound, Message: "No sales recorded for payment"}
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("resend: catalog lookup failed", zap.String("payment_id", paymentID), zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to load products"}
	}
	if len(products) == 0 {
		return nil, &ServiceError{StatusCode: http.StatusUnprocessableEntity, Message: "Recorded products no longer exist"}
	}

	d, err := s.assembler.Assemble(ctx, paymentID, orderByIDs(products, ids), MessageResend)
	if err != nil {
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to render message"}
	}
	if len(d.Entries) == 0 {
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to issue download links"}
	}

	email := sales[0].CustomerEmail
	if err := s.notifier.Notify(ctx, paymentID, email, d); err != nil {
		return nil, &ServiceError{StatusCode: http.StatusBadGateway, Message: "Failed to send email: " + err.Error()}
	}

	return &ResendResult{PaymentID: paymentID, Email: email, Items: len(d.Entries), Failed: len(d.Failed)}, nil
}

// CreateManualSale records an offline payment and delivers it through the
// regular pipeline.
func (s *adminServiceImpl) CreateManualSale(ctx context.Context, req *ManualSaleRequest) (*Acknowledgement, *ServiceError) {
	email := strings.TrimSpace(req.Email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "Invalid email"}
	}

	var ids []string
	for _, id := range req.ProductIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, &ServiceError{StatusCode: http.StatusBadRequest, Message: "At least one product id is required"}
	}

	facts := models.PaymentFacts{
		PaymentID:     ManualPaymentPrefix + uuid.NewString(),
		Provider:      models.ProviderManual,
		Status:        models.PaymentStatusApproved,
		MetadataEmail: email,
		CartRefs:      strings.Join(ids, ","),
	}

	ack := s.fulfillment.Fulfill(ctx, facts)
	switch ack.Status {
	case OutcomeUnresolvable:
		return &ack, &ServiceError{StatusCode: http.StatusUnprocessableEntity, Message: "None of the products exist"}
	case OutcomeFailed:
		return &ack, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Manual sale failed"}
	}
	return &ack, nil
}

func (s *adminServiceImpl) ListSales(ctx context.Context, filter models.SaleFilter) (*SalesPage, *ServiceError) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	sales, total, err := s.sales.List(ctx, filter)
	if err != nil {
		s.logger.Error("list sales failed", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusInternalServerError, Message: "Failed to list sales"}
	}
	return &SalesPage{Sales: sales, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

func orderByIDs(products []models.Product, ids []string) []models.Product {
	byID := make(map[string]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	out := make([]models.Product, 0, len(products))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	return out
}
