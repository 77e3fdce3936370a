package services

import (
	"context"
	"fmt"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/repository"
)

type RecordOutcome string

const (
	RecordInserted        RecordOutcome = "inserted"
	RecordAlreadyRecorded RecordOutcome = "already_recorded"
)

// LedgerWriter appends sale rows, one per (payment, product).
type LedgerWriter struct {
	sales repository.SaleRepository
}

func NewLedgerWriter(sales repository.SaleRepository) *LedgerWriter {
	return &LedgerWriter{sales: sales}
}

func (l *LedgerWriter) RecordSale(ctx context.Context, paymentID string, item models.Product, buyerEmail string, amount float64, method string) (RecordOutcome, error) {
	inserted, err := l.sales.Insert(ctx, &models.Sale{
		PaymentID:     paymentID,
		ProductID:     item.ID,
		CustomerEmail: buyerEmail,
		Amount:        amount,
		Status:        models.SaleStatusApproved,
		PaymentMethod: method,
	})
	if err != nil {
		return "", fmt.Errorf("%w: payment %s product %s: %v", ErrLedgerWrite, paymentID, item.ID, err)
	}
	if !inserted {
		return RecordAlreadyRecorded, nil
	}
	return RecordInserted, nil
}

// RecordedProducts returns the product ids already in the ledger for a payment.
func (l *LedgerWriter) RecordedProducts(ctx context.Context, paymentID string) (map[string]bool, error) {
	sales, err := l.sales.FindByPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("read ledger for %s: %w", paymentID, err)
	}
	recorded := make(map[string]bool, len(sales))
	for _, s := range sales {
		recorded[s.ProductID] = true
	}
	return recorded, nil
}
