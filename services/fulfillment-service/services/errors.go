package services

import "errors"

var (
	// ErrVerification means the processor could not be asked; the caller
	// should retry the notification.
	ErrVerification = errors.New("payment verification failed")

	ErrNoItemsIdentified  = errors.New("no item references on payment")
	ErrCatalogLookupEmpty = errors.New("no referenced item exists in the catalog")

	// ErrLedgerWrite means a sale row could not be stored.
	ErrLedgerWrite = errors.New("ledger write failed")
)

// ServiceError is a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }
