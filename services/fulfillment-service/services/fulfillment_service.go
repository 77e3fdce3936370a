package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/providers"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeDelivered      Outcome = "delivered"
	OutcomeNotApproved    Outcome = "not_approved"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeUnresolvable   Outcome = "unresolvable"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailed         Outcome = "failed"
	OutcomeIgnored        Outcome = "ignored"
)

const (
	NotifySent    = "sent"
	NotifyFailed  = "failed"
	NotifySkipped = "skipped"
)

// Acknowledgement is the answer returned to the notification channel.
// Retryable acknowledgements map to a 5xx so the sender tries again.
type Acknowledgement struct {
	Status    Outcome `json:"status"`
	PaymentID string  `json:"payment_id,omitempty"`
	Delivered int     `json:"delivered"`
	Retryable bool    `json:"-"`
	Err       error   `json:"-"`
}

func (a Acknowledgement) HTTPStatus() int {
	if a.Retryable {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

// FulfillmentService runs a payment notification through verification,
// claim, resolution, ledger, delivery and notification.
type FulfillmentService interface {
	HandleNotification(ctx context.Context, provider, paymentID string) Acknowledgement
	Fulfill(ctx context.Context, facts models.PaymentFacts) Acknowledgement
}

type fulfillmentServiceImpl struct {
	verifiers map[string]providers.PaymentVerifier
	guard     *IdempotencyGuard
	resolver  *FulfillmentResolver
	ledger    *LedgerWriter
	assembler *DeliveryAssembler
	notifier  *Notifier
	events    EventSink
	logger    *zap.Logger
}

func NewFulfillmentService(
	verifiers map[string]providers.PaymentVerifier,
	guard *IdempotencyGuard,
	resolver *FulfillmentResolver,
	ledger *LedgerWriter,
	assembler *DeliveryAssembler,
	notifier *Notifier,
	events EventSink,
	logger *zap.Logger,
) FulfillmentService {
	return &fulfillmentServiceImpl{
		verifiers: verifiers,
		guard:     guard,
		resolver:  resolver,
		ledger:    ledger,
		assembler: assembler,
		notifier:  notifier,
		events:    events,
		logger:    logger,
	}
}

func (s *fulfillmentServiceImpl) HandleNotification(ctx context.Context, provider, paymentID string) (ack Acknowledgement) {
	ack.PaymentID = paymentID
	defer s.recoverPanic(ctx, &ack)

	verifier, ok := s.verifiers[provider]
	if !ok {
		ack = Acknowledgement{Status: OutcomeFailed, PaymentID: paymentID, Retryable: true,
			Err: fmt.Errorf("%w: no verifier for provider %q", ErrVerification, provider)}
		s.finish(ctx, ack)
		return ack
	}

	facts, err := verifier.Verify(ctx, paymentID)
	if err != nil {
		s.logger.Error("payment verification failed",
			zap.String("provider", provider),
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		ack = Acknowledgement{Status: OutcomeFailed, PaymentID: paymentID, Retryable: true,
			Err: fmt.Errorf("%w: %v", ErrVerification, err)}
		s.finish(ctx, ack)
		return ack
	}
	if facts.PaymentID == "" {
		facts.PaymentID = paymentID
	}

	if !facts.Approved() {
		s.logger.Info("payment not approved",
			zap.String("payment_id", facts.PaymentID),
			zap.String("status", facts.Status),
		)
		ack = Acknowledgement{Status: OutcomeNotApproved, PaymentID: facts.PaymentID}
		s.finish(ctx, ack)
		return ack
	}

	return s.Fulfill(ctx, facts)
}

// Fulfill runs an approved payment from the claim onward.
func (s *fulfillmentServiceImpl) Fulfill(ctx context.Context, facts models.PaymentFacts) (ack Acknowledgement) {
	ack.PaymentID = facts.PaymentID
	defer s.recoverPanic(ctx, &ack)

	ack = s.fulfill(ctx, facts)
	s.finish(ctx, ack)
	return ack
}

func (s *fulfillmentServiceImpl) fulfill(ctx context.Context, facts models.PaymentFacts) (ack Acknowledgement) {
	paymentID := facts.PaymentID
	log := s.logger.With(zap.String("payment_id", paymentID))

	// held is the attempt this invocation owns; zero means no claim.
	held := 0
	defer func() {
		if held == 0 {
			return
		}
		if r := recover(); r != nil {
			s.release(ctx, paymentID, held)
			panic(r)
		}
		if ack.Retryable {
			s.release(ctx, paymentID, held)
		}
	}()

	claim, err := s.guard.TryClaim(ctx, paymentID)
	if err != nil {
		log.Error("claim failed", zap.Error(err))
		return Acknowledgement{Status: OutcomeFailed, PaymentID: paymentID, Retryable: true, Err: err}
	}
	s.events.Emit(ctx, newEvent(models.EventClaim, paymentID, "", string(claim.Outcome),
		fmt.Sprintf("attempt=%d prior_sales=%d", claim.Attempt, claim.PriorSales)))

	resumable := claim.Outcome == ClaimAlreadyLive && claim.Stale && claim.PriorSales > 0
	if claim.Outcome == ClaimAlreadyLive && !resumable {
		return Acknowledgement{Status: OutcomeDuplicate, PaymentID: paymentID}
	}
	if !resumable {
		held = claim.Attempt
	}

	res, err := s.resolver.Resolve(ctx, facts)
	if err != nil {
		if errors.Is(err, ErrNoItemsIdentified) || errors.Is(err, ErrCatalogLookupEmpty) {
			log.Warn("payment has no deliverable items", zap.Error(err))
			return Acknowledgement{Status: OutcomeUnresolvable, PaymentID: paymentID, Err: err}
		}
		log.Error("resolve failed", zap.Error(err))
		return Acknowledgement{Status: OutcomeFailed, PaymentID: paymentID, Retryable: true, Err: err}
	}

	items := res.Items
	if resumable {
		items, err = s.missingItems(ctx, paymentID, res.Items)
		if err != nil {
			log.Error("read ledger for resume failed", zap.Error(err))
			return Acknowledgement{Status: OutcomeFailed, PaymentID: paymentID, Retryable: true, Err: err}
		}
		if len(items) == 0 {
			return Acknowledgement{Status: OutcomeDuplicate, PaymentID: paymentID}
		}
		won, err := s.guard.Resume(ctx, paymentID, claim.Attempt)
		if err != nil {
			log.Error("resume claim failed", zap.Error(err))
			return Acknowledgement{Status: OutcomeFailed, PaymentID: paymentID, Retryable: true, Err: err}
		}
		if !won {
			return Acknowledgement{Status: OutcomeDuplicate, PaymentID: paymentID}
		}
		held = claim.Attempt + 1
		log.Info("resuming partially recorded payment", zap.Int("missing", len(items)))
	}

	// A fresh reclaim owns every item, even one a crashed attempt managed to
	// insert after the count was taken.
	treatAllNew := claim.Outcome == ClaimReclaimed && claim.PriorSales == 0

	newItems, ledgerErr := s.record(ctx, facts, res, items, treatAllNew)

	ack = Acknowledgement{Status: OutcomeDelivered, PaymentID: paymentID}
	if len(newItems) == 0 {
		if ledgerErr != nil {
			return Acknowledgement{Status: OutcomeFailed, PaymentID: paymentID, Retryable: true, Err: ledgerErr}
		}
		s.events.Emit(ctx, newEvent(models.EventNotify, paymentID, "", NotifySkipped, "no new items"))
		ack.Status = OutcomeDuplicate
		return ack
	}

	delivered, partial := s.deliver(ctx, paymentID, res.BuyerEmail, newItems)
	ack.Delivered = delivered

	switch {
	case ledgerErr != nil:
		ack.Status = OutcomeFailed
		ack.Retryable = true
		ack.Err = ledgerErr
	case partial:
		ack.Status = OutcomePartialFailure
	}
	return ack
}

// release hands the claim back so the retry a retryable acknowledgement asks
// for can take it over. The caller may already be gone, so cancellation is
// ignored.
func (s *fulfillmentServiceImpl) release(ctx context.Context, paymentID string, held int) {
	if err := s.guard.Release(context.WithoutCancel(ctx), paymentID, held); err != nil {
		s.logger.Error("release claim failed",
			zap.String("payment_id", paymentID),
			zap.Int("attempt", held),
			zap.Error(err),
		)
		return
	}
	s.events.Emit(ctx, newEvent(models.EventClaim, paymentID, "", string(ClaimReleased),
		fmt.Sprintf("attempt=%d", held+1)))
}

// record writes one sale per item and returns the items this invocation
// owns. It stops at the first store error.
func (s *fulfillmentServiceImpl) record(ctx context.Context, facts models.PaymentFacts, res *Resolution, items []models.Product, treatAllNew bool) ([]models.Product, error) {
	method := facts.PaymentMethod()
	seen := make(map[string]bool, len(items))
	var newItems []models.Product

	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		outcome, err := s.ledger.RecordSale(ctx, facts.PaymentID, item, res.BuyerEmail, saleAmount(facts, item, len(res.References)), method)
		if err != nil {
			s.logger.Error("ledger write failed",
				zap.String("payment_id", facts.PaymentID),
				zap.String("product_id", item.ID),
				zap.Error(err),
			)
			s.events.Emit(ctx, newEvent(models.EventItemRecorded, facts.PaymentID, item.ID, "error", err.Error()))
			return newItems, err
		}
		s.events.Emit(ctx, newEvent(models.EventItemRecorded, facts.PaymentID, item.ID, string(outcome), ""))

		if outcome == RecordInserted || treatAllNew {
			newItems = append(newItems, item)
		}
	}
	return newItems, nil
}

// deliver builds and sends the single message for newItems. It returns the
// number of links sent and whether any step fell short.
func (s *fulfillmentServiceImpl) deliver(ctx context.Context, paymentID, to string, newItems []models.Product) (int, bool) {
	d, err := s.assembler.Assemble(ctx, paymentID, newItems, MessageDelivery)
	for _, id := range d.Failed {
		s.events.Emit(ctx, newEvent(models.EventLinkFailed, paymentID, id, "error", ""))
	}
	if err != nil {
		s.logger.Error("assemble delivery failed", zap.String("payment_id", paymentID), zap.Error(err))
		s.events.Emit(ctx, newEvent(models.EventNotify, paymentID, "", NotifyFailed, err.Error()))
		return 0, true
	}
	if len(d.Entries) == 0 {
		s.events.Emit(ctx, newEvent(models.EventNotify, paymentID, "", NotifySkipped, "no links issued"))
		return 0, true
	}

	if err := s.notifier.Notify(ctx, paymentID, to, d); err != nil {
		s.events.Emit(ctx, newEvent(models.EventNotify, paymentID, "", NotifyFailed, err.Error()))
		return 0, true
	}
	s.events.Emit(ctx, newEvent(models.EventNotify, paymentID, "", NotifySent,
		fmt.Sprintf("items=%d", len(d.Entries))))
	return len(d.Entries), len(d.Failed) > 0
}

func (s *fulfillmentServiceImpl) missingItems(ctx context.Context, paymentID string, items []models.Product) ([]models.Product, error) {
	recorded, err := s.ledger.RecordedProducts(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	var missing []models.Product
	for _, item := range items {
		if !recorded[item.ID] {
			missing = append(missing, item)
		}
	}
	return missing, nil
}

// saleAmount is the catalog price for carts and the charged amount for a
// single-item payment.
func saleAmount(facts models.PaymentFacts, item models.Product, refCount int) float64 {
	if refCount == 1 && facts.Amount > 0 {
		return facts.Amount
	}
	return item.Price
}

func (s *fulfillmentServiceImpl) finish(ctx context.Context, ack Acknowledgement) {
	detail := ""
	if ack.Err != nil {
		detail = ack.Err.Error()
	}
	s.events.Emit(ctx, newEvent(models.EventOutcome, ack.PaymentID, "", string(ack.Status), detail))
}

func (s *fulfillmentServiceImpl) recoverPanic(ctx context.Context, ack *Acknowledgement) {
	r := recover()
	if r == nil {
		return
	}
	s.logger.Error("fulfillment panicked",
		zap.String("payment_id", ack.PaymentID),
		zap.Any("panic", r),
		zap.Stack("stack"),
	)
	*ack = Acknowledgement{
		Status:    OutcomeFailed,
		PaymentID: ack.PaymentID,
		Retryable: true,
		Err:       fmt.Errorf("panic: %v", r),
	}
	s.finish(ctx, *ack)
}
