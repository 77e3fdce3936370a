package services_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/providers"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/sender"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/templates"
	"go.uber.org/zap"
)

// ---- lock store with primary key semantics ----

type memLockRepo struct {
	mu        sync.Mutex
	locks     map[string]map[int]time.Time
	insertErr error
	inserts   int
}

func newMemLockRepo() *memLockRepo {
	return &memLockRepo{locks: map[string]map[int]time.Time{}}
}

func (r *memLockRepo) Insert(_ context.Context, paymentID string, attempt int, claimedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return false, r.insertErr
	}
	if r.locks[paymentID] == nil {
		r.locks[paymentID] = map[int]time.Time{}
	}
	if _, ok := r.locks[paymentID][attempt]; ok {
		return false, nil
	}
	r.locks[paymentID][attempt] = claimedAt
	return true, nil
}

func (r *memLockRepo) Latest(_ context.Context, paymentID string) (*models.FulfillmentLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := 0
	for attempt := range r.locks[paymentID] {
		if attempt > best {
			best = attempt
		}
	}
	if best == 0 {
		return nil, nil
	}
	return &models.FulfillmentLock{PaymentID: paymentID, Attempt: best, ClaimedAt: r.locks[paymentID][best]}, nil
}

func (r *memLockRepo) seed(paymentID string, attempt int, claimedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks[paymentID] == nil {
		r.locks[paymentID] = map[int]time.Time{}
	}
	r.locks[paymentID][attempt] = claimedAt
}

func (r *memLockRepo) attempts(paymentID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks[paymentID])
}

// ---- sale ledger with (payment_id, product_id) uniqueness ----

type memSaleRepo struct {
	mu       sync.Mutex
	sales    map[string]models.Sale
	order    []string
	failOn   string
	countErr error
	listErr  error
}

func newMemSaleRepo() *memSaleRepo {
	return &memSaleRepo{sales: map[string]models.Sale{}}
}

func saleKey(paymentID, productID string) string { return paymentID + "|" + productID }

func (r *memSaleRepo) Insert(_ context.Context, sale *models.Sale) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && sale.ProductID == r.failOn {
		return false, errors.New("connection reset by peer")
	}
	key := saleKey(sale.PaymentID, sale.ProductID)
	if _, ok := r.sales[key]; ok {
		return false, nil
	}
	s := *sale
	s.CreatedAt = time.Now()
	r.sales[key] = s
	r.order = append(r.order, key)
	return true, nil
}

func (r *memSaleRepo) CountByPayment(_ context.Context, paymentID string) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.forPayment(paymentID))), nil
}

func (r *memSaleRepo) FindByPayment(_ context.Context, paymentID string) ([]models.Sale, error) {
	return r.forPayment(paymentID), nil
}

func (r *memSaleRepo) List(_ context.Context, filter models.SaleFilter) ([]models.Sale, int64, error) {
	if r.listErr != nil {
		return nil, 0, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Sale
	for _, key := range r.order {
		s := r.sales[key]
		if filter.Email != "" && s.CustomerEmail != filter.Email {
			continue
		}
		out = append(out, s)
	}
	return out, int64(len(out)), nil
}

func (r *memSaleRepo) forPayment(paymentID string) []models.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Sale
	for _, key := range r.order {
		if strings.HasPrefix(key, paymentID+"|") {
			out = append(out, r.sales[key])
		}
	}
	return out
}

func (r *memSaleRepo) productIDs(paymentID string) []string {
	var ids []string
	for _, s := range r.forPayment(paymentID) {
		ids = append(ids, s.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func (r *memSaleRepo) seed(paymentID string, productIDs ...string) {
	for _, id := range productIDs {
		r.Insert(context.Background(), &models.Sale{PaymentID: paymentID, ProductID: id, CustomerEmail: "buyer@example.com", Status: models.SaleStatusApproved})
	}
}

// ---- catalog ----

type memProductRepo struct {
	products map[string]models.Product
	err      error
}

func newCatalog(products ...models.Product) *memProductRepo {
	m := &memProductRepo{products: map[string]models.Product{}}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memProductRepo) FindByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func product(id string, price float64) models.Product {
	return models.Product{ID: id, Title: "Guide " + id, Price: price, FileKey: "files/" + id + ".pdf"}
}

// ---- object store ----

type fakeSigner struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeSigner) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if f.fail[key] {
		return "", fmt.Errorf("presign %s: access denied", key)
	}
	return fmt.Sprintf("https://signed.example/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

// ---- email ----

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentEmail
	err   error
	panic bool
}

func (f *fakeSender) SendEmail(_ context.Context, to, subject, body string) (sender.SendResult, error) {
	if f.panic {
		panic("smtp client exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return sender.SendResult{}, f.err
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: body})
	return sender.SendResult{MessageID: fmt.Sprintf("msg-%d", len(f.sent)), SentAt: time.Now()}, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// ---- payment processor ----

type fakeVerifier struct {
	mu    sync.Mutex
	facts map[string]models.PaymentFacts
	err   error
	calls int
}

func (f *fakeVerifier) Verify(_ context.Context, paymentID string) (models.PaymentFacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.PaymentFacts{}, f.err
	}
	facts, ok := f.facts[paymentID]
	if !ok {
		return models.PaymentFacts{}, errors.New("payment not found")
	}
	return facts, nil
}

// ---- events ----

type recordingSink struct {
	mu     sync.Mutex
	events []models.FulfillmentEvent
}

func (r *recordingSink) Emit(_ context.Context, ev models.FulfillmentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) Events() []models.FulfillmentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.FulfillmentEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingSink) OfType(eventType string) []models.FulfillmentEvent {
	var out []models.FulfillmentEvent
	for _, ev := range r.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// ---- harness ----

type harness struct {
	locks    *memLockRepo
	sales    *memSaleRepo
	catalog  *memProductRepo
	signer   *fakeSigner
	sender   *fakeSender
	verifier *fakeVerifier
	events   *recordingSink

	guard     *services.IdempotencyGuard
	assembler *services.DeliveryAssembler
	notifier  *services.Notifier
	svc       services.FulfillmentService
}

func newHarness(t *testing.T, catalog ...models.Product) *harness {
	t.Helper()
	tmpl, err := templates.Parse()
	require.NoError(t, err)

	logger := zap.NewNop()
	h := &harness{
		locks:    newMemLockRepo(),
		sales:    newMemSaleRepo(),
		catalog:  newCatalog(catalog...),
		signer:   &fakeSigner{fail: map[string]bool{}},
		sender:   &fakeSender{},
		verifier: &fakeVerifier{facts: map[string]models.PaymentFacts{}},
		events:   &recordingSink{},
	}

	h.guard = services.NewIdempotencyGuard(h.locks, h.sales, 5*time.Minute, logger)
	h.assembler = services.NewDeliveryAssembler(h.signer, tmpl, services.DefaultLinkTTL, logger)
	h.notifier = services.NewNotifier(h.sender, logger)
	h.svc = services.NewFulfillmentService(
		map[string]providers.PaymentVerifier{models.ProviderMercadoPago: h.verifier},
		h.guard,
		services.NewFulfillmentResolver(h.catalog, logger),
		services.NewLedgerWriter(h.sales),
		h.assembler,
		h.notifier,
		h.events,
		logger,
	)
	return h
}

func (h *harness) pay(id string, facts models.PaymentFacts) {
	facts.PaymentID = id
	facts.Provider = models.ProviderMercadoPago
	h.verifier.facts[id] = facts
}

func (h *harness) notify(id string) services.Acknowledgement {
	return h.svc.HandleNotification(context.Background(), models.ProviderMercadoPago, id)
}
