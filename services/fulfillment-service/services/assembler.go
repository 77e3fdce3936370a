package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/storage"
	"go.uber.org/zap"
)

// DefaultLinkTTL is the validity of a download link.
const DefaultLinkTTL = 7 * 24 * time.Hour

type MessageKind string

const (
	MessageDelivery MessageKind = "delivery"
	MessageResend   MessageKind = "resend"
)

type DeliveryEntry struct {
	ProductID string
	Title     string
	URL       string
}

// Delivery is one rendered message. Failed lists product ids whose link
// could not be issued; they are not in Body.
type Delivery struct {
	Subject string
	Body    string
	Entries []DeliveryEntry
	Failed  []string
}

type DeliveryAssembler struct {
	signer    storage.Signer
	templates *template.Template
	ttl       time.Duration
	logger    *zap.Logger
}

func NewDeliveryAssembler(signer storage.Signer, templates *template.Template, ttl time.Duration, logger *zap.Logger) *DeliveryAssembler {
	if ttl <= 0 {
		ttl = DefaultLinkTTL
	}
	return &DeliveryAssembler{signer: signer, templates: templates, ttl: ttl, logger: logger}
}

// Assemble signs a link per item and renders them into a single body. A
// Delivery with no entries has an empty Body and must not be sent.
func (a *DeliveryAssembler) Assemble(ctx context.Context, paymentID string, items []models.Product, kind MessageKind) (*Delivery, error) {
	d := &Delivery{}
	for _, item := range items {
		url, err := a.signer.SignedURL(ctx, item.FileKey, a.ttl)
		if err != nil {
			a.logger.Warn("download link failed",
				zap.String("payment_id", paymentID),
				zap.String("product_id", item.ID),
				zap.Error(err),
			)
			d.Failed = append(d.Failed, item.ID)
			continue
		}
		d.Entries = append(d.Entries, DeliveryEntry{ProductID: item.ID, Title: item.Title, URL: url})
	}

	if len(d.Entries) == 0 {
		return d, nil
	}

	var buf bytes.Buffer
	err := a.templates.ExecuteTemplate(&buf, string(kind), struct {
		Entries   []DeliveryEntry
		ValidDays int
	}{
		Entries:   d.Entries,
		ValidDays: int(a.ttl.Hours() / 24),
	})
	if err != nil {
		return d, fmt.Errorf("render %s message: %w", kind, err)
	}
	d.Body = buf.String()
	d.Subject = subjectFor(kind, d.Entries)
	return d, nil
}

func subjectFor(kind MessageKind, entries []DeliveryEntry) string {
	subject := "Seus arquivos chegaram!"
	if len(entries) == 1 {
		subject = "Seu arquivo chegou! - " + entries[0].Title
	}
	if kind == MessageResend {
		subject += " (Reenvio)"
	}
	return subject
}
