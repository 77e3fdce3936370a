package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/services"
	"go.uber.org/zap"
)

type capturePublisher struct {
	topic    string
	messages [][]byte
	attrs    []map[string]string
	err      error
}

func (c *capturePublisher) Publish(_ context.Context, topicArn string, message []byte, attrs map[string]string) error {
	c.topic = topicArn
	c.messages = append(c.messages, message)
	c.attrs = append(c.attrs, attrs)
	return c.err
}

type captureMetrics struct {
	names []string
	dims  []map[string]string
}

func (c *captureMetrics) RecordCount(_ context.Context, name string, dims map[string]string) error {
	c.names = append(c.names, name)
	c.dims = append(c.dims, dims)
	return nil
}

func TestSNSSink_PublishesJSON(t *testing.T) {
	pub := &capturePublisher{}
	sink := services.NewSNSSink(pub, "arn:aws:sns:us-east-1:000000000000:fulfillment", zap.NewNop())

	sink.Emit(context.Background(), models.FulfillmentEvent{Type: models.EventOutcome, PaymentID: "P1", Outcome: "delivered"})

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "arn:aws:sns:us-east-1:000000000000:fulfillment", pub.topic)
	var ev models.FulfillmentEvent
	require.NoError(t, json.Unmarshal(pub.messages[0], &ev))
	assert.Equal(t, "P1", ev.PaymentID)
	assert.Equal(t, "delivered", ev.Outcome)
	assert.Equal(t, map[string]string{"event_type": models.EventOutcome, "outcome": "delivered"}, pub.attrs[0])
}

func TestSNSSink_PublishErrorIsSwallowed(t *testing.T) {
	pub := &capturePublisher{err: errors.New("throttled")}
	sink := services.NewSNSSink(pub, "arn", zap.NewNop())
	assert.NotPanics(t, func() {
		sink.Emit(context.Background(), models.FulfillmentEvent{Type: models.EventClaim})
	})
}

func TestMetricsSink_MapsEventTypes(t *testing.T) {
	m := &captureMetrics{}
	sink := services.NewMetricsSink(m, zap.NewNop())
	ctx := context.Background()

	sink.Emit(ctx, models.FulfillmentEvent{Type: models.EventClaim, Outcome: "claimed"})
	sink.Emit(ctx, models.FulfillmentEvent{Type: models.EventNotify, Outcome: services.NotifySent})
	sink.Emit(ctx, models.FulfillmentEvent{Type: models.EventNotify, Outcome: services.NotifyFailed})
	sink.Emit(ctx, models.FulfillmentEvent{Type: "unknown"})

	assert.Equal(t, []string{awspkg.MetricClaimOutcome, awspkg.MetricNotifySent, awspkg.MetricNotifyFailed}, m.names)
	assert.Equal(t, "claimed", m.dims[0]["outcome"])
}

func TestMultiSink_FansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	services.MultiSink{a, b, services.NewLogSink(zap.NewNop())}.Emit(context.Background(), models.FulfillmentEvent{Type: models.EventClaim})

	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.OfType(models.EventClaim), 1)
}
