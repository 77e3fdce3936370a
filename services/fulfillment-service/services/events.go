package services

import (
	"context"
	"encoding/json"
	"time"

	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"go.uber.org/zap"
)

// EventSink receives a structured event at each pipeline decision point.
// Emit must not block the pipeline on a failing backend.
type EventSink interface {
	Emit(ctx context.Context, ev models.FulfillmentEvent)
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, ev models.FulfillmentEvent) {
	s.logger.Info("fulfillment event",
		zap.String("event", ev.Type),
		zap.String("payment_id", ev.PaymentID),
		zap.String("product_id", ev.ProductID),
		zap.String("outcome", ev.Outcome),
		zap.String("detail", ev.Detail),
	)
}

// SNSSink publishes events as JSON to a topic.
type SNSSink struct {
	publisher awspkg.SNSPublisher
	topicArn  string
	logger    *zap.Logger
}

func NewSNSSink(publisher awspkg.SNSPublisher, topicArn string, logger *zap.Logger) *SNSSink {
	return &SNSSink{publisher: publisher, topicArn: topicArn, logger: logger}
}

func (s *SNSSink) Emit(ctx context.Context, ev models.FulfillmentEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("marshal fulfillment event", zap.Error(err))
		return
	}
	attrs := map[string]string{"event_type": ev.Type, "outcome": ev.Outcome}
	if err := s.publisher.Publish(ctx, s.topicArn, b, attrs); err != nil {
		s.logger.Warn("publish fulfillment event",
			zap.String("event", ev.Type),
			zap.String("payment_id", ev.PaymentID),
			zap.Error(err),
		)
	}
}

// MetricRecorder is satisfied by *awspkg.MetricsClient.
type MetricRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// MetricsSink counts events in CloudWatch, dimensioned by outcome.
type MetricsSink struct {
	metrics MetricRecorder
	logger  *zap.Logger
}

func NewMetricsSink(metrics MetricRecorder, logger *zap.Logger) *MetricsSink {
	return &MetricsSink{metrics: metrics, logger: logger}
}

func (s *MetricsSink) Emit(ctx context.Context, ev models.FulfillmentEvent) {
	name := metricFor(ev)
	if name == "" {
		return
	}
	if err := s.metrics.RecordCount(ctx, name, map[string]string{"outcome": ev.Outcome}); err != nil {
		s.logger.Debug("record metric", zap.String("metric", name), zap.Error(err))
	}
}

func metricFor(ev models.FulfillmentEvent) string {
	switch ev.Type {
	case models.EventClaim:
		return awspkg.MetricClaimOutcome
	case models.EventItemRecorded:
		return awspkg.MetricItemRecorded
	case models.EventLinkFailed:
		return awspkg.MetricLinkFailed
	case models.EventNotify:
		if ev.Outcome == NotifySent {
			return awspkg.MetricNotifySent
		}
		return awspkg.MetricNotifyFailed
	case models.EventOutcome:
		return awspkg.MetricPipelineOutcome
	}
	return ""
}

// MultiSink fans an event out to every sink in order.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev models.FulfillmentEvent) {
	for _, s := range m {
		s.Emit(ctx, ev)
	}
}

func newEvent(eventType, paymentID, productID, outcome, detail string) models.FulfillmentEvent {
	return models.FulfillmentEvent{
		Type:      eventType,
		PaymentID: paymentID,
		ProductID: productID,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
}
