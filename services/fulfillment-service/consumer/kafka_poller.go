package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	awspkg "github.com/yashrajoria/digital-fulfillment/pkg/aws"
	"go.uber.org/zap"
)

// KafkaReader is the subset of *kafka.Reader the poller uses.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPoller reads payment notifications from a topic. An offset is
// committed only after the handler accepts the message; a rejected message
// is retried in place with backoff so the partition never skips it.
type KafkaPoller struct {
	reader     KafkaReader
	logger     *zap.Logger
	maxBackoff time.Duration
}

func NewKafkaPoller(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaPoller {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6, // 1MB
	})
	return NewKafkaPollerWithReader(r, logger)
}

func NewKafkaPollerWithReader(r KafkaReader, logger *zap.Logger) *KafkaPoller {
	return &KafkaPoller{reader: r, logger: logger, maxBackoff: 30 * time.Second}
}

func (p *KafkaPoller) StartPolling(ctx context.Context, handler awspkg.MessageHandler) error {
	defer p.reader.Close() //nolint:errcheck
	p.logger.Info("Kafka consumer started")

	for {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				p.logger.Info("Kafka consumer stopped")
				return ctx.Err()
			}
			return err
		}

		if err := p.handle(ctx, m, handler); err != nil {
			return err
		}
		if err := p.reader.CommitMessages(ctx, m); err != nil {
			p.logger.Error("Kafka commit failed",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err),
			)
		}
	}
}

// handle retries handler until it succeeds or ctx ends.
func (p *KafkaPoller) handle(ctx context.Context, m kafka.Message, handler awspkg.MessageHandler) error {
	backoff := time.Second
	if backoff > p.maxBackoff {
		backoff = p.maxBackoff
	}
	for {
		err := handler(ctx, string(m.Value))
		if err == nil {
			return nil
		}
		p.logger.Warn("Kafka message will be retried",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}
}
