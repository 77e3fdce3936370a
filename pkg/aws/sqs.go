package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// SQSAPI is the subset of the SQS client the consumer needs.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSConsumer long-polls a single queue.
type SQSConsumer struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
	metrics  *MetricsClient
}

// NewSQSConsumer creates a new SQS consumer for the given queue URL
func NewSQSConsumer(cfg sdkaws.Config, queueURL string, logger *zap.Logger) *SQSConsumer {
	return NewSQSConsumerWithClient(sqs.NewFromConfig(cfg), queueURL, logger)
}

func NewSQSConsumerWithClient(client SQSAPI, queueURL string, logger *zap.Logger) *SQSConsumer {
	return &SQSConsumer{client: client, queueURL: queueURL, logger: logger}
}

// WithMetrics counts processed messages by result.
func (c *SQSConsumer) WithMetrics(m *MetricsClient) *SQSConsumer {
	c.metrics = m
	return c
}

// MessageHandler processes one message body. A nil return deletes the
// message; an error leaves it for redelivery after the visibility timeout.
type MessageHandler func(ctx context.Context, body string) error

// StartPolling polls until ctx is cancelled.
func (c *SQSConsumer) StartPolling(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("SQS polling started", zap.String("queue", c.queueURL))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("SQS polling stopped", zap.String("queue", c.queueURL))
			return ctx.Err()
		default:
			if err := c.PollOnce(ctx, handler); err != nil {
				c.logger.Error("SQS poll failed", zap.Error(err))
				select {
				case <-ctx.Done():
				case <-time.After(5 * time.Second):
				}
			}
		}
	}
}

// PollOnce receives one batch and dispatches every message to handler.
func (c *SQSConsumer) PollOnce(ctx context.Context, handler MessageHandler) error {
	result, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.queueURL,
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	if err != nil {
		return fmt.Errorf("failed to receive messages: %w", err)
	}

	for _, msg := range result.Messages {
		c.dispatch(ctx, msg, handler)
	}
	return nil
}

func (c *SQSConsumer) dispatch(ctx context.Context, msg types.Message, handler MessageHandler) {
	if msg.Body == nil || *msg.Body == "" {
		c.logger.Warn("dropping empty SQS message")
		c.delete(ctx, msg.ReceiptHandle)
		return
	}

	if err := handler(ctx, *msg.Body); err != nil {
		c.logger.Warn("SQS message left for redelivery",
			zap.Stringp("message_id", msg.MessageId),
			zap.Error(err),
		)
		c.count(ctx, "redeliver")
		return
	}
	c.delete(ctx, msg.ReceiptHandle)
	c.count(ctx, "handled")
}

func (c *SQSConsumer) count(ctx context.Context, result string) {
	if !c.metrics.IsEnabled() {
		return
	}
	_ = c.metrics.RecordCount(ctx, MetricSQSMessages, map[string]string{"Queue": c.queueURL, "Result": result})
}

func (c *SQSConsumer) delete(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		return
	}
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: receiptHandle,
	}); err != nil {
		c.logger.Error("failed to delete SQS message", zap.Error(err))
	}
}
