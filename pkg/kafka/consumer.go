package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
)

// MessageHandler processes one decoded event message. Returning an error
// stops the consumer without committing the message.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the identity event topic. It backs `fern events tail`.
type Consumer struct {
	reader  messageReader
	logger  ectologger.Logger
	handler MessageHandler
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	FromStart     bool
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	startOffset := kafka.LastOffset
	if cfg.FromStart {
		startOffset = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    startOffset,
		CommitInterval: time.Second,
	})

	return newConsumer(reader, logger, handler)
}

func newConsumer(reader messageReader, logger ectologger.Logger, handler MessageHandler) *Consumer {
	return &Consumer{reader: reader, logger: logger, handler: handler}
}

// Run consumes until ctx is done or the handler fails. A cancelled context
// is a clean stop.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := c.processMessage(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	ctx, span := tracing.StartSpan(tracing.WithTraceParent(ctx, headers[HeaderTraceParent]), "kafka.Consumer.processMessage")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	incoming := &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers[HeaderTraceParent],
	}

	if err := incoming.ParseEvent(); err != nil {
		// Undecodable messages are skipped so the stream never wedges.
		log.WithError(err).Warn("Skipping message that is not an identity event")
		return c.reader.CommitMessages(ctx, msg)
	}

	if err := c.handler(ctx, incoming); err != nil {
		log.WithError(err).Error("Failed to handle event (not committing)")
		return err
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
		return err
	}
	return nil
}
