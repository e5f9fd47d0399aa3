package worker

import (
	"context"
	"fmt"

	"github.com/aceteam-ai/triggerbench/internal/metrics"
	redisclient "github.com/aceteam-ai/triggerbench/internal/redis"
)

// DefaultCollection is the document collection the downstream stage watches.
const DefaultCollection = "items"

// StreamClient is the part of the store the Redis source needs.
type StreamClient interface {
	EnsureConsumerGroup(ctx context.Context, stream string) error
	ReadEvent(ctx context.Context, stream string) (*redisclient.StreamMessage, error)
	ReadPending(ctx context.Context, stream string) (*redisclient.StreamMessage, error)
	AckEvent(ctx context.Context, stream, messageID string) error
	DeliveryCount(ctx context.Context, stream, messageID string) (int64, error)
	MoveToDLQ(ctx context.Context, dlq string, msg *redisclient.StreamMessage, reason string) error
	ConsumerGroup() string
	ConsumerName() string
	MaxAttempts() int
}

// RedisSource implements EventSource over a collection's change stream.
// Events left pending by a failed attempt are redelivered before new ones;
// once an event reaches MaxAttempts deliveries it is moved to the DLQ.
type RedisSource struct {
	client StreamClient
	config RedisSourceConfig
	stream string
	dlq    string
}

// RedisSourceConfig holds configuration for RedisSource.
type RedisSourceConfig struct {
	// Collection whose change stream is consumed (default: "items")
	Collection string

	// LogFn is an optional callback for logging (if nil, prints to stdout)
	LogFn func(level, msg string)
}

// NewRedisSource creates a change-stream event source on an existing client.
// The client's lifetime is owned by the caller.
func NewRedisSource(client StreamClient, cfg RedisSourceConfig) *RedisSource {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	return &RedisSource{
		client: client,
		config: cfg,
		stream: redisclient.ChangeStream(cfg.Collection),
		dlq:    redisclient.DLQStream(cfg.Collection),
	}
}

// Name returns the source identifier.
func (s *RedisSource) Name() string {
	return "redis"
}

// log outputs a message - uses LogFn callback if set, otherwise prints to stdout.
func (s *RedisSource) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if s.config.LogFn != nil {
		s.config.LogFn(level, msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

// Connect creates the consumer group.
func (s *RedisSource) Connect(ctx context.Context) error {
	if err := s.client.EnsureConsumerGroup(ctx, s.stream); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	s.log("info", "   - Stream: %s", s.stream)
	s.log("info", "   - Consumer group: %s", s.client.ConsumerGroup())
	s.log("info", "   - Consumer: %s", s.client.ConsumerName())
	s.log("info", "   - DLQ: %s (after %d attempts)", s.dlq, s.client.MaxAttempts())
	return nil
}

// Next returns the oldest pending event, or blocks for a new one.
func (s *RedisSource) Next(ctx context.Context) (*Delivery, error) {
	msg, err := s.client.ReadPending(ctx, s.stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending events: %w", err)
	}
	if msg == nil {
		msg, err = s.client.ReadEvent(ctx, s.stream)
		if err != nil {
			return nil, fmt.Errorf("failed to read event from Redis: %w", err)
		}
	}
	if msg == nil {
		return nil, nil
	}

	// Check delivery count for DLQ handling. Errors leave the event pending
	// and go back to the runner, which backs off before the next read.
	deliveryCount, err := s.client.DeliveryCount(ctx, s.stream, msg.MessageID)
	if err != nil {
		return nil, fmt.Errorf("failed to read delivery count for %s: %w", msg.MessageID, err)
	}
	if int(deliveryCount) >= s.client.MaxAttempts() {
		s.log("warning", "   - Event %s exceeded max attempts (%d), moving to DLQ",
			msg.Event.ID, s.client.MaxAttempts())
		if err := s.client.MoveToDLQ(ctx, s.dlq, msg, "Exceeded max retry attempts"); err != nil {
			return nil, fmt.Errorf("failed to move event %s to DLQ: %w", msg.MessageID, err)
		}
		metrics.DeadLettered.Inc()
		if err := s.client.AckEvent(ctx, s.stream, msg.MessageID); err != nil {
			return nil, fmt.Errorf("failed to ack dead-lettered event %s: %w", msg.MessageID, err)
		}
		return nil, nil
	}

	return &Delivery{
		Event:     msg.Event,
		Source:    s.Name(),
		Stream:    s.stream,
		MessageID: msg.MessageID,
		Attempts:  int(deliveryCount),
	}, nil
}

// Ack acknowledges the delivery.
func (s *RedisSource) Ack(ctx context.Context, d *Delivery) error {
	return s.client.AckEvent(ctx, s.stream, d.MessageID)
}

// Nack leaves the event pending so the next Next call redelivers it.
func (s *RedisSource) Nack(ctx context.Context, d *Delivery, err error) error {
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisSource) Close() error {
	return nil
}

// Stream returns the change stream being consumed.
func (s *RedisSource) Stream() string {
	return s.stream
}

// Ensure RedisSource implements EventSource
var _ EventSource = (*RedisSource)(nil)

// Ensure the store client satisfies StreamClient
var _ StreamClient = (*redisclient.Client)(nil)
