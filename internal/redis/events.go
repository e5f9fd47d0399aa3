package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/event"
	"github.com/redis/go-redis/v9"
)

// StreamMessage is a change event read from a Redis Stream.
type StreamMessage struct {
	MessageID string
	Stream    string
	Event     event.ChangeEvent
	RawData   map[string]interface{}
}

// EnsureConsumerGroup creates the consumer group for a stream if it doesn't exist.
func (c *Client) EnsureConsumerGroup(ctx context.Context, stream string) error {
	// Start from the beginning of the stream so events written before the
	// downstream worker came up are still delivered.
	err := c.client.XGroupCreateMkStream(ctx, stream, c.consumerGroup, "0").Err()
	if err != nil {
		// Ignore "BUSYGROUP" error (group already exists)
		if !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group: %w", err)
		}
	}
	return nil
}

// ReadEvent reads the next change event from the stream using XREADGROUP.
// Returns nil if no event is available within the block timeout.
func (c *Client) ReadEvent(ctx context.Context, stream string) (*StreamMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    time.Duration(c.blockMs) * time.Millisecond,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // No message available
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return parseMessage(stream, streams[0].Messages[0]), nil
}

// ReadPending returns the oldest event this consumer has read but not yet
// acknowledged. Reading it again counts as another delivery.
// Returns nil if nothing is pending.
func (c *Client) ReadPending(ctx context.Context, stream string) (*StreamMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{stream, "0"},
		Count:    1,
		Block:    -1, // history reads never block
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending events: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return parseMessage(stream, streams[0].Messages[0]), nil
}

// AckEvent acknowledges a processed message.
func (c *Client) AckEvent(ctx context.Context, stream, messageID string) error {
	return c.client.XAck(ctx, stream, c.consumerGroup, messageID).Err()
}

// DeliveryCount returns the number of times a message has been delivered.
func (c *Client) DeliveryCount(ctx context.Context, stream, messageID string) (int64, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.consumerGroup,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()

	if err != nil {
		return 0, err
	}

	if len(pending) > 0 {
		return pending[0].RetryCount, nil
	}

	return 0, nil
}

// MoveToDLQ copies a failed message to the Dead Letter Queue stream dlq.
func (c *Client) MoveToDLQ(ctx context.Context, dlq string, msg *StreamMessage, reason string) error {
	fields := map[string]interface{}{
		"original_message_id": msg.MessageID,
		"original_stream":     msg.Stream,
		"reason":              reason,
		"moved_at":            time.Now().UTC().Format(time.RFC3339),
		"consumer":            c.consumerName,
		"eventId":             msg.Event.ID,
		"data":                string(msg.Event.Data),
	}

	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlq,
		Values: fields,
	}).Err()
}

// StreamLen returns the number of entries in a stream.
func (c *Client) StreamLen(ctx context.Context, stream string) (int64, error) {
	return c.client.XLen(ctx, stream).Result()
}

// parseMessage converts a Redis stream message to a StreamMessage.
func parseMessage(stream string, msg redis.XMessage) *StreamMessage {
	sm := &StreamMessage{
		MessageID: msg.ID,
		Stream:    stream,
		RawData:   make(map[string]interface{}),
	}

	for k, v := range msg.Values {
		sm.RawData[k] = v
	}

	str := func(key string) string {
		s, _ := msg.Values[key].(string)
		return s
	}
	sm.Event = event.ChangeEvent{
		ID:     str("eventId"),
		Type:   str("type"),
		Source: str("source"),
		Time:   str("time"),
		Data:   []byte(str("data")),
	}

	return sm
}
