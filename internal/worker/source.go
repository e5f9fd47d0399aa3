package worker

import "context"

// EventSource defines the interface for fetching change events.
// The primary implementation is RedisSource (Redis Streams).
type EventSource interface {
	// Name returns the source identifier (e.g., "redis")
	Name() string

	// Connect prepares the source. This should be called before Next().
	Connect(ctx context.Context) error

	// Next blocks until a delivery is available or context is cancelled.
	// Returns nil delivery (no error) if nothing arrived within the block timeout.
	// The delivery is claimed by this worker and should be Ack'd or Nack'd.
	Next(ctx context.Context) (*Delivery, error)

	// Ack acknowledges the delivery. It will not be delivered again.
	Ack(ctx context.Context, d *Delivery) error

	// Nack indicates failure. The delivery is retried or moved to the DLQ.
	Nack(ctx context.Context, d *Delivery, err error) error

	// Close releases the source.
	Close() error
}
