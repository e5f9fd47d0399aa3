package worker

import "context"

// Handler processes change events of a specific type.
// Handlers are registered with the Runner and dispatched based on CanHandle().
type Handler interface {
	// CanHandle returns true if this handler can process the given event type.
	CanHandle(eventType string) bool

	// Handle processes the delivery.
	Handle(ctx context.Context, d *Delivery) (*Result, error)
}
