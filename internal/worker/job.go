// Package worker runs the downstream stage of the pipeline: it consumes
// document change events and records stage-two timings.
//
// Architecture:
//
//	EventSource (redis) → Runner → Handler
//
// The Runner orchestrates the processing loop:
//  1. Connect to the event source
//  2. Fetch the next delivery (blocking)
//  3. Dispatch to the handler registered for its event type
//  4. Ack/Nack based on the result
//  5. Repeat
package worker

import (
	"time"

	"github.com/aceteam-ai/triggerbench/internal/event"
)

// Delivery is one change event handed to the worker.
type Delivery struct {
	// Event is the decoded envelope
	Event event.ChangeEvent

	// Source identifies where this delivery came from (for logging/debugging)
	Source string

	// Stream is the stream the event was read from
	Stream string

	// MessageID is the source-specific message identifier (for ack/nack)
	MessageID string

	// Attempts is how many times this event has been delivered, including this one
	Attempts int
}

// Result contains the outcome of handling a delivery.
type Result struct {
	// Status is the outcome (success, failure, dropped)
	Status Status

	// Error contains error details if status is not success
	Error error

	// Duration is how long the handler ran
	Duration time.Duration
}

// Status represents the outcome of handling a delivery.
type Status string

const (
	// StatusSuccess indicates the event was fully processed
	StatusSuccess Status = "success"

	// StatusFailure indicates processing failed; the event stays pending for redelivery
	StatusFailure Status = "failure"

	// StatusDropped indicates the event was deliberately ignored and should be acked
	StatusDropped Status = "dropped"
)
