package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/metrics"
)

// Runner orchestrates event processing from a source through handlers.
type Runner struct {
	source   EventSource
	handlers []Handler
	config   RunnerConfig
}

// RunnerConfig holds configuration for the runner.
type RunnerConfig struct {
	// WorkerID identifies this worker instance
	WorkerID string

	// HandleSignals stops the loop on SIGINT/SIGTERM. Embedded runners leave
	// this off and rely on context cancellation.
	HandleSignals bool

	// LogFn is called for log messages (if set, suppresses stdout)
	LogFn func(level, msg string)
}

// NewRunner creates a new event runner.
func NewRunner(source EventSource, handlers []Handler, config RunnerConfig) *Runner {
	return &Runner{
		source:   source,
		handlers: handlers,
		config:   config,
	}
}

// log outputs a message - uses the callback if set, otherwise prints to stdout/stderr
func (r *Runner) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if r.config.LogFn != nil {
		r.config.LogFn(level, msg)
	} else {
		if level == "error" || level == "warning" {
			fmt.Fprintf(os.Stderr, "%s\n", msg)
		} else {
			fmt.Printf("%s\n", msg)
		}
	}
}

// Run starts the processing loop.
// This method blocks until the context is cancelled or a signal is received.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	if r.config.HandleSignals {
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
	}

	r.log("info", "Starting downstream worker (%s)", r.source.Name())
	if err := r.source.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", r.source.Name(), err)
	}
	defer r.source.Close()

	r.log("info", "   - Worker ID: %s", r.config.WorkerID)
	r.log("info", "   - Handlers: %d registered", len(r.handlers))
	r.log("success", "Worker started, listening for change events...")

	// Main processing loop with exponential backoff on errors
	backoff := time.Second
	const maxBackoff = 30 * time.Second

runLoop:
	for {
		select {
		case sig := <-sigs:
			r.log("info", "Received signal %v, shutting down...", sig)
			cancel()
			break runLoop
		case <-ctx.Done():
			break runLoop
		default:
			d, err := r.source.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break runLoop
				}
				r.log("warning", "Error fetching event: %v (retry in %s)", err, backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					break runLoop
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}

			backoff = time.Second

			if d == nil {
				continue
			}

			r.process(ctx, d)
		}
	}

	r.log("info", "Worker shutdown complete")
	return nil
}

// process dispatches a delivery to the matching handler and settles it.
func (r *Runner) process(ctx context.Context, d *Delivery) {
	r.log("info", "Received event %s (type: %s, attempt %d)", d.Event.ID, d.Event.Type, d.Attempts)
	startTime := time.Now()

	var handler Handler
	for _, h := range r.handlers {
		if h.CanHandle(d.Event.Type) {
			handler = h
			break
		}
	}

	if handler == nil {
		// Nothing will ever handle it; redelivery cannot help.
		r.log("warning", "No handler for event type %s, dropping %s", d.Event.Type, d.Event.ID)
		metrics.EventsTotal.WithLabelValues(string(StatusDropped)).Inc()
		r.source.Ack(ctx, d)
		return
	}

	result, err := handler.Handle(ctx, d)
	duration := time.Since(startTime)

	if err != nil || (result != nil && result.Status == StatusFailure) {
		actualErr := err
		if actualErr == nil {
			actualErr = result.Error
		}
		r.log("error", "Event %s failed (%v): %v", d.Event.ID, duration, actualErr)
		metrics.EventsTotal.WithLabelValues(string(StatusFailure)).Inc()
		r.source.Nack(ctx, d, actualErr)
		return
	}

	if result != nil && result.Status == StatusDropped {
		r.log("warning", "Event %s dropped: %v", d.Event.ID, result.Error)
		metrics.EventsTotal.WithLabelValues(string(StatusDropped)).Inc()
		r.source.Ack(ctx, d)
		return
	}

	r.log("success", "Event %s processed (%v)", d.Event.ID, duration)
	metrics.EventsTotal.WithLabelValues(string(StatusSuccess)).Inc()
	r.source.Ack(ctx, d)
}
