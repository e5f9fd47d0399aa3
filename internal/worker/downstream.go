package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/event"
	"github.com/aceteam-ai/triggerbench/internal/metrics"
	redisclient "github.com/aceteam-ai/triggerbench/internal/redis"
	"github.com/aceteam-ai/triggerbench/internal/timing"
)

// DefaultWork is the simulated processing time of the downstream stage.
const DefaultWork = 100 * time.Millisecond

// TimingStore records timing fields for a trial.
type TimingStore interface {
	SetTimingFields(ctx context.Context, trialID string, fields map[string]any) (*timing.Record, error)
}

// DownstreamConfig holds configuration for the downstream handler.
type DownstreamConfig struct {
	// Work is how long the handler simulates processing (default: 100ms).
	// Negative means no simulated work.
	Work time.Duration

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// LogFn is an optional callback for logging (if nil, prints to stdout)
	LogFn func(level, msg string)
}

// DownstreamHandler is the change-triggered stage. For every document write
// it stamps the trial's timing record with its own start and end times and
// the end-to-end duration measured from the originating timestamp.
type DownstreamHandler struct {
	store  TimingStore
	config DownstreamConfig
}

// NewDownstreamHandler creates the stage-two handler.
func NewDownstreamHandler(store TimingStore, cfg DownstreamConfig) *DownstreamHandler {
	if cfg.Work == 0 {
		cfg.Work = DefaultWork
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &DownstreamHandler{store: store, config: cfg}
}

func (h *DownstreamHandler) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if h.config.LogFn != nil {
		h.config.LogFn(level, msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

// CanHandle accepts document-written events.
func (h *DownstreamHandler) CanHandle(eventType string) bool {
	return eventType == event.TypeDocumentWritten
}

// Handle processes one change event.
func (h *DownstreamHandler) Handle(ctx context.Context, d *Delivery) (*Result, error) {
	start := h.config.Now()

	data, err := event.Decode(d.Event.Data)
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.StageDownstream, "decode").Inc()
		return &Result{Status: StatusFailure, Error: err}, nil
	}

	trig, err := data.ExtractTrigger()
	if errors.Is(err, event.ErrMissingRequestID) {
		metrics.Errors.WithLabelValues(metrics.StageDownstream, "missing_request_id").Inc()
		h.log("warning", "No requestId in event %s, ignoring", d.Event.ID)
		return &Result{Status: StatusDropped, Error: err}, nil
	}
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.StageDownstream, "decode").Inc()
		return &Result{Status: StatusFailure, Error: err}, nil
	}

	h.log("info", "Processing requestId %s (document %s)", trig.RequestID, trig.DocumentPath)

	_, err = h.store.SetTimingFields(ctx, trig.RequestID, map[string]any{
		timing.FieldSecondStageStart: start.UnixMilli(),
		timing.FieldEventSource:      d.Event.Source,
		timing.FieldEventType:        d.Event.Type,
	})
	if errors.Is(err, redisclient.ErrFieldAlreadySet) {
		// A redelivery of an event that already reached the record.
		h.log("warning", "Timing for %s already recorded, ignoring duplicate event %s", trig.RequestID, d.Event.ID)
		return &Result{Status: StatusDropped, Error: err}, nil
	}
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.StageDownstream, "store").Inc()
		return nil, fmt.Errorf("failed to record stage start: %w", err)
	}
	if trig.Timestamp > 0 {
		if lag := start.UnixMilli() - trig.Timestamp; lag >= 0 {
			metrics.TriggerLatency.Observe(float64(lag) / 1000)
		}
	}

	if err := h.work(ctx); err != nil {
		return nil, err
	}

	end := h.config.Now()
	total := end.UnixMilli() - trig.Timestamp

	_, err = h.store.SetTimingFields(ctx, trig.RequestID, map[string]any{
		timing.FieldSecondStageEnd: end.UnixMilli(),
		timing.FieldTotalDuration:  total,
		timing.FieldTriggerDetails: timing.TriggerDetails{
			EventType:    d.Event.Type,
			EventTime:    d.Event.Time,
			DocumentPath: trig.DocumentPath,
		},
	})
	if err != nil {
		metrics.Errors.WithLabelValues(metrics.StageDownstream, "store").Inc()
		return nil, fmt.Errorf("failed to record stage end: %w", err)
	}

	elapsed := end.Sub(start)
	metrics.StageDuration.WithLabelValues(metrics.StageDownstream).Observe(elapsed.Seconds())
	metrics.E2EDuration.Observe(float64(total) / 1000)

	return &Result{Status: StatusSuccess, Duration: elapsed}, nil
}

func (h *DownstreamHandler) work(ctx context.Context) error {
	if h.config.Work <= 0 {
		return nil
	}
	t := time.NewTimer(h.config.Work)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure DownstreamHandler implements Handler
var _ Handler = (*DownstreamHandler)(nil)
