// Package trial runs a single benchmark trial: trigger the pipeline, wait for
// the trial's timing record to complete, and extract its durations.
package trial

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/timing"
)

// TriggerPath is the ingress endpoint, relative to the base URL.
const TriggerPath = "modifyDocument"

// maxBodyBytes caps how much of a failed response body is kept.
const maxBodyBytes = 4096

// Watcher waits for a timing record to satisfy a predicate.
type Watcher interface {
	Watch(ctx context.Context, trialID string, isComplete timing.Predicate, timeout time.Duration) (*timing.Record, error)
}

// Config holds runner settings.
type Config struct {
	// BaseURL of the ingress stage. Trailing slashes are ignored.
	BaseURL string

	// Timeout bounds how long a trial waits for its record. Zero uses the watcher default.
	Timeout time.Duration

	// HTTPClient sends the trigger request (default: 30s timeout client)
	HTTPClient *http.Client

	// NewID generates trial ids (default: "<unix millis>-<index>")
	NewID func(index int) string

	// LogFn is an optional callback for logging (if nil, prints to stdout)
	LogFn func(level, msg string)
}

// Result is the outcome of a successful trial.
type Result struct {
	TrialID   string
	Record    *timing.Record
	Durations timing.Durations
}

// Runner executes trials against one pipeline.
type Runner struct {
	config   Config
	watcher  Watcher
	endpoint string
}

// NewRunner creates a trial runner.
func NewRunner(cfg Config, w Watcher) *Runner {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.NewID == nil {
		cfg.NewID = DefaultID
	}
	return &Runner{
		config:   cfg,
		watcher:  w,
		endpoint: Endpoint(cfg.BaseURL),
	}
}

// DefaultID returns "<unix millis>-<index>".
func DefaultID(index int) string {
	return fmt.Sprintf("%d-%d", time.Now().UnixMilli(), index)
}

// Endpoint joins base and TriggerPath with exactly one slash.
func Endpoint(base string) string {
	return strings.TrimRight(base, "/") + "/" + TriggerPath
}

// Endpoint returns the trigger URL this runner posts to.
func (r *Runner) Endpoint() string {
	return r.endpoint
}

func (r *Runner) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if r.config.LogFn != nil {
		r.config.LogFn(level, msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

// Run executes trial number index. The watcher is only consulted after the
// ingress stage accepted the trigger.
func (r *Runner) Run(ctx context.Context, index int) (*Result, error) {
	id := r.config.NewID(index)

	r.log("info", "Trial %d: POST %s (x-request-id: %s)", index, r.endpoint, id)
	if err := r.trigger(ctx, id); err != nil {
		return nil, &Error{TrialID: id, Stage: StageTrigger, Err: err}
	}

	rec, err := r.watcher.Watch(ctx, id, timing.Complete, r.config.Timeout)
	if err != nil {
		return nil, &Error{TrialID: id, Stage: StageWatch, Err: err}
	}

	d, err := rec.Durations()
	if err != nil {
		return nil, &Error{TrialID: id, Stage: StageExtract, Err: err}
	}

	r.log("info", "Trial %d: stage one %.0fms, trigger latency %.0fms, stage two %.0fms, total %.0fms",
		index, d.StageOne, d.InterStage, d.StageTwo, d.Total)
	if td := rec.TriggerDetails; td != nil {
		r.log("info", "Trial %d: triggered by %s at %s on %s", index, td.EventType, td.EventTime, td.DocumentPath)
	}

	return &Result{TrialID: id, Record: rec, Durations: d}, nil
}

func (r *Runner) trigger(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return &TriggerError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-request-id", id)

	resp, err := r.config.HTTPClient.Do(req)
	if err != nil {
		return &TriggerError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TriggerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	r.log("info", "Response: %s", strings.TrimSpace(string(body)))
	return nil
}
