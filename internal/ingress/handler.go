// Package ingress is the first stage of the reference pipeline: an HTTP
// endpoint that records its own timing and writes the document whose change
// triggers the downstream stage.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/metrics"
	"github.com/aceteam-ai/triggerbench/internal/timing"
)

// DefaultCollection receives the trigger documents.
const DefaultCollection = "items"

// RequestIDHeader carries the trial id from the harness.
const RequestIDHeader = "x-request-id"

// Store is the part of the document store the ingress stage writes to.
type Store interface {
	SetTimingFields(ctx context.Context, trialID string, fields map[string]any) (*timing.Record, error)
	PutDocument(ctx context.Context, collection, id string, fields map[string]any) (string, error)
}

// Response is the JSON body returned by the trigger endpoint.
type Response struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Handler serves POST /modifyDocument.
type Handler struct {
	store      Store
	collection string
	now        func() time.Time
	logFn      func(level, msg string)
}

// HandlerConfig holds handler settings.
type HandlerConfig struct {
	// Collection the trigger document is written to (default: "items")
	Collection string

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// LogFn is an optional callback for logging (if nil, prints to stdout)
	LogFn func(level, msg string)
}

// NewHandler creates the trigger endpoint handler.
func NewHandler(store Store, cfg HandlerConfig) *Handler {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		store:      store,
		collection: cfg.Collection,
		now:        cfg.Now,
		logFn:      cfg.LogFn,
	}
}

func (h *Handler) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if h.logFn != nil {
		h.logFn(level, msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
		return
	}

	start := h.now()
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = strconv.FormatInt(start.UnixMilli(), 10)
	}

	if err := h.modify(r.Context(), requestID, start); err != nil {
		metrics.Errors.WithLabelValues(metrics.StageIngress, "store").Inc()
		h.log("error", "modifyDocument %s: %v", requestID, err)
		writeJSON(w, http.StatusInternalServerError, Response{Error: err.Error()})
		return
	}

	metrics.TriggersTotal.Inc()
	metrics.StageDuration.WithLabelValues(metrics.StageIngress).Observe(h.now().Sub(start).Seconds())

	writeJSON(w, http.StatusOK, Response{
		Success:   true,
		RequestID: requestID,
		Message:   "Document modified successfully",
	})
}

// modify runs the stage: open the timing record, write the trigger
// document, then close the stage.
func (h *Handler) modify(ctx context.Context, requestID string, start time.Time) error {
	if _, err := h.store.SetTimingFields(ctx, requestID, map[string]any{
		timing.FieldFirstStageStart: start.UnixMilli(),
		timing.FieldRequestID:       requestID,
	}); err != nil {
		return fmt.Errorf("failed to record stage start: %w", err)
	}

	if _, err := h.store.PutDocument(ctx, h.collection, requestID, map[string]any{
		"timestamp": start.UnixMilli(),
		"message":   "Modified by first function",
		"requestId": requestID,
	}); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}

	if _, err := h.store.SetTimingFields(ctx, requestID, map[string]any{
		timing.FieldFirstStageEnd: h.now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("failed to record stage end: %w", err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
