package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/event"
)

// MockEventSource is a test implementation of EventSource.
type MockEventSource struct {
	name      string
	events    []*Delivery
	index     int
	acked     []*Delivery
	nacked    []*Delivery
	connected bool
	closed    bool
	nextErr   error
	mu        sync.Mutex
}

func NewMockEventSource(name string, events []*Delivery) *MockEventSource {
	return &MockEventSource{
		name:   name,
		events: events,
		acked:  make([]*Delivery, 0),
		nacked: make([]*Delivery, 0),
	}
}

func (m *MockEventSource) Name() string {
	return m.name
}

func (m *MockEventSource) Connect(ctx context.Context) error {
	m.connected = true
	return nil
}

func (m *MockEventSource) Next(ctx context.Context) (*Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
		if m.nextErr != nil {
			return nil, m.nextErr
		}
		if m.index >= len(m.events) {
			return nil, nil
		}
		d := m.events[m.index]
		m.index++
		return d, nil
	}
}

func (m *MockEventSource) Ack(ctx context.Context, d *Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, d)
	return nil
}

func (m *MockEventSource) Nack(ctx context.Context, d *Delivery, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked = append(m.nacked, d)
	return nil
}

func (m *MockEventSource) Close() error {
	m.closed = true
	return nil
}

func (m *MockEventSource) Acked() []*Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked
}

func (m *MockEventSource) Nacked() []*Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacked
}

// MockHandler is a test implementation of Handler.
type MockHandler struct {
	eventType string
	status    Status
	err       error
	handled   []*Delivery
	mu        sync.Mutex
}

func NewMockHandler(eventType string, status Status, err error) *MockHandler {
	return &MockHandler{
		eventType: eventType,
		status:    status,
		err:       err,
		handled:   make([]*Delivery, 0),
	}
}

func (m *MockHandler) CanHandle(eventType string) bool {
	return m.eventType == eventType
}

func (m *MockHandler) Handle(ctx context.Context, d *Delivery) (*Result, error) {
	m.mu.Lock()
	m.handled = append(m.handled, d)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	return &Result{Status: m.status}, nil
}

func (m *MockHandler) Handled() []*Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handled
}

func quiet(level, msg string) {}

func delivery(id, eventType string) *Delivery {
	return &Delivery{
		Event:     event.ChangeEvent{ID: id, Type: eventType},
		MessageID: id + "-msg",
		Attempts:  1,
	}
}

// runFor runs the runner until the source is drained.
func runFor(t *testing.T, runner *Runner, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestNewRunner(t *testing.T) {
	source := NewMockEventSource("test", nil)
	handlers := []Handler{NewMockHandler("T", StatusSuccess, nil)}

	runner := NewRunner(source, handlers, RunnerConfig{WorkerID: "test-worker"})

	if runner == nil {
		t.Fatal("NewRunner returned nil")
	}
	if runner.source != source {
		t.Error("Runner source not set correctly")
	}
	if len(runner.handlers) != 1 {
		t.Errorf("Runner handlers count = %d, want 1", len(runner.handlers))
	}
	if runner.config.WorkerID != "test-worker" {
		t.Errorf("Runner config.WorkerID = %s, want test-worker", runner.config.WorkerID)
	}
}

func TestRunnerProcessesEvents(t *testing.T) {
	source := NewMockEventSource("test", []*Delivery{
		delivery("e1", "T"),
		delivery("e2", "T"),
	})
	handler := NewMockHandler("T", StatusSuccess, nil)

	runner := NewRunner(source, []Handler{handler}, RunnerConfig{LogFn: quiet})
	runFor(t, runner, 100*time.Millisecond)

	if !source.connected {
		t.Error("source was not connected")
	}
	if !source.closed {
		t.Error("source was not closed")
	}
	if len(handler.Handled()) != 2 {
		t.Errorf("handled %d events, want 2", len(handler.Handled()))
	}
	if len(source.Acked()) != 2 {
		t.Errorf("acked %d events, want 2", len(source.Acked()))
	}
	if len(source.Nacked()) != 0 {
		t.Errorf("nacked %d events, want 0", len(source.Nacked()))
	}
}

func TestRunnerSettlesByStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     Status
		err        error
		wantAcked  int
		wantNacked int
	}{
		{name: "success acks", status: StatusSuccess, wantAcked: 1},
		{name: "dropped acks", status: StatusDropped, wantAcked: 1},
		{name: "failure status nacks", status: StatusFailure, wantNacked: 1},
		{name: "handler error nacks", err: errors.New("store down"), wantNacked: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewMockEventSource("test", []*Delivery{delivery("e1", "T")})
			handler := NewMockHandler("T", tt.status, tt.err)

			runner := NewRunner(source, []Handler{handler}, RunnerConfig{LogFn: quiet})
			runFor(t, runner, 50*time.Millisecond)

			if got := len(source.Acked()); got != tt.wantAcked {
				t.Errorf("acked = %d, want %d", got, tt.wantAcked)
			}
			if got := len(source.Nacked()); got != tt.wantNacked {
				t.Errorf("nacked = %d, want %d", got, tt.wantNacked)
			}
		})
	}
}

func TestRunnerDropsUnknownEventType(t *testing.T) {
	source := NewMockEventSource("test", []*Delivery{delivery("e1", "other")})
	handler := NewMockHandler("T", StatusSuccess, nil)

	runner := NewRunner(source, []Handler{handler}, RunnerConfig{LogFn: quiet})
	runFor(t, runner, 50*time.Millisecond)

	if len(handler.Handled()) != 0 {
		t.Error("handler should not see events of another type")
	}
	if len(source.Acked()) != 1 {
		t.Errorf("acked = %d, want 1", len(source.Acked()))
	}
}

func TestRunnerStopsOnCancelDuringBackoff(t *testing.T) {
	source := NewMockEventSource("test", nil)
	source.nextErr = errors.New("connection refused")

	runner := NewRunner(source, nil, RunnerConfig{LogFn: quiet})

	start := time.Now()
	runFor(t, runner, 50*time.Millisecond)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Run() took %s, should stop during backoff", elapsed)
	}
}
