// Package watcher waits for a timing record to reach a terminal state.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/timing"
)

// DefaultTimeout bounds how long Watch waits when no timeout is given.
const DefaultTimeout = 60 * time.Second

var (
	// ErrTimeout indicates the record did not satisfy the predicate in time
	ErrTimeout = errors.New("timed out waiting for complete timing data")

	// ErrSubscription indicates the change feed reported a transport error
	ErrSubscription = errors.New("timing feed subscription failed")
)

// Feed delivers snapshots of a timing record. onUpdate receives the full
// current record (nil if it does not exist yet) after every change.
// The returned unsubscribe function stops delivery.
type Feed interface {
	Subscribe(ctx context.Context, trialID string, onUpdate func(*timing.Record), onError func(error)) (func(), error)
}

// Watcher resolves trials against a Feed.
type Watcher struct {
	feed Feed
}

// New creates a Watcher reading from feed.
func New(feed Feed) *Watcher {
	return &Watcher{feed: feed}
}

// TimeoutError reports how long Watch waited. It matches ErrTimeout.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for complete timing data", e.After)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

type outcome struct {
	rec *timing.Record
	err error
}

// Watch blocks until a snapshot of trialID satisfies isComplete, the timeout
// elapses, the feed fails, or ctx is done. Exactly one of those outcomes is
// returned and the subscription is torn down exactly once before Watch
// returns. A nil isComplete means timing.Complete; a non-positive timeout
// means DefaultTimeout.
func (w *Watcher) Watch(ctx context.Context, trialID string, isComplete timing.Predicate, timeout time.Duration) (*timing.Record, error) {
	if isComplete == nil {
		isComplete = timing.Complete
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// Callbacks may run on any goroutine, before or after Subscribe returns.
	result := make(chan outcome, 1)
	var once sync.Once
	settle := func(o outcome) {
		once.Do(func() { result <- o })
	}

	onUpdate := func(rec *timing.Record) {
		if rec == nil {
			return
		}
		if isComplete(rec) {
			snap := *rec
			settle(outcome{rec: &snap})
		}
	}
	onError := func(err error) {
		settle(outcome{err: fmt.Errorf("%w: %v", ErrSubscription, err)})
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsubscribe, err := w.feed.Subscribe(subCtx, trialID, onUpdate, onError)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubscription, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var o outcome
	select {
	case o = <-result:
	case <-timer.C:
		settle(outcome{err: &TimeoutError{After: timeout}})
		o = <-result
	case <-ctx.Done():
		settle(outcome{err: ctx.Err()})
		o = <-result
	}

	if unsubscribe != nil {
		unsubscribe()
	}
	return o.rec, o.err
}
