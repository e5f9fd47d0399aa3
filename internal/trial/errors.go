package trial

import (
	"errors"
	"fmt"
)

// ErrTrigger matches any failure to start the pipeline: a transport error or
// a non-2xx response from the ingress endpoint.
var ErrTrigger = errors.New("pipeline trigger failed")

// Stages of a trial, used in Error.
const (
	StageTrigger = "trigger"
	StageWatch   = "watch"
	StageExtract = "extract"
)

// TriggerError describes a rejected trigger request. Status is zero when the
// request never got a response.
type TriggerError struct {
	Status int
	Body   string
	Err    error
}

func (e *TriggerError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("trigger request failed: %v", e.Err)
	}
	return fmt.Sprintf("trigger returned HTTP %d: %s", e.Status, e.Body)
}

func (e *TriggerError) Is(target error) bool {
	return target == ErrTrigger
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

// Error adds the trial id and failing stage to an underlying error.
type Error struct {
	TrialID string
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("trial %s: %s: %v", e.TrialID, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
