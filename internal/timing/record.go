// Package timing defines the timing record shared by the pipeline stages and
// the benchmark harness.
//
// A record is populated incrementally: the ingress stage sets the first two
// timestamps, the downstream stage sets the rest. Fields are only ever added,
// and a record is complete once SecondStageEnd is present.
package timing

import (
	"errors"
	"fmt"
)

// Wire names of the record fields. Producers and the store use these keys.
const (
	FieldRequestID        = "requestId"
	FieldFirstStageStart  = "firstStageStart"
	FieldFirstStageEnd    = "firstStageEnd"
	FieldSecondStageStart = "secondStageStart"
	FieldSecondStageEnd   = "secondStageEnd"
	FieldTotalDuration    = "totalDuration"
	FieldEventSource      = "eventSource"
	FieldEventType        = "eventType"
	FieldTriggerDetails   = "triggerDetails"
)

// TriggerDetails is metadata about the change event that invoked the downstream stage.
type TriggerDetails struct {
	EventType    string `json:"eventType" yaml:"eventType"`
	EventTime    string `json:"eventTime" yaml:"eventTime"`
	DocumentPath string `json:"documentPath" yaml:"documentPath"`
}

// Record is a snapshot of one trial's timestamps. Timestamps are epoch
// milliseconds; zero means the field has not been written yet.
type Record struct {
	RequestID        string          `json:"requestId,omitempty"`
	FirstStageStart  int64           `json:"firstStageStart,omitempty"`
	FirstStageEnd    int64           `json:"firstStageEnd,omitempty"`
	SecondStageStart int64           `json:"secondStageStart,omitempty"`
	SecondStageEnd   int64           `json:"secondStageEnd,omitempty"`
	TotalDuration    int64           `json:"totalDuration,omitempty"`
	EventSource      string          `json:"eventSource,omitempty"`
	EventType        string          `json:"eventType,omitempty"`
	TriggerDetails   *TriggerDetails `json:"triggerDetails,omitempty"`
}

// Predicate decides whether a record has reached the state a watcher waits for.
type Predicate func(rec *Record) bool

// Complete is the default predicate: the downstream stage has finished.
func Complete(rec *Record) bool {
	return rec != nil && rec.SecondStageEnd != 0
}

// Durations are the four samples extracted from a complete record, in milliseconds.
type Durations struct {
	StageOne   float64 `json:"stageOneDuration" yaml:"stageOneDuration"`
	InterStage float64 `json:"interStageLatency" yaml:"interStageLatency"`
	StageTwo   float64 `json:"stageTwoDuration" yaml:"stageTwoDuration"`
	Total      float64 `json:"totalDuration" yaml:"totalDuration"`
}

// Durations derives the per-stage samples from a complete record.
//
// Total is taken from the stored TotalDuration rather than recomputed: the
// downstream stage anchors it to the originating timestamp carried through
// the pipeline, which may differ from FirstStageStart.
func (r *Record) Durations() (Durations, error) {
	if r == nil {
		return Durations{}, errors.New("timing record is missing")
	}
	if !Complete(r) {
		return Durations{}, fmt.Errorf("timing record %q is not complete", r.RequestID)
	}
	return Durations{
		StageOne:   float64(r.FirstStageEnd - r.FirstStageStart),
		InterStage: float64(r.SecondStageStart - r.FirstStageEnd),
		StageTwo:   float64(r.SecondStageEnd - r.SecondStageStart),
		Total:      float64(r.TotalDuration),
	}, nil
}
