// Package bench drives repeated trials and turns their durations into a
// latency report.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/stats"
	"github.com/aceteam-ai/triggerbench/internal/trial"
	"golang.org/x/time/rate"
)

// Series names, in report order.
const (
	SeriesStageOne   = "First Stage Duration"
	SeriesInterStage = "Trigger Latency"
	SeriesStageTwo   = "Second Stage Duration"
	SeriesTotal      = "Total Duration"
)

// ErrNoExecutions is returned when a driver is asked to run zero trials.
var ErrNoExecutions = errors.New("executions must be at least 1")

// TrialRunner executes one trial.
type TrialRunner interface {
	Run(ctx context.Context, index int) (*trial.Result, error)
}

// Config holds driver settings.
type Config struct {
	Executions int

	// Limiter paces trial starts. Nil runs trials back to back.
	Limiter *rate.Limiter

	// CollectHost fills Report.Host (default: CollectHost)
	CollectHost func() HostInfo

	// LogFn is an optional callback for logging (if nil, prints to stdout)
	LogFn func(level, msg string)
}

// Driver runs trials sequentially and aggregates their samples.
type Driver struct {
	config Config
	runner TrialRunner
}

// NewDriver creates a benchmark driver.
func NewDriver(cfg Config, runner TrialRunner) *Driver {
	if cfg.CollectHost == nil {
		cfg.CollectHost = CollectHost
	}
	return &Driver{config: cfg, runner: runner}
}

func (d *Driver) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if d.config.LogFn != nil {
		d.config.LogFn(level, msg)
	} else {
		fmt.Printf("%s\n", msg)
	}
}

// Run executes the configured number of trials in order. The first failing
// trial aborts the run and no report is produced.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	if d.config.Executions < 1 {
		return nil, ErrNoExecutions
	}

	var stageOne, interStage, stageTwo, total []float64
	var trials []TrialSample
	started := time.Now()

	for i := 0; i < d.config.Executions; i++ {
		if d.config.Limiter != nil {
			if err := d.config.Limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("trial %d: %w", i, err)
			}
		}

		d.log("info", "Running trial %d/%d", i+1, d.config.Executions)
		res, err := d.runner.Run(ctx, i)
		if err != nil {
			return nil, err
		}

		stageOne = append(stageOne, res.Durations.StageOne)
		interStage = append(interStage, res.Durations.InterStage)
		stageTwo = append(stageTwo, res.Durations.StageTwo)
		total = append(total, res.Durations.Total)
		trials = append(trials, TrialSample{Index: i, TrialID: res.TrialID, Durations: res.Durations})
	}

	report := &Report{
		Executions: d.config.Executions,
		StartedAt:  started.UTC(),
		Elapsed:    time.Since(started),
		Host:       d.config.CollectHost(),
		Trials:     trials,
	}

	series := []struct {
		name    string
		samples []float64
	}{
		{SeriesStageOne, stageOne},
		{SeriesInterStage, interStage},
		{SeriesStageTwo, stageTwo},
		{SeriesTotal, total},
	}
	for _, s := range series {
		summary, err := stats.Summarize(s.name, s.samples)
		if err != nil {
			return nil, err
		}
		report.Summaries = append(report.Summaries, summary)
	}

	return report, nil
}

// Limiter returns a limiter that starts at most one trial per interval, or
// nil for a non-positive interval.
func Limiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
