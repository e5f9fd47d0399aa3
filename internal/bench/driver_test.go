package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/stats"
	"github.com/aceteam-ai/triggerbench/internal/timing"
	"github.com/aceteam-ai/triggerbench/internal/trial"
	"github.com/aceteam-ai/triggerbench/internal/watcher"
	"gopkg.in/yaml.v3"
)

// MockRunner returns pre-set results in order.
type MockRunner struct {
	Results []timing.Durations
	FailAt  int
	Err     error
	Calls   []int
}

func (m *MockRunner) Run(ctx context.Context, index int) (*trial.Result, error) {
	m.Calls = append(m.Calls, index)
	if m.Err != nil && index == m.FailAt {
		return nil, m.Err
	}
	return &trial.Result{TrialID: fmt.Sprint(index), Durations: m.Results[index%len(m.Results)]}, nil
}

func quiet(level, msg string) {}

func fakeHost() HostInfo {
	return HostInfo{Hostname: "bench-host", OS: "linux/amd64", CPUCores: 4, GoVersion: "go1.25"}
}

func TestDriverAggregatesSeriesInOrder(t *testing.T) {
	runner := &MockRunner{Results: []timing.Durations{
		{StageOne: 10, InterStage: 100, StageTwo: 1, Total: 1000},
		{StageOne: 20, InterStage: 200, StageTwo: 2, Total: 2000},
		{StageOne: 30, InterStage: 300, StageTwo: 3, Total: 3000},
		{StageOne: 40, InterStage: 400, StageTwo: 4, Total: 4000},
	}}

	d := NewDriver(Config{Executions: 4, CollectHost: fakeHost, LogFn: quiet}, runner)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if fmt.Sprint(runner.Calls) != "[0 1 2 3]" {
		t.Errorf("trial indexes = %v, want [0 1 2 3]", runner.Calls)
	}

	wantNames := []string{SeriesStageOne, SeriesInterStage, SeriesStageTwo, SeriesTotal}
	if len(report.Summaries) != len(wantNames) {
		t.Fatalf("got %d summaries, want %d", len(report.Summaries), len(wantNames))
	}
	for i, name := range wantNames {
		if report.Summaries[i].Name != name {
			t.Errorf("summary %d = %q, want %q", i, report.Summaries[i].Name, name)
		}
		if report.Summaries[i].Count != 4 {
			t.Errorf("%s count = %d, want 4", name, report.Summaries[i].Count)
		}
	}

	if p50 := report.Summaries[0].P50; math.Abs(p50-25) > 1e-9 {
		t.Errorf("stage one P50 = %v, want 25", p50)
	}
	if p95 := report.Summaries[0].P95; math.Abs(p95-38.5) > 1e-9 {
		t.Errorf("stage one P95 = %v, want 38.5", p95)
	}
	if p50 := report.Summaries[3].P50; math.Abs(p50-2500) > 1e-9 {
		t.Errorf("total P50 = %v, want 2500", p50)
	}
	if report.Host.Hostname != "bench-host" {
		t.Errorf("Host = %+v", report.Host)
	}
	if len(report.Trials) != 4 || report.Trials[2].TrialID != "2" || report.Trials[2].Durations.Total != 3000 {
		t.Errorf("Trials = %+v", report.Trials)
	}
}

func TestDriverFailFast(t *testing.T) {
	boom := &trial.Error{TrialID: "1", Stage: trial.StageWatch, Err: &watcher.TimeoutError{After: time.Second}}
	runner := &MockRunner{
		Results: []timing.Durations{{StageOne: 1, InterStage: 1, StageTwo: 1, Total: 1}},
		FailAt:  1,
		Err:     boom,
	}

	d := NewDriver(Config{Executions: 5, CollectHost: fakeHost, LogFn: quiet}, runner)
	report, err := d.Run(context.Background())

	if !errors.Is(err, watcher.ErrTimeout) {
		t.Fatalf("Run() error = %v, want ErrTimeout", err)
	}
	if report != nil {
		t.Error("partial statistics should be discarded")
	}
	if len(runner.Calls) != 2 {
		t.Errorf("ran %d trials, want 2", len(runner.Calls))
	}
}

func TestDriverNoExecutions(t *testing.T) {
	d := NewDriver(Config{Executions: 0, LogFn: quiet}, &MockRunner{})
	if _, err := d.Run(context.Background()); !errors.Is(err, ErrNoExecutions) {
		t.Errorf("Run() error = %v, want ErrNoExecutions", err)
	}
}

func TestDriverLimiterHonorsContext(t *testing.T) {
	runner := &MockRunner{Results: []timing.Durations{{Total: 1}}}
	ctx, cancel := context.WithCancel(context.Background())

	d := NewDriver(Config{
		Executions:  3,
		Limiter:     Limiter(time.Hour),
		CollectHost: fakeHost,
		LogFn: func(level, msg string) {
			if strings.Contains(msg, "1/3") {
				cancel()
			}
		},
	}, runner)

	_, err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(runner.Calls) != 1 {
		t.Errorf("ran %d trials, want 1", len(runner.Calls))
	}
}

func TestLimiter(t *testing.T) {
	if Limiter(0) != nil {
		t.Error("Limiter(0) should be nil")
	}
	if Limiter(-time.Second) != nil {
		t.Error("Limiter(<0) should be nil")
	}
	if Limiter(time.Second) == nil {
		t.Error("Limiter(1s) should not be nil")
	}
}

// acceptAll answers every trigger with 200.
type acceptAll struct{}

func (acceptAll) RoundTrip(req *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"success":true}`)),
		Request:    req,
	}, nil
}

// fakePipeline is a Watcher that answers every trial with a complete record
// of fixed stage durations and an externally supplied total.
type fakePipeline struct {
	next int64
}

func (f *fakePipeline) Watch(ctx context.Context, trialID string, isComplete timing.Predicate, timeout time.Duration) (*timing.Record, error) {
	f.next += 17
	start := int64(1_700_000_000_000)
	rec := &timing.Record{
		RequestID:        trialID,
		FirstStageStart:  start,
		FirstStageEnd:    start + 50,
		SecondStageStart: start + 80,
		SecondStageEnd:   start + 100,
		TotalDuration:    100 + f.next,
	}
	if !isComplete(rec) {
		return nil, errors.New("fake record should be complete")
	}
	return rec, nil
}

func TestEndToEndFixedStages(t *testing.T) {
	var ids []string
	pipeline := &fakePipeline{}
	tr := trial.NewRunner(trial.Config{
		BaseURL: "http://unused",
		NewID: func(i int) string {
			id := fmt.Sprintf("trial-%d", i)
			ids = append(ids, id)
			return id
		},
		HTTPClient: &http.Client{Transport: acceptAll{}},
		LogFn:      quiet,
	}, pipeline)

	report, err := NewDriver(Config{Executions: 3, CollectHost: fakeHost, LogFn: quiet}, tr).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[string]float64{SeriesStageOne: 50, SeriesInterStage: 30, SeriesStageTwo: 20}
	for _, s := range report.Summaries[:3] {
		if s.P50 != want[s.Name] || s.P95 != want[s.Name] || s.P99 != want[s.Name] {
			t.Errorf("%s = %+v, want all percentiles %v", s.Name, s, want[s.Name])
		}
	}

	// Totals are the stored values (117, 134, 151), not a recomputed 100.
	total := report.Summaries[3]
	if total.Min != 117 || total.Max != 151 || total.P50 != 134 {
		t.Errorf("total = %+v, want stored totals 117/134/151", total)
	}
	if len(ids) != 3 {
		t.Errorf("generated %d ids, want 3", len(ids))
	}
}

func TestReportWrite(t *testing.T) {
	mk := func(name string, v float64) stats.Summary {
		s, _ := stats.Summarize(name, []float64{v})
		return s
	}
	report := &Report{Summaries: []stats.Summary{
		mk(SeriesStageOne, 50),
		mk(SeriesInterStage, 30),
		mk(SeriesStageTwo, 20),
		mk(SeriesTotal, 100),
	}}

	var buf bytes.Buffer
	if err := report.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := "\n=== Summary Statistics ===\n" +
		"\nFirst Stage Duration Statistics (ms):\nP50: 50.00\nP95: 50.00\nP99: 50.00\n" +
		"\nTrigger Latency Statistics (ms):\nP50: 30.00\nP95: 30.00\nP99: 30.00\n" +
		"\nSecond Stage Duration Statistics (ms):\nP50: 20.00\nP95: 20.00\nP99: 20.00\n" +
		"\nTotal Duration Statistics (ms):\nP50: 100.00\nP95: 100.00\nP99: 100.00\n"
	if buf.String() != want {
		t.Errorf("Write() =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestReportYAML(t *testing.T) {
	s, _ := stats.Summarize(SeriesTotal, []float64{10, 20})
	report := &Report{Target: "http://x", Executions: 2, Host: fakeHost(), Summaries: []stats.Summary{s}}

	var buf bytes.Buffer
	if err := report.WriteYAML(&buf); err != nil {
		t.Fatalf("WriteYAML() error = %v", err)
	}

	var back Report
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if back.Target != "http://x" || back.Executions != 2 || back.Host.Hostname != "bench-host" {
		t.Errorf("decoded report = %+v", back)
	}
	if len(back.Summaries) != 1 || back.Summaries[0].Mean != 15 {
		t.Errorf("decoded summaries = %+v", back.Summaries)
	}
}

func TestReportBanner(t *testing.T) {
	report := &Report{Target: "http://x", Executions: 3, Host: fakeHost()}
	banner := report.Banner()
	for _, want := range []string{"triggerbench", "http://x", "bench-host", "4 cores"} {
		if !strings.Contains(banner, want) {
			t.Errorf("Banner() missing %q:\n%s", want, banner)
		}
	}
}
