// Package stats computes percentile summaries over latency samples.
//
// Percentiles use linear interpolation between closest ranks:
//
//	idx = p/100 * (n-1)
//
// When idx falls on an integer the sample at that rank is returned, otherwise
// the two neighbouring samples are blended by the fractional part of idx.
// Previously recorded reports were produced with this exact rule, so it must
// not be switched to nearest-rank.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrNoSamples is returned when a percentile is requested over an empty series.
	ErrNoSamples = errors.New("no samples")

	// ErrPercentileRange is returned when p is outside [0, 100].
	ErrPercentileRange = errors.New("percentile must be between 0 and 100")
)

// Percentile returns the p-th percentile of samples. The input slice is not modified.
func Percentile(samples []float64, p float64) (float64, error) {
	if len(samples) == 0 {
		return 0, ErrNoSamples
	}
	if p < 0 || p > 100 || math.IsNaN(p) {
		return 0, fmt.Errorf("%w: got %v", ErrPercentileRange, p)
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := (p / 100) * float64(len(sorted)-1)
	lower := math.Floor(idx)
	upper := math.Ceil(idx)
	if lower == upper {
		return sorted[int(idx)], nil
	}

	weight := idx - lower
	return sorted[int(lower)]*(1-weight) + sorted[int(upper)]*weight, nil
}

// Summary holds the headline statistics of one named series.
type Summary struct {
	Name  string  `yaml:"name"`
	Count int     `yaml:"count"`
	P50   float64 `yaml:"p50"`
	P95   float64 `yaml:"p95"`
	P99   float64 `yaml:"p99"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Mean  float64 `yaml:"mean"`
}

// Summarize computes P50/P95/P99 (plus count, min, max and mean) for samples.
func Summarize(name string, samples []float64) (Summary, error) {
	s := Summary{Name: name, Count: len(samples)}

	var err error
	if s.P50, err = Percentile(samples, 50); err != nil {
		return Summary{}, fmt.Errorf("%s: %w", name, err)
	}
	// The remaining calls cannot fail once P50 succeeded.
	s.P95, _ = Percentile(samples, 95)
	s.P99, _ = Percentile(samples, 99)
	s.Min, _ = Percentile(samples, 0)
	s.Max, _ = Percentile(samples, 100)

	var total float64
	for _, v := range samples {
		total += v
	}
	s.Mean = total / float64(len(samples))

	return s, nil
}

// String renders the summary in the fixed two-decimal report format.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Statistics (ms):\n", s.Name)
	fmt.Fprintf(&b, "P50: %.2f\n", s.P50)
	fmt.Fprintf(&b, "P95: %.2f\n", s.P95)
	fmt.Fprintf(&b, "P99: %.2f\n", s.P99)
	return b.String()
}
