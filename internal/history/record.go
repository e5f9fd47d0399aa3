// Package history archives benchmark runs in a local SQLite database so
// results can be compared across deployments.
package history

import (
	"time"

	"github.com/aceteam-ai/triggerbench/internal/stats"
)

// Run is one archived benchmark run.
type Run struct {
	// Database ID (set after insert)
	ID int64

	Target     string
	Executions int
	StartedAt  time.Time
	ElapsedMs  int64
	Hostname   string

	// Summaries in report order
	Summaries []stats.Summary
}

// Summary returns the named series, or false if the run has none.
func (r *Run) Summary(name string) (stats.Summary, bool) {
	for _, s := range r.Summaries {
		if s.Name == name {
			return s, true
		}
	}
	return stats.Summary{}, false
}
