package bench

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/stats"
	"github.com/aceteam-ai/triggerbench/internal/timing"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// SummaryHeading opens the statistics section of a report.
const SummaryHeading = "=== Summary Statistics ==="

var (
	colorTitle = lipgloss.AdaptiveColor{Light: "#5A67D8", Dark: "#7C3AED"}
	colorMuted = lipgloss.AdaptiveColor{Light: "#718096", Dark: "#A0AEC0"}

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(colorMuted)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

// Report is the result of a benchmark run.
type Report struct {
	Target     string          `yaml:"target,omitempty"`
	Executions int             `yaml:"executions"`
	StartedAt  time.Time       `yaml:"startedAt"`
	Elapsed    time.Duration   `yaml:"elapsed"`
	Host       HostInfo        `yaml:"host"`
	Summaries  []stats.Summary `yaml:"summaries"`
	Trials     []TrialSample   `yaml:"trials,omitempty"`
}

// TrialSample is one trial's contribution to the series.
type TrialSample struct {
	Index     int              `yaml:"index"`
	TrialID   string           `yaml:"trialId"`
	Durations timing.Durations `yaml:",inline"`
}

// Write prints the summary statistics, one block per series in run order.
func (r *Report) Write(w io.Writer) error {
	var b strings.Builder
	b.WriteString("\n" + SummaryHeading + "\n")
	for _, s := range r.Summaries {
		b.WriteString("\n" + s.String())
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Banner renders the run context (target, host, elapsed time) for a terminal.
func (r *Report) Banner() string {
	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-10s", label)) + " " + value
	}

	lines := []string{titleStyle.Render("triggerbench")}
	if r.Target != "" {
		lines = append(lines, row("target", r.Target))
	}
	lines = append(lines,
		row("trials", fmt.Sprintf("%d in %s", r.Executions, r.Elapsed.Round(time.Millisecond))),
		row("host", fmt.Sprintf("%s (%s)", r.Host.Hostname, r.Host.OS)),
		row("cpu", fmt.Sprintf("%d cores %s", r.Host.CPUCores, r.Host.CPUModel)),
	)
	if r.Host.MemoryTotalGB > 0 {
		lines = append(lines, row("memory", fmt.Sprintf("%.1f GB (%.0f%% used)", r.Host.MemoryTotalGB, r.Host.MemoryPercent)))
	}

	return boxStyle.Render(strings.Join(lines, "\n"))
}

// WriteYAML emits the full report, including min/max/mean per series.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
