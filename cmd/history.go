// cmd/history.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/bench"
	"github.com/aceteam-ai/triggerbench/internal/history"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived benchmark runs",
	Long: `Shows the most recent runs saved with --save, newest first, with the
end-to-end P50/P95/P99 of each.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs archived yet. Use --save to record one.")
			return nil
		}

		store, err := history.OpenStore(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Recent(historyLimit)
		if err != nil {
			return err
		}
		return writeHistory(cmd.OutOrStdout(), runs)
	},
}

// writeHistory renders runs as a table, one row per run.
func writeHistory(out io.Writer, runs []history.Run) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tTARGET\tTRIALS\tP50\tP95\tP99")
	for _, r := range runs {
		p50, p95, p99 := "-", "-", "-"
		if s, ok := r.Summary(bench.SeriesTotal); ok {
			p50 = fmt.Sprintf("%.2f", s.P50)
			p95 = fmt.Sprintf("%.2f", s.P95)
			p99 = fmt.Sprintf("%.2f", s.P99)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Target, r.Executions, p50, p95, p99)
	}
	return w.Flush()
}

// archive saves report when the user asked for it.
func archive(cmd *cobra.Command, cfg *Config, report *bench.Report) error {
	if !cfg.History.Save {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	store, err := history.OpenStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Save(report)
	if err != nil {
		return err
	}
	goodColor.Fprintf(cmd.ErrOrStderr(), "Saved run #%d to %s\n", id, cfg.History.Path)
	return nil
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
