// cmd/downstream.go
package cmd

import (
	"context"
	"time"

	redisclient "github.com/aceteam-ai/triggerbench/internal/redis"
	"github.com/aceteam-ai/triggerbench/internal/worker"
	"github.com/spf13/cobra"
)

var (
	downstreamWork        time.Duration
	downstreamMaxAttempts int
)

var downstreamCmd = &cobra.Command{
	Use:   "downstream",
	Short: "Run the reference change-triggered second stage",
	Long: `Consumes document change events from the store and stamps each trial's
timing record with the second stage's start, end and the end-to-end total.
Events that keep failing are moved to the dead-letter stream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		return newDownstreamRunner(store, cfg, true, logLine).Run(ctx)
	},
}

// newDownstreamRunner wires the change-stream source to the downstream handler.
func newDownstreamRunner(store *redisclient.Client, cfg *Config, handleSignals bool, logFn func(level, msg string)) *worker.Runner {
	source := worker.NewRedisSource(store, worker.RedisSourceConfig{
		Collection: cfg.Collection,
		LogFn:      logFn,
	})
	handler := worker.NewDownstreamHandler(store, worker.DownstreamConfig{
		Work:  cfg.Downstream.Work,
		LogFn: logFn,
	})
	return worker.NewRunner(source, []worker.Handler{handler}, worker.RunnerConfig{
		WorkerID:      store.ConsumerName(),
		HandleSignals: handleSignals,
		LogFn:         logFn,
	})
}

func init() {
	downstreamCmd.Flags().DurationVar(&downstreamWork, "work", 100*time.Millisecond, "Simulated processing time per event (negative = none)")
	downstreamCmd.Flags().IntVar(&downstreamMaxAttempts, "max-attempts", 3, "Deliveries before an event is dead-lettered")
	rootCmd.AddCommand(downstreamCmd)
}
