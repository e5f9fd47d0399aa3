// cmd/local.go
package cmd

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/ingress"
	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// localBlockMs keeps the embedded worker responsive to shutdown.
const localBlockMs = 200

var localCmd = &cobra.Command{
	Use:   "local [executions]",
	Short: "Benchmark the reference pipeline in-process",
	Long: `Starts an embedded store, the reference ingress server and the reference
downstream worker, then runs the benchmark against them. Useful as a baseline
for the harness's own overhead and as a smoke test without any deployment.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLocal,
}

func runLocal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	executions := parseExecutions(append([]string{""}, args...))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mr, err := miniredis.Run()
	if err != nil {
		return fmt.Errorf("failed to start embedded store: %w", err)
	}
	defer mr.Close()

	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.Password = ""
	cfg.Downstream.BlockMs = localBlockMs

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	baseURL := "http://" + ln.Addr().String()

	headerColor.Fprintf(cmd.ErrOrStderr(), "Local pipeline: store %s, ingress %s\n", mr.Addr(), baseURL)

	srv := ingress.NewServer(ingress.NewHandler(store, ingress.HandlerConfig{
		Collection: cfg.Collection,
		LogFn:      quietInfo,
	}))
	runner := newDownstreamRunner(store, cfg, false, quietInfo)

	svcCtx, stopServices := context.WithCancel(ctx)
	defer stopServices()

	g, gctx := errgroup.WithContext(svcCtx)
	g.Go(func() error { return srv.Serve(gctx, ln) })
	g.Go(func() error { return runner.Run(gctx) })

	report, benchErr := benchmark(gctx, cfg, store, baseURL, executions)

	stopServices()
	waitErr := waitWithTimeout(g, 10*time.Second)

	if benchErr != nil {
		return fmt.Errorf("benchmark failed: %w", benchErr)
	}
	if waitErr != nil {
		return waitErr
	}
	if err := printReport(cmd, cfg, report); err != nil {
		return err
	}
	return archive(cmd, cfg, report)
}

// quietInfo drops routine lines from the embedded services so they do not
// interleave with the harness output.
func quietInfo(level, msg string) {
	if level == "warning" || level == "error" {
		logLine(level, msg)
		return
	}
	Debug("%s", msg)
}

func waitWithTimeout(g *errgroup.Group, d time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(d):
		return fmt.Errorf("embedded services did not stop within %s", d)
	}
}

func init() {
	localCmd.Flags().DurationVar(&benchTimeout, "timeout", 60*time.Second, "How long each trial waits for complete timing data")
	localCmd.Flags().DurationVar(&benchInterval, "interval", 0, "Minimum time between trial starts (0 = back to back)")
	localCmd.Flags().StringVarP(&benchOutput, "output", "o", "text", "Report format: text or yaml")
	localCmd.Flags().BoolVar(&saveHistory, "save", false, "Archive the report in the local history database")
	localCmd.Flags().DurationVar(&downstreamWork, "work", 100*time.Millisecond, "Simulated downstream processing time per event (negative = none)")
	rootCmd.AddCommand(localCmd)
}
