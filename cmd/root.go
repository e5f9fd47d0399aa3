// cmd/root.go
/*
Copyright © 2025 AceTeam <dev@aceteam.ai>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/bench"
	redisclient "github.com/aceteam-ai/triggerbench/internal/redis"
	"github.com/aceteam-ai/triggerbench/internal/trial"
	"github.com/aceteam-ai/triggerbench/internal/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var errMissingURL = errors.New("missing function URL")

var cfgFile string
var redisURL string
var debugMode bool
var historyPath string

var (
	benchTimeout  time.Duration
	benchInterval time.Duration
	benchOutput   string
	saveHistory   bool
)

// debugLogFile is the file handle for debug logging
var debugLogFile *os.File
var debugLogMu sync.Mutex
var debugLogInitOnce sync.Once

// initDebugLogFile initializes the debug log file
func initDebugLogFile() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return
	}

	logDir := filepath.Join(homeDir, ".triggerbench", "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return
	}

	logPath := filepath.Join(logDir, "debug.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}

	debugLogFile = f

	// Write session header
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(debugLogFile, "\n=== Debug session started: %s ===\n", timestamp)
}

// Debug prints a message if debug mode is enabled and writes to log file
func Debug(format string, args ...interface{}) {
	if debugMode {
		timestamp := time.Now().Format("2006-01-02 15:04:05.000")
		msg := fmt.Sprintf(format, args...)

		fmt.Printf("[DEBUG] %s\n", msg)

		debugLogMu.Lock()
		debugLogInitOnce.Do(initDebugLogFile)
		if debugLogFile != nil {
			fmt.Fprintf(debugLogFile, "[%s] %s\n", timestamp, msg)
		}
		debugLogMu.Unlock()
	}
}

// rootCmd benchmarks a deployed pipeline when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "triggerbench <function-url> [executions]",
	Short: "Measure end-to-end latency of a change-triggered pipeline",
	Long: `Triggers the ingress stage of a two-stage pipeline, waits for the
downstream stage to complete the trial's timing record, and reports P50/P95/P99
for each stage over repeated trials.

Example:
  triggerbench https://region-project.cloudfunctions.net 20
  triggerbench http://localhost:8080 10 --interval 500ms --output yaml`,
	Version:       Version,
	Args:          cobra.MaximumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugMode {
			fullCmd := "triggerbench"
			if cmd.HasParent() {
				fullCmd += " " + cmd.Name()
			}
			cmd.Flags().Visit(func(f *pflag.Flag) {
				if f.Name == "debug" {
					return
				}
				if f.Value.Type() == "bool" {
					fullCmd += " --" + f.Name
				} else {
					fullCmd += " --" + f.Name + "=" + f.Value.String()
				}
			})
			if len(args) > 0 {
				fullCmd += " " + strings.Join(args, " ")
			}
			Debug("command: %s", fullCmd)
		}
	},
	RunE: runBenchmark,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}

// printError is the single place a failed command reports its error.
func printError(w io.Writer, err error) {
	badColor.Fprintf(w, "Error: %v\n", err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.triggerbench.yaml)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis URL of the timing store (env: TRIGGERBENCH_REDIS_URL, REDIS_URL)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history-db", "", "Run history database (default is $HOME/.triggerbench/history.db)")

	rootCmd.Flags().DurationVar(&benchTimeout, "timeout", watcher.DefaultTimeout, "How long each trial waits for complete timing data")
	rootCmd.Flags().DurationVar(&benchInterval, "interval", 0, "Minimum time between trial starts (0 = back to back)")
	rootCmd.Flags().StringVarP(&benchOutput, "output", "o", "text", "Report format: text or yaml")
	rootCmd.Flags().BoolVar(&saveHistory, "save", false, "Archive the report in the local history database")
}

// parseExecutions reads the optional executions argument. Only the leading
// integer counts ("5x" is 5, "3.9" is 3); anything without a
// positive leading integer means one execution.
func parseExecutions(args []string) int {
	if len(args) < 2 {
		return 1
	}
	s := strings.TrimSpace(args[1])
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Usage: "+cmd.UseLine())
		return errMissingURL
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := benchmark(ctx, cfg, store, args[0], parseExecutions(args))
	if err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}

	if err := printReport(cmd, cfg, report); err != nil {
		return err
	}
	return archive(cmd, cfg, report)
}

// openStore connects the process-wide Redis client.
func openStore(ctx context.Context, cfg *Config) (*redisclient.Client, error) {
	client := redisclient.NewClient(redisclient.ClientConfig{
		URL:         cfg.Redis.URL,
		Password:    cfg.Redis.Password,
		MaxAttempts: cfg.Downstream.MaxAttempts,
		BlockMs:     cfg.Downstream.BlockMs,
	})
	Debug("connecting to %s", redisclient.MaskURL(cfg.Redis.URL))
	if err := client.Connect(ctx, cfg.Redis.URL, cfg.Redis.Password); err != nil {
		return nil, err
	}
	return client, nil
}

// benchmark runs executions trials against the pipeline at baseURL.
func benchmark(ctx context.Context, cfg *Config, store *redisclient.Client, baseURL string, executions int) (*bench.Report, error) {
	logFn := logLine
	if cfg.Bench.Output == "yaml" {
		// keep stdout parseable
		logFn = logTo(os.Stderr, os.Stderr)
	}

	runner := trial.NewRunner(trial.Config{
		BaseURL: baseURL,
		Timeout: cfg.Bench.Timeout,
		LogFn:   logFn,
	}, watcher.New(store))

	logFn("info", fmt.Sprintf("Running %d trial(s) against %s", executions, runner.Endpoint()))

	driver := bench.NewDriver(bench.Config{
		Executions: executions,
		Limiter:    bench.Limiter(cfg.Bench.Interval),
		LogFn:      logFn,
	}, runner)

	report, err := driver.Run(ctx)
	if err != nil {
		return nil, err
	}
	report.Target = runner.Endpoint()
	return report, nil
}

func printReport(cmd *cobra.Command, cfg *Config, report *bench.Report) error {
	out := cmd.OutOrStdout()
	if cfg.Bench.Output == "yaml" {
		return report.WriteYAML(out)
	}
	fmt.Fprintln(out, report.Banner())
	return report.Write(out)
}
