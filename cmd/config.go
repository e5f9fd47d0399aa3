// cmd/config.go
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aceteam-ai/triggerbench/internal/watcher"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the merged configuration for every command.
type Config struct {
	Redis      RedisConfig      `yaml:"redis"`
	Bench      BenchConfig      `yaml:"bench"`
	Ingress    IngressConfig    `yaml:"ingress"`
	Downstream DownstreamConfig `yaml:"downstream"`
	History    HistoryConfig    `yaml:"history"`
	Collection string           `yaml:"collection"`
}

// RedisConfig locates the timing store.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// BenchConfig controls the harness.
type BenchConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
	Output   string        `yaml:"output"`
}

// HistoryConfig controls the local run archive.
type HistoryConfig struct {
	Path string `yaml:"path"`
	Save bool   `yaml:"save"`
}

// IngressConfig controls the reference ingress server.
type IngressConfig struct {
	Port int `yaml:"port"`
}

// DownstreamConfig controls the reference downstream worker.
type DownstreamConfig struct {
	Work        time.Duration `yaml:"work"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BlockMs     int           `yaml:"blockMs"`
}

func defaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{URL: "redis://localhost:6379"},
		Bench: BenchConfig{
			Timeout: watcher.DefaultTimeout,
			Output:  "text",
		},
		Ingress: IngressConfig{Port: 8080},
		Downstream: DownstreamConfig{
			Work:        100 * time.Millisecond,
			MaxAttempts: 3,
			BlockMs:     5000,
		},
		History:    HistoryConfig{Path: defaultHistoryPath()},
		Collection: "items",
	}
}

func defaultHistoryPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "triggerbench-history.db"
	}
	return filepath.Join(homeDir, ".triggerbench", "history.db")
}

// configPath returns the file to read and whether the user asked for it
// explicitly. A missing default file is not an error.
func configPath() (string, bool) {
	if cfgFile != "" {
		return cfgFile, true
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(homeDir, ".triggerbench.yaml"), false
}

// readConfigFile overlays the YAML file at path onto cfg.
func readConfigFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.Redis.URL = getEnvOrDefault("TRIGGERBENCH_REDIS_URL", getEnvOrDefault("REDIS_URL", cfg.Redis.URL))
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
}

// applyFlags overlays only the flags the user actually set.
func applyFlags(cfg *Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("redis") {
		cfg.Redis.URL = redisURL
	}
	if flags.Changed("timeout") {
		cfg.Bench.Timeout = benchTimeout
	}
	if flags.Changed("interval") {
		cfg.Bench.Interval = benchInterval
	}
	if flags.Changed("output") {
		cfg.Bench.Output = benchOutput
	}
	if flags.Changed("save") {
		cfg.History.Save = saveHistory
	}
	if flags.Changed("history-db") {
		cfg.History.Path = historyPath
	}
	if flags.Changed("port") {
		cfg.Ingress.Port = ingressPort
	}
	if flags.Changed("work") {
		cfg.Downstream.Work = downstreamWork
	}
	if flags.Changed("max-attempts") {
		cfg.Downstream.MaxAttempts = downstreamMaxAttempts
	}
}

// loadConfig merges defaults, the config file, the environment and flags,
// in increasing order of precedence.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	cfg := defaultConfig()

	if path, required := configPath(); path != "" {
		if err := readConfigFile(cfg, path, required); err != nil {
			return nil, err
		}
		Debug("config file: %s", path)
	}

	applyEnv(cfg)
	applyFlags(cfg, cmd)

	if cfg.Bench.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", cfg.Bench.Timeout)
	}
	if cfg.Bench.Output != "text" && cfg.Bench.Output != "yaml" {
		return nil, fmt.Errorf("unknown output format %q (want text or yaml)", cfg.Bench.Output)
	}
	return cfg, nil
}
