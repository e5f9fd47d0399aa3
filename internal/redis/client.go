// Package redis is the document store behind the trigger pipeline.
//
// It holds three kinds of data:
//
//   - timing records, one hash per trial ("timing:v1:{id}"), written with
//     set-once semantics and published as full snapshots on
//     "timing:v1:{id}:changes" after every write
//   - documents ("doc:v1:{collection}:{id}"), whose writes append a change
//     event to the collection's Redis Stream ("changes:v1:{collection}")
//   - change-event consumption through consumer groups, with a Dead Letter
//     Queue ("dlq:v1:{collection}") for events that keep failing
//
// A single Client is opened per process and shared by every component.
package redis

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the pipeline store.
type Client struct {
	client        *redis.Client
	consumerName  string
	consumerGroup string
	blockMs       int
	maxAttempts   int
	streamMaxLen  int64
}

// ClientConfig holds configuration for the Redis client.
type ClientConfig struct {
	URL           string
	Password      string
	ConsumerGroup string
	BlockMs       int
	MaxAttempts   int
	StreamMaxLen  int64
}

// NewClient creates a new, unconnected Redis client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = "triggerbench-downstream"
	}
	if cfg.BlockMs == 0 {
		cfg.BlockMs = 5000 // 5 seconds default
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.StreamMaxLen == 0 {
		cfg.StreamMaxLen = 10000
	}

	return &Client{
		consumerName:  fmt.Sprintf("triggerbench-%s", uuid.New().String()[:8]),
		consumerGroup: cfg.ConsumerGroup,
		blockMs:       cfg.BlockMs,
		maxAttempts:   cfg.MaxAttempts,
		streamMaxLen:  cfg.StreamMaxLen,
	}
}

// Connect establishes connection to Redis.
func (c *Client) Connect(ctx context.Context, url, password string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if password != "" {
		opts.Password = password
	}

	c.client = redis.NewClient(opts)

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.client.Close()
		c.client = nil
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ConsumerName returns the unique consumer identifier used in consumer groups.
func (c *Client) ConsumerName() string {
	return c.consumerName
}

// ConsumerGroup returns the consumer group name.
func (c *Client) ConsumerGroup() string {
	return c.consumerGroup
}

// MaxAttempts returns the maximum delivery count before an event goes to the DLQ.
func (c *Client) MaxAttempts() int {
	return c.maxAttempts
}

// MaskURL masks the password in a Redis URL for safe logging.
// redis://:password@host:port -> redis://:***@host:port
func MaskURL(redisURL string) string {
	u, err := url.Parse(redisURL)
	if err != nil {
		if strings.HasPrefix(redisURL, "redis://") {
			return "redis://***"
		}
		return "***"
	}
	if _, hasPass := u.User.Password(); hasPass {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
