// Package redis publishes run completion events as JSON on a Redis pub/sub
// channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/rulelens/adapter"
)

// Defaults.
const (
	DefaultChannel = "rulelens:run_completed"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
)

// Config configures the adapter.
type Config struct {
	// URL is redis://[:password@]host:port[/db]. Required.
	URL     string
	Channel string
	// Timeout bounds each PUBLISH attempt.
	Timeout time.Duration
	Retries int
}

// Adapter publishes via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates the adapter. It does not connect until the first publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends event to the configured channel, retrying with backoff.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	attempts, err := adapter.Retry(ctx, a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		return a.client.Publish(publishCtx, a.config.Channel, body).Err()
	}, isClosed)
	if err != nil {
		return fmt.Errorf("redis: publish failed after %d attempt(s): %w", attempts, err)
	}
	return nil
}

// Close closes the client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func isClosed(err error) bool {
	return errors.Is(err, goredis.ErrClosed)
}

var _ adapter.Adapter = (*Adapter)(nil)
