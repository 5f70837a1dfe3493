package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/rulelens/resp"
)

// Pooled is a Store backed by a pooled go-redis client.
// It trades the one-connection-per-command model for throughput (batch runs).
type Pooled struct {
	client *goredis.Client
	addr   string
}

// NewPooled creates a Pooled store from a redis:// URL.
func NewPooled(url string, timeout time.Duration) (*Pooled, error) {
	if url == "" {
		return nil, errors.New("cache: pooled backend requires a url")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid url: %w", err)
	}
	if timeout > 0 {
		opts.DialTimeout = timeout
		opts.ReadTimeout = timeout
		opts.WriteTimeout = timeout
	}
	return &Pooled{client: goredis.NewClient(opts), addr: opts.Addr}, nil
}

// Get returns the value stored at key.
func (p *Pooled) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, p.classify("GET", err)
	}
	return val, true, nil
}

// Set stores value at key without expiry.
func (p *Pooled) Set(ctx context.Context, key string, value []byte) (string, error) {
	status, err := p.client.Set(ctx, key, value, 0).Result()
	if err != nil {
		return "", p.classify("SET", err)
	}
	return status, nil
}

// SetEx stores value at key with a TTL. A negative ttl fails before any I/O.
func (p *Pooled) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) (string, error) {
	secs, err := ttlSeconds(ttl)
	if err != nil {
		return "", err
	}
	status, err := p.client.SetEx(ctx, key, value, time.Duration(secs)*time.Second).Result()
	if err != nil {
		return "", p.classify("SETEX", err)
	}
	return status, nil
}

// HSet sets field in the hash at key.
func (p *Pooled) HSet(ctx context.Context, key, field string, value []byte) (int64, error) {
	n, err := p.client.HSet(ctx, key, field, value).Result()
	if err != nil {
		return 0, p.classify("HSET", err)
	}
	return n, nil
}

// HGetAll returns every field of the hash at key.
func (p *Pooled) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	fields, err := p.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, p.classify("HGETALL", err)
	}
	out := make(map[string][]byte, len(fields))
	for k, v := range fields {
		out[k] = []byte(v)
	}
	return out, nil
}

// Close closes the connection pool.
func (p *Pooled) Close() error {
	return p.client.Close()
}

// classify maps go-redis errors onto the same taxonomy Client uses.
func (p *Pooled) classify(op string, err error) error {
	var redisErr goredis.Error
	if errors.As(err, &redisErr) {
		return &resp.ServerError{Message: redisErr.Error()}
	}
	return &UnavailableError{Op: op, Addr: p.addr, Err: err}
}

var _ Store = (*Pooled)(nil)
