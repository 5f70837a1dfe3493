// Package cache reaches the key-value store that holds parse results,
// explanations and assembled context between runs.
//
// Three Store implementations share one interface: Client (a fresh RESP
// connection per command), Pooled (go-redis) and Local (in-process LRU).
// Advisory wraps any Store and turns every failure into a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store is the command surface the pipeline needs from a cache backend.
type Store interface {
	// Get returns the value and true, or nil and false if the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value without expiry and returns the status reply.
	Set(ctx context.Context, key string, value []byte) (string, error)
	// SetEx stores value with a TTL in whole seconds and returns the status reply.
	SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) (string, error)
	// HSet sets one hash field and returns the number of fields added.
	HSet(ctx context.Context, key, field string, value []byte) (int64, error)
	// HGetAll returns all fields of a hash; a missing key yields an empty map.
	HGetAll(ctx context.Context, key string) (map[string][]byte, error)
	// Close releases backend resources.
	Close() error
}

// ErrUnavailable matches every *UnavailableError via errors.Is.
var ErrUnavailable = errors.New("cache unavailable")

// ErrNegativeTTL is returned by SetEx before any I/O when ttl < 0.
var ErrNegativeTTL = errors.New("cache: ttl must be >= 0")

// UnavailableError reports that the store could not be reached or stopped
// responding (dial failure, timeout, reset, write or read failure).
type UnavailableError struct {
	Op   string
	Addr string
	Err  error
}

func (e *UnavailableError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("cache: %s %s: unavailable: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("cache: %s: unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// IsUnavailable returns true if err is or wraps an *UnavailableError.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// ttlSeconds converts ttl to the whole seconds sent on the wire. Any
// fraction rounds up so a positive ttl never becomes zero.
func ttlSeconds(ttl time.Duration) (int64, error) {
	if ttl < 0 {
		return 0, ErrNegativeTTL
	}
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	return secs, nil
}
