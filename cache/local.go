package cache

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pithecene-io/rulelens/resp"
)

// DefaultLocalSize is the entry bound of a Local store.
const DefaultLocalSize = 1024

type localEntry struct {
	value     []byte
	hash      map[string][]byte
	expiresAt time.Time // zero means no expiry
}

// Local is an in-process Store bounded by an LRU.
// Entries expire lazily against the injected clock.
type Local struct {
	mu      sync.Mutex
	entries *lru.Cache[string, localEntry]
	now     func() time.Time
}

// NewLocal creates a Local store holding at most size entries.
// A nil now uses time.Now.
func NewLocal(size int, now func() time.Time) (*Local, error) {
	if size <= 0 {
		size = DefaultLocalSize
	}
	if now == nil {
		now = time.Now
	}
	entries, err := lru.New[string, localEntry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: create local store: %w", err)
	}
	return &Local{entries: entries, now: now}, nil
}

// lookup returns the live entry at key, evicting it if expired. Caller holds mu.
func (l *Local) lookup(key string) (localEntry, bool) {
	e, ok := l.entries.Get(key)
	if !ok {
		return localEntry{}, false
	}
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		l.entries.Remove(key)
		return localEntry{}, false
	}
	return e, true
}

// Get returns the value stored at key.
func (l *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.lookup(key)
	if !ok {
		return nil, false, nil
	}
	if e.hash != nil {
		return nil, false, wrongType()
	}
	return e.value, true, nil
}

// Set stores value at key without expiry.
func (l *Local) Set(_ context.Context, key string, value []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries.Add(key, localEntry{value: clone(value)})
	return "OK", nil
}

// SetEx stores value at key with a TTL in whole seconds.
func (l *Local) SetEx(_ context.Context, key string, ttl time.Duration, value []byte) (string, error) {
	secs, err := ttlSeconds(ttl)
	if err != nil {
		return "", err
	}
	if secs == 0 {
		return "", &resp.ServerError{Message: "ERR invalid expire time in 'setex' command"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries.Add(key, localEntry{
		value:     clone(value),
		expiresAt: l.now().Add(time.Duration(secs) * time.Second),
	})
	return "OK", nil
}

// HSet sets field in the hash at key.
func (l *Local) HSet(_ context.Context, key, field string, value []byte) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.lookup(key)
	if ok && e.hash == nil {
		return 0, wrongType()
	}
	if !ok {
		e = localEntry{hash: make(map[string][]byte)}
	}
	// Copy on write; Get hands out the stored map's values.
	h := maps.Clone(e.hash)
	_, existed := h[field]
	h[field] = clone(value)
	e.hash = h
	l.entries.Add(key, e)
	if existed {
		return 0, nil
	}
	return 1, nil
}

// HGetAll returns every field of the hash at key.
func (l *Local) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.lookup(key)
	if !ok {
		return map[string][]byte{}, nil
	}
	if e.hash == nil {
		return nil, wrongType()
	}
	return maps.Clone(e.hash), nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (l *Local) Len() int {
	return l.entries.Len()
}

// Close drops every entry.
func (l *Local) Close() error {
	l.entries.Purge()
	return nil
}

func wrongType() error {
	return &resp.ServerError{Message: "WRONGTYPE Operation against a key holding the wrong kind of value"}
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return append([]byte(nil), b...)
}

var _ Store = (*Local)(nil)
