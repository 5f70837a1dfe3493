package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"

	"github.com/pithecene-io/rulelens/log"
	"github.com/pithecene-io/rulelens/metrics"
	"github.com/pithecene-io/rulelens/types"
)

// AdvisoryConfig configures an Advisory cache.
type AdvisoryConfig struct {
	// Store is the backend. Nil disables caching (every lookup misses).
	Store Store
	// Namespace prefixes keys (default "mvel").
	Namespace string
	// TTLs overrides per-kind expiry (default DefaultTTLs).
	TTLs TTLs
	// Logger receives warn-level entries for degraded operations.
	Logger *log.Logger
	// Metrics receives hit/miss/error counters. Optional.
	Metrics *metrics.Collector
}

// Advisory is the cache as the pipeline sees it: lookups return a value or
// a miss and writes are best effort. It never returns an error; failures are
// logged, counted and treated as misses.
//
// Safe for concurrent use. Concurrent misses for the same key within the
// process can be coalesced with Do.
type Advisory struct {
	store     Store
	namespace string
	ttls      TTLs
	logger    *log.Logger
	metrics   *metrics.Collector
	group     singleflight.Group
}

// NewAdvisory creates an Advisory cache.
func NewAdvisory(cfg AdvisoryConfig) *Advisory {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.TTLs == nil {
		cfg.TTLs = DefaultTTLs()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	return &Advisory{
		store:     cfg.Store,
		namespace: cfg.Namespace,
		ttls:      cfg.TTLs,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Enabled reports whether a backend is configured.
func (a *Advisory) Enabled() bool {
	return a != nil && a.store != nil
}

// Key returns the full key for kind and hash.
func (a *Advisory) Key(kind Kind, hash string) string {
	ns := DefaultNamespace
	if a != nil {
		ns = a.namespace
	}
	return KeyFor(ns, kind, hash)
}

// GetParse looks up a cached extraction. Corrupt entries are misses.
func (a *Advisory) GetParse(ctx context.Context, hash string) (types.Extraction, bool) {
	raw, ok := a.get(ctx, KindParse, hash)
	if !ok {
		return types.Extraction{}, false
	}
	var ex types.Extraction
	if err := msgpack.Unmarshal(raw, &ex); err != nil {
		a.degrade(KindParse, "decode", hash, err)
		return types.Extraction{}, false
	}
	a.metrics.IncCacheHit(string(KindParse))
	return ex, true
}

// PutParse stores an extraction under the parse TTL.
func (a *Advisory) PutParse(ctx context.Context, hash string, ex types.Extraction) {
	if !a.Enabled() {
		return
	}
	raw, err := msgpack.Marshal(ex)
	if err != nil {
		a.writeFailed(KindParse, hash, fmt.Errorf("encode extraction: %w", err))
		return
	}
	a.put(ctx, KindParse, hash, raw)
}

// GetText looks up a cached explanation or context string.
func (a *Advisory) GetText(ctx context.Context, kind Kind, hash string) (string, bool) {
	raw, ok := a.get(ctx, kind, hash)
	if !ok {
		return "", false
	}
	a.metrics.IncCacheHit(string(kind))
	return string(raw), true
}

// PutText stores a text value under the kind's TTL.
func (a *Advisory) PutText(ctx context.Context, kind Kind, hash, text string) {
	if !a.Enabled() {
		return
	}
	a.put(ctx, kind, hash, []byte(text))
}

// Do runs fn once per key among concurrent in-process callers; the others
// wait and receive the same result. This is not a cross-process lock.
//
// fn runs under a context detached from any single caller's cancellation,
// so one caller giving up does not fail the others. A caller whose ctx
// ends stops waiting and gets ctx.Err(); the shared call keeps running.
func (a *Advisory) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if a == nil {
		return fn(ctx)
	}
	detached := context.WithoutCancel(ctx)
	ch := a.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		if res.Shared {
			a.metrics.IncCacheCoalesced()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// get returns raw bytes on hit. Misses and failures are counted here;
// hits are counted by the caller once the value decodes.
func (a *Advisory) get(ctx context.Context, kind Kind, hash string) ([]byte, bool) {
	if !a.Enabled() {
		return nil, false
	}
	raw, ok, err := a.store.Get(ctx, a.Key(kind, hash))
	if err != nil {
		a.degrade(kind, "get", hash, err)
		return nil, false
	}
	if !ok {
		a.metrics.IncCacheMiss(string(kind))
		return nil, false
	}
	return raw, true
}

func (a *Advisory) put(ctx context.Context, kind Kind, hash string, raw []byte) {
	if _, err := a.store.SetEx(ctx, a.Key(kind, hash), a.ttls.For(kind), raw); err != nil {
		a.writeFailed(kind, hash, err)
		return
	}
	a.metrics.IncCacheWrite(string(kind))
}

func (a *Advisory) degrade(kind Kind, op, hash string, err error) {
	a.metrics.IncCacheError(string(kind))
	a.metrics.IncCacheMiss(string(kind))
	a.logger.Warn("cache lookup degraded to miss", map[string]any{
		"kind":        string(kind),
		"op":          op,
		"hash":        hash,
		"error":       err.Error(),
		"unavailable": errors.Is(err, ErrUnavailable),
	})
}

func (a *Advisory) writeFailed(kind Kind, hash string, err error) {
	a.metrics.IncCacheWriteError()
	a.logger.Warn("cache write failed", map[string]any{
		"kind":        string(kind),
		"hash":        hash,
		"error":       err.Error(),
		"unavailable": errors.Is(err, ErrUnavailable),
	})
}
