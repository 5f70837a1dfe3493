// Package metrics provides run metrics collection.
//
// A Collector accumulates counters across one or more runs (a batch shares
// one collector). It is a leaf package with no internal dependencies; cache
// kinds and step names are plain strings.
package metrics

import (
	"maps"
	"sync"
)

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64 `json:"runs_started"`
	RunsCompleted int64 `json:"runs_completed"`
	RunsFailed    int64 `json:"runs_failed"`

	// Steps
	StepsExecuted int64            `json:"steps_executed"`
	StepsByName   map[string]int64 `json:"steps_by_name,omitempty"`
	ShortCircuits int64            `json:"short_circuits"`
	Fallbacks     int64            `json:"fallbacks"`

	// Cache, keyed by cache kind (parse, explain, context)
	CacheHits        map[string]int64 `json:"cache_hits,omitempty"`
	CacheMisses      map[string]int64 `json:"cache_misses,omitempty"`
	CacheErrors      map[string]int64 `json:"cache_errors,omitempty"`
	CacheWrites      map[string]int64 `json:"cache_writes,omitempty"`
	CacheCoalesced   int64            `json:"cache_coalesced"`
	CacheWriteErrors int64            `json:"cache_write_errors"`

	// Collaborators, keyed by step name
	CollaboratorCalls    map[string]int64 `json:"collaborator_calls,omitempty"`
	CollaboratorFailures map[string]int64 `json:"collaborator_failures,omitempty"`
	JSONRecovered        int64            `json:"json_recovered"`

	// Trace persistence
	TraceWriteSuccess int64 `json:"trace_write_success"`
	TraceWriteFailure int64 `json:"trace_write_failure"`

	// Dimensions (informational, set at construction)
	CacheBackend string `json:"cache_backend,omitempty"`
	Provider     string `json:"provider,omitempty"`
	TraceBackend string `json:"trace_backend,omitempty"`
}

// CacheHitRate returns hits / (hits + misses) across all kinds, or 0.
func (s Snapshot) CacheHitRate() float64 {
	var hits, misses int64
	for _, v := range s.CacheHits {
		hits += v
	}
	for _, v := range s.CacheMisses {
		misses += v
	}
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// Collector accumulates metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	stepsExecuted int64
	stepsByName   map[string]int64
	shortCircuits int64
	fallbacks     int64

	cacheHits        map[string]int64
	cacheMisses      map[string]int64
	cacheErrors      map[string]int64
	cacheWrites      map[string]int64
	cacheCoalesced   int64
	cacheWriteErrors int64

	collaboratorCalls    map[string]int64
	collaboratorFailures map[string]int64
	jsonRecovered        int64

	traceWriteSuccess int64
	traceWriteFailure int64

	cacheBackend string
	provider     string
	traceBackend string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(cacheBackend, provider, traceBackend string) *Collector {
	return &Collector{
		stepsByName:          make(map[string]int64),
		cacheHits:            make(map[string]int64),
		cacheMisses:          make(map[string]int64),
		cacheErrors:          make(map[string]int64),
		cacheWrites:          make(map[string]int64),
		collaboratorCalls:    make(map[string]int64),
		collaboratorFailures: make(map[string]int64),
		cacheBackend:         cacheBackend,
		provider:             provider,
		traceBackend:         traceBackend,
	}
}

// inc and incKey assume a non-nil receiver; callers check first.
func (c *Collector) inc(p *int64) {
	c.mu.Lock()
	*p++
	c.mu.Unlock()
}

func (c *Collector) incKey(m map[string]int64, key string) {
	c.mu.Lock()
	m[key]++
	c.mu.Unlock()
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.inc(&c.runsStarted)
}

// IncRunCompleted records a run that produced a final output.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.runsCompleted)
}

// IncRunFailed records a run ended by a planner or collaborator error.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.inc(&c.runsFailed)
}

// --- Steps ---

// IncStep records one executed step.
func (c *Collector) IncStep(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stepsExecuted++
	c.stepsByName[name]++
	c.mu.Unlock()
}

// IncShortCircuit records a step that ended the run early.
func (c *Collector) IncShortCircuit() {
	if c == nil {
		return
	}
	c.inc(&c.shortCircuits)
}

// IncFallback records a step that produced its fixed fallback instead of calling a collaborator.
func (c *Collector) IncFallback() {
	if c == nil {
		return
	}
	c.inc(&c.fallbacks)
}

// --- Cache ---

// IncCacheHit records a cache hit for kind.
func (c *Collector) IncCacheHit(kind string) {
	if c == nil {
		return
	}
	c.incKey(c.cacheHits, kind)
}

// IncCacheMiss records a cache miss for kind (including degraded lookups).
func (c *Collector) IncCacheMiss(kind string) {
	if c == nil {
		return
	}
	c.incKey(c.cacheMisses, kind)
}

// IncCacheError records a cache failure that was degraded to a miss.
func (c *Collector) IncCacheError(kind string) {
	if c == nil {
		return
	}
	c.incKey(c.cacheErrors, kind)
}

// IncCacheWrite records a successful cache write for kind.
func (c *Collector) IncCacheWrite(kind string) {
	if c == nil {
		return
	}
	c.incKey(c.cacheWrites, kind)
}

// IncCacheWriteError records a failed cache write.
func (c *Collector) IncCacheWriteError() {
	if c == nil {
		return
	}
	c.inc(&c.cacheWriteErrors)
}

// IncCacheCoalesced records a miss that was served by another in-flight computation.
func (c *Collector) IncCacheCoalesced() {
	if c == nil {
		return
	}
	c.inc(&c.cacheCoalesced)
}

// --- Collaborators ---

// IncCollaboratorCall records a collaborator invocation for step.
func (c *Collector) IncCollaboratorCall(step string) {
	if c == nil {
		return
	}
	c.incKey(c.collaboratorCalls, step)
}

// IncCollaboratorFailure records a failed collaborator invocation for step.
func (c *Collector) IncCollaboratorFailure(step string) {
	if c == nil {
		return
	}
	c.incKey(c.collaboratorFailures, step)
}

// IncJSONRecovered records a model reply that needed lenient JSON recovery.
func (c *Collector) IncJSONRecovered() {
	if c == nil {
		return
	}
	c.inc(&c.jsonRecovered)
}

// --- Trace persistence ---
// Counters are per document, not per entry.

// IncTraceWriteSuccess records a persisted trace document.
func (c *Collector) IncTraceWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.traceWriteSuccess)
}

// IncTraceWriteFailure records a trace document that could not be persisted.
func (c *Collector) IncTraceWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.traceWriteFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		StepsExecuted: c.stepsExecuted,
		StepsByName:   maps.Clone(c.stepsByName),
		ShortCircuits: c.shortCircuits,
		Fallbacks:     c.fallbacks,

		CacheHits:        maps.Clone(c.cacheHits),
		CacheMisses:      maps.Clone(c.cacheMisses),
		CacheErrors:      maps.Clone(c.cacheErrors),
		CacheWrites:      maps.Clone(c.cacheWrites),
		CacheCoalesced:   c.cacheCoalesced,
		CacheWriteErrors: c.cacheWriteErrors,

		CollaboratorCalls:    maps.Clone(c.collaboratorCalls),
		CollaboratorFailures: maps.Clone(c.collaboratorFailures),
		JSONRecovered:        c.jsonRecovered,

		TraceWriteSuccess: c.traceWriteSuccess,
		TraceWriteFailure: c.traceWriteFailure,

		CacheBackend: c.cacheBackend,
		Provider:     c.provider,
		TraceBackend: c.traceBackend,
	}
}
