// Package trace records what a run did, step by step, and persists the
// result as a single JSON document.
//
// A Recorder is append-only. Reason entries are ordinary entries named
// "<step>_reason" with {summary, evidence} data; Reasons projects them for
// display. After Finish the recorder is sealed and further entries are dropped.
package trace

import (
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/rulelens/metrics"
	"github.com/pithecene-io/rulelens/types"
)

const reasonSuffix = "_reason"

// Entry is one trace record.
type Entry struct {
	Name string    `json:"name"`
	Ts   time.Time `json:"ts"`
	// CacheHit is nil for entries where caching does not apply (reasons).
	CacheHit *bool          `json:"cache_hit"`
	Data     map[string]any `json:"data"`
}

// Reason is the display projection of a "<step>_reason" entry.
type Reason struct {
	Step     string         `json:"step"`
	Summary  string         `json:"summary"`
	Evidence map[string]any `json:"evidence"`
	Ts       time.Time      `json:"ts"`
}

// Recorder accumulates entries for one run. Safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	runID     string
	mode      string
	startedAt time.Time
	endedAt   time.Time
	entries   []Entry
	cacheHit  bool
	output    string
	sealed    bool
	metrics   *metrics.Snapshot
	now       func() time.Time
}

// NewRecorder starts a trace for run.
func NewRecorder(meta types.RunMeta) *Recorder {
	return NewRecorderWithClock(meta, time.Now)
}

// NewRecorderWithClock starts a trace using now for timestamps.
func NewRecorderWithClock(meta types.RunMeta, now func() time.Time) *Recorder {
	return &Recorder{
		runID:     meta.RunID,
		mode:      meta.Mode,
		startedAt: now(),
		now:       now,
	}
}

// RunID returns the run this recorder belongs to.
func (r *Recorder) RunID() string {
	return r.runID
}

// Log appends an entry for which caching did not apply.
func (r *Recorder) Log(name string, data map[string]any) {
	hit := false
	r.append(name, &hit, data)
}

// LogCached appends an entry recording whether the step was served from cache.
// Any hit marks the whole document as a cache hit.
func (r *Recorder) LogCached(name string, hit bool, data map[string]any) {
	r.append(name, &hit, data)
}

// Reason appends a "<step>_reason" entry.
func (r *Recorder) Reason(step, summary string, evidence map[string]any) {
	if evidence == nil {
		evidence = map[string]any{}
	}
	r.append(step+reasonSuffix, nil, map[string]any{
		"summary":  summary,
		"evidence": evidence,
	})
}

func (r *Recorder) append(name string, hit *bool, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	if hit != nil && *hit {
		r.cacheHit = true
	}
	r.entries = append(r.entries, Entry{
		Name:     name,
		Ts:       r.now(),
		CacheHit: hit,
		Data:     maps.Clone(data),
	})
}

// Entries returns a copy of the entries recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Reasons returns the reason entries in order.
func (r *Recorder) Reasons() []Reason {
	return Reasons(r.Entries())
}

// Reasons projects reason entries out of entries.
func Reasons(entries []Entry) []Reason {
	var out []Reason
	for _, e := range entries {
		if !strings.HasSuffix(e.Name, reasonSuffix) {
			continue
		}
		summary, _ := e.Data["summary"].(string)
		evidence, _ := e.Data["evidence"].(map[string]any)
		if evidence == nil {
			evidence = map[string]any{}
		}
		out = append(out, Reason{
			Step:     strings.TrimSuffix(e.Name, reasonSuffix),
			Summary:  summary,
			Evidence: evidence,
			Ts:       e.Ts,
		})
	}
	return out
}

// AttachMetrics records a metrics snapshot in the document. Ignored once sealed.
func (r *Recorder) AttachMetrics(s metrics.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.metrics = &s
}

// Finish records the final output and seals the recorder.
// Only the first call has an effect.
func (r *Recorder) Finish(output string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return
	}
	r.output = output
	r.endedAt = r.now()
	r.sealed = true
}

// Sealed reports whether Finish has been called.
func (r *Recorder) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Document returns the trace as a document. EndedAt is zero until Finish.
func (r *Recorder) Document() *Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Document{
		FormatVersion: types.TraceFormatVersion,
		RunID:         r.runID,
		Mode:          r.mode,
		StartedAt:     r.startedAt,
		EndedAt:       r.endedAt,
		Steps:         append([]Entry(nil), r.entries...),
		CacheHit:      r.cacheHit,
		FinalOutput:   r.output,
		Metrics:       r.metrics,
	}
}
