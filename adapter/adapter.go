// Package adapter publishes run completion notifications to downstream
// systems. Delivery is best effort: a failed publish never fails the run.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/rulelens/trace"
	"github.com/pithecene-io/rulelens/types"
)

// EventTypeRunCompleted is the only event type published.
const EventTypeRunCompleted = "run_completed"

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	FormatVersion string `json:"format_version"`
	EventType     string `json:"event_type"`
	RunID         string `json:"run_id"`
	Mode          string `json:"mode"`
	Outcome       string `json:"outcome"`
	CacheHit      bool   `json:"cache_hit"`
	StepCount     int    `json:"step_count"`
	// TraceLocation is where the trace was persisted, if anywhere.
	TraceLocation string `json:"trace_location,omitempty"`
	Timestamp     string `json:"timestamp"`
	DurationMs    int64  `json:"duration_ms"`
	Error         string `json:"error,omitempty"`
}

// Adapter publishes run completion events.
type Adapter interface {
	// Publish sends one event. It must honor ctx cancellation.
	Publish(ctx context.Context, event *RunCompletedEvent) error
	Close() error
}

// EventFromTrace builds the completion event for a finished trace. A run
// whose trace holds an "error" entry is reported as run_error.
func EventFromTrace(doc *trace.Document, location string) *RunCompletedEvent {
	ev := &RunCompletedEvent{
		FormatVersion: doc.FormatVersion,
		EventType:     EventTypeRunCompleted,
		RunID:         doc.RunID,
		Mode:          doc.Mode,
		Outcome:       string(types.OutcomeSuccess),
		CacheHit:      doc.CacheHit,
		StepCount:     len(doc.Steps),
		TraceLocation: location,
		Timestamp:     doc.EndedAt.UTC().Format(time.RFC3339),
		DurationMs:    doc.Duration().Milliseconds(),
	}
	if e, ok := doc.Find("error"); ok {
		ev.Outcome = string(types.OutcomeRunError)
		ev.Error, _ = e.Data["error"].(string)
	}
	return ev
}
