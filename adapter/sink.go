package adapter

import (
	"context"
	"fmt"

	"github.com/pithecene-io/rulelens/log"
	"github.com/pithecene-io/rulelens/trace"
)

// Sink publishes a completion event for every trace it is handed. Combine it
// with a persisting sink through trace.MultiSink.
type Sink struct {
	adapter  Adapter
	location func(runID string) string
	logger   *log.Logger
}

// NewSink wraps a. location, if set, names where the trace of a run was
// persisted and is copied into the event.
func NewSink(a Adapter, location func(runID string) string, logger *log.Logger) *Sink {
	if logger == nil {
		logger = log.Nop()
	}
	return &Sink{adapter: a, location: location, logger: logger}
}

// Write publishes the completion event for doc.
func (s *Sink) Write(ctx context.Context, doc *trace.Document) error {
	var loc string
	if s.location != nil {
		loc = s.location(doc.RunID)
	}
	ev := EventFromTrace(doc, loc)
	if err := s.adapter.Publish(ctx, ev); err != nil {
		s.logger.Warn("run notification failed", map[string]any{
			"run_id": doc.RunID,
			"error":  err.Error(),
		})
		return fmt.Errorf("notify run %s: %w", doc.RunID, err)
	}
	s.logger.Debug("run notification published", map[string]any{
		"run_id":  doc.RunID,
		"outcome": ev.Outcome,
	})
	return nil
}

// Close closes the adapter.
func (s *Sink) Close() error { return s.adapter.Close() }

var _ trace.Sink = (*Sink)(nil)
