package trace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultDir is where FileSink writes when no directory is configured.
const DefaultDir = "runs"

// Sink persists finished trace documents.
type Sink interface {
	Write(ctx context.Context, doc *Document) error
}

// FileSink writes each document to <Dir>/run_<run_id>.json.
type FileSink struct {
	Dir string
}

// NewFileSink creates a FileSink. An empty dir uses DefaultDir.
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileSink{Dir: dir}
}

// Path returns the file a document for runID is written to.
func (s *FileSink) Path(runID string) string {
	return filepath.Join(s.Dir, "run_"+runID+".json")
}

// Write writes doc atomically (temp file + rename).
func (s *FileSink) Write(_ context.Context, doc *Document) error {
	if doc.RunID == "" {
		return errors.New("trace: document has no run_id")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create trace dir %s: %w", s.Dir, err)
	}
	data, err := Marshal(doc)
	if err != nil {
		return err
	}

	path := s.Path(doc.RunID)
	tmp, err := os.CreateTemp(s.Dir, ".run_*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp trace file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write trace %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close trace %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move trace into place at %s: %w", path, err)
	}
	return nil
}

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

// Write writes doc to each sink in order; a failing sink does not stop the others.
func (m MultiSink) Write(ctx context.Context, doc *Document) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink discards documents.
type NopSink struct{}

// Write does nothing.
func (NopSink) Write(context.Context, *Document) error { return nil }

var (
	_ Sink = (*FileSink)(nil)
	_ Sink = MultiSink(nil)
	_ Sink = NopSink{}
)
