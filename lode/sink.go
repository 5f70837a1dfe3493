package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/rulelens/trace"
)

// TraceSink writes finished trace documents to a Lode dataset. Each
// document becomes one snapshot.
type TraceSink struct {
	ds      lode.Dataset
	dataset string
}

// NewTraceSink wraps an opened dataset.
func NewTraceSink(ds lode.Dataset, dataset string) *TraceSink {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return &TraceSink{ds: ds, dataset: dataset}
}

// OpenTraceSink opens the dataset described by opts and wraps it.
func OpenTraceSink(ctx context.Context, opts Options) (*TraceSink, error) {
	ds, err := Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewTraceSink(ds, opts.Dataset), nil
}

// Dataset returns the underlying dataset, for reading back.
func (s *TraceSink) Dataset() lode.Dataset { return s.ds }

// Write persists doc.
func (s *TraceSink) Write(ctx context.Context, doc *trace.Document) error {
	if doc == nil || doc.RunID == "" {
		return errors.New("trace: document has no run_id")
	}
	records, err := toRecords(doc)
	if err != nil {
		return fmt.Errorf("failed to encode trace %s: %w", doc.RunID, err)
	}
	if _, err := s.ds.Write(ctx, records, lode.Metadata{}); err != nil {
		return wrapWrite(err, s.dataset+"/"+doc.RunID)
	}
	return nil
}

var _ trace.Sink = (*TraceSink)(nil)
