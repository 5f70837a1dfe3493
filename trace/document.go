package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pithecene-io/rulelens/iox"
	"github.com/pithecene-io/rulelens/metrics"
)

// Document is the persisted form of one run's trace.
type Document struct {
	FormatVersion string            `json:"format_version"`
	RunID         string            `json:"run_id"`
	Mode          string            `json:"mode"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       time.Time         `json:"ended_at"`
	Steps         []Entry           `json:"steps"`
	CacheHit      bool              `json:"cache_hit"`
	FinalOutput   string            `json:"final_output"`
	Metrics       *metrics.Snapshot `json:"metrics,omitempty"`
}

// Duration returns EndedAt - StartedAt, or 0 for an unfinished document.
func (d *Document) Duration() time.Duration {
	if d.EndedAt.IsZero() {
		return 0
	}
	return d.EndedAt.Sub(d.StartedAt)
}

// Reasons returns the reason entries of the document.
func (d *Document) Reasons() []Reason {
	return Reasons(d.Steps)
}

// Find returns the first entry named name.
func (d *Document) Find(name string) (Entry, bool) {
	for _, e := range d.Steps {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Encode writes the document as indented JSON. Non-ASCII text is kept as is.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode trace %s: %w", doc.RunID, err)
	}
	return nil
}

// Marshal returns the indented JSON form of doc.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads one document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode trace: %w", err)
	}
	return &doc, nil
}

// ReadFile reads a document written by FileSink.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace %s: %w", path, err)
	}
	defer iox.DiscardClose(f)
	return Decode(f)
}
