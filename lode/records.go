package lode

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pithecene-io/rulelens/metrics"
	"github.com/pithecene-io/rulelens/trace"
)

// Record kinds, stored in the record_kind field and partition.
const (
	RecordKindRun  = "run"
	RecordKindStep = "step"
)

const dayFormat = "2006-01-02"

// runRecord is the per-run summary row.
type runRecord struct {
	RecordKind    string            `json:"record_kind"`
	FormatVersion string            `json:"format_version"`
	RunID         string            `json:"run_id"`
	Mode          string            `json:"mode"`
	Day           string            `json:"day"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       time.Time         `json:"ended_at"`
	DurationMs    int64             `json:"duration_ms"`
	StepCount     int               `json:"step_count"`
	CacheHit      bool              `json:"cache_hit"`
	FinalOutput   string            `json:"final_output"`
	Metrics       *metrics.Snapshot `json:"metrics,omitempty"`
}

// stepRecord is one trace entry. Seq restores entry order on read.
type stepRecord struct {
	RecordKind string         `json:"record_kind"`
	RunID      string         `json:"run_id"`
	Mode       string         `json:"mode"`
	Day        string         `json:"day"`
	Seq        int            `json:"seq"`
	Name       string         `json:"name"`
	Ts         time.Time      `json:"ts"`
	CacheHit   *bool          `json:"cache_hit"`
	Data       map[string]any `json:"data,omitempty"`
}

// toRecords flattens doc into dataset rows: one run record followed by one
// step record per entry. Rows are maps so the Hive layout can read the
// partition fields.
func toRecords(doc *trace.Document) ([]any, error) {
	day := doc.StartedAt.UTC().Format(dayFormat)
	run := runRecord{
		RecordKind:    RecordKindRun,
		FormatVersion: doc.FormatVersion,
		RunID:         doc.RunID,
		Mode:          doc.Mode,
		Day:           day,
		StartedAt:     doc.StartedAt,
		EndedAt:       doc.EndedAt,
		DurationMs:    doc.Duration().Milliseconds(),
		StepCount:     len(doc.Steps),
		CacheHit:      doc.CacheHit,
		FinalOutput:   doc.FinalOutput,
		Metrics:       doc.Metrics,
	}

	records := make([]any, 0, len(doc.Steps)+1)
	m, err := toMap(run)
	if err != nil {
		return nil, err
	}
	records = append(records, m)

	for i, e := range doc.Steps {
		m, err := toMap(stepRecord{
			RecordKind: RecordKindStep,
			RunID:      doc.RunID,
			Mode:       doc.Mode,
			Day:        day,
			Seq:        i,
			Name:       e.Name,
			Ts:         e.Ts,
			CacheHit:   e.CacheHit,
			Data:       e.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, e.Name, err)
		}
		records = append(records, m)
	}
	return records, nil
}

// fromRecords rebuilds the document of runID from decoded rows. It returns
// false when no run record for runID is present.
func fromRecords(rows []any, runID string) (*trace.Document, bool, error) {
	var (
		doc   *trace.Document
		steps []stepRecord
	)
	for _, row := range rows {
		m, ok := row.(map[string]any)
		if !ok || m["run_id"] != runID {
			continue
		}
		switch m["record_kind"] {
		case RecordKindRun:
			var r runRecord
			if err := fromMap(m, &r); err != nil {
				return nil, false, err
			}
			doc = &trace.Document{
				FormatVersion: r.FormatVersion,
				RunID:         r.RunID,
				Mode:          r.Mode,
				StartedAt:     r.StartedAt,
				EndedAt:       r.EndedAt,
				CacheHit:      r.CacheHit,
				FinalOutput:   r.FinalOutput,
				Metrics:       r.Metrics,
			}
		case RecordKindStep:
			var s stepRecord
			if err := fromMap(m, &s); err != nil {
				return nil, false, err
			}
			steps = append(steps, s)
		}
	}
	if doc == nil {
		return nil, false, nil
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Seq < steps[j].Seq })
	doc.Steps = make([]trace.Entry, len(steps))
	for i, s := range steps {
		doc.Steps[i] = trace.Entry{Name: s.Name, Ts: s.Ts, CacheHit: s.CacheHit, Data: s.Data}
	}
	return doc, true, nil
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any, v any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
