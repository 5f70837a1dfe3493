package lode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/rulelens/trace"
)

// ErrTraceNotFound is returned when the dataset holds no trace for a run.
var ErrTraceNotFound = errors.New("trace not found")

// QueryTrace reads back the trace document of runID. When a run was
// written more than once the latest snapshot wins.
func QueryTrace(ctx context.Context, ds lode.Dataset, runID string) (*trace.Document, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrapRead(err, "snapshots")
	}

	// Latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHas(snap, "run_id", runID) {
			continue
		}
		rows, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapRead(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		doc, ok, err := fromRecords(rows, runID)
		if err != nil {
			return nil, wrapRead(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		if ok {
			return doc, nil
		}
	}
	return nil, ErrTraceNotFound
}

// RunSummary is the listing form of a stored run.
type RunSummary struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Mode       string    `json:"mode" yaml:"mode"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	DurationMs int64     `json:"duration_ms" yaml:"duration_ms"`
	Steps      int       `json:"steps" yaml:"steps"`
	CacheHit   bool      `json:"cache_hit" yaml:"cache_hit"`
}

// ListRuns returns stored runs newest first, optionally filtered by mode.
// limit <= 0 returns all.
func ListRuns(ctx context.Context, ds lode.Dataset, mode string, limit int) ([]RunSummary, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, wrapRead(err, "snapshots")
	}

	seen := make(map[string]bool)
	var out []RunSummary
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotHas(snap, "record_kind", RecordKindRun) || !snapshotHas(snap, "mode", mode) {
			continue
		}
		rows, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrapRead(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		for _, row := range rows {
			m, ok := row.(map[string]any)
			if !ok || m["record_kind"] != RecordKindRun {
				continue
			}
			var r runRecord
			if err := fromMap(m, &r); err != nil {
				return nil, wrapRead(err, fmt.Sprintf("snapshot/%s", snap.ID))
			}
			if seen[r.RunID] || (mode != "" && r.Mode != mode) {
				continue
			}
			seen[r.RunID] = true
			out = append(out, RunSummary{
				RunID:      r.RunID,
				Mode:       r.Mode,
				StartedAt:  r.StartedAt,
				DurationMs: r.DurationMs,
				Steps:      r.StepCount,
				CacheHit:   r.CacheHit,
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
