package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/rulelens/metrics"
	"github.com/pithecene-io/rulelens/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID      string              `json:"run_id"`
	Mode       string              `json:"mode"`
	Outcome    types.OutcomeStatus `json:"outcome"`
	Message    string              `json:"message,omitempty"`
	ExitCode   int                 `json:"exit_code"`
	DurationMs int64               `json:"duration_ms"`
	Steps      []string            `json:"steps"`
	CacheHit   bool                `json:"cache_hit"`
	Output     string              `json:"output"`

	Verdict    *types.Verdict    `json:"verdict,omitempty"`
	Reflection *types.Reflection `json:"reflection,omitempty"`
	Metrics    *metrics.Snapshot `json:"metrics"`
}

// BuildRunReport composes a RunReport from a Result and the error returned
// with it. exitCode is the process exit code that will be returned.
func BuildRunReport(result *Result, runErr error, exitCode int) *RunReport {
	snap := result.Metrics
	report := &RunReport{
		RunID:      result.RunID,
		Mode:       result.Mode,
		Outcome:    result.Status,
		ExitCode:   exitCode,
		DurationMs: result.Duration.Milliseconds(),
		Steps:      stepStrings(result.Steps),
		Output:     result.Output,
		Verdict:    result.State.Verdict,
		Reflection: result.State.Reflection,
		Metrics:    &snap,
	}
	if result.Trace != nil {
		report.CacheHit = result.Trace.CacheHit
	}
	if runErr != nil {
		report.Message = runErr.Error()
	}
	return report
}

// WriteRunReport writes the report as JSON to path. "-" writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeRunReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
