package types

import "errors"

// RunMeta identifies a single pipeline run.
type RunMeta struct {
	// RunID is the canonical run identifier. Must be globally unique.
	RunID string
	// Mode is the requested run mode (explain, verify, tests, diff, agentic, reflect).
	Mode string
}

// Validate checks that run metadata is usable.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if r.Mode == "" {
		return errors.New("mode must be non-empty")
	}
	return nil
}

// OutcomeStatus is the final status of a run.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the run produced an output.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeRunError indicates a collaborator or planner failure ended the run.
	OutcomeRunError OutcomeStatus = "run_error"
	// OutcomeInvalidInput indicates the request was rejected before any step ran.
	OutcomeInvalidInput OutcomeStatus = "invalid_input"
)
