package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when the request does not fit its mode.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExtractionMissing marks a step that needed an extraction and had
	// none. It is recorded in fallback trace entries, never returned.
	ErrExtractionMissing = errors.New("extraction missing")
	// ErrNoCollaborator is returned when a planned step has no collaborator.
	ErrNoCollaborator = errors.New("no collaborator configured")
)

// CollaboratorError is returned when a collaborator call fails and aborts
// the run.
type CollaboratorError struct {
	Step StepName
	Err  error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// IsCollaboratorError reports whether err is a CollaboratorError.
func IsCollaboratorError(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}

// PlanningError is returned when no plan could be produced.
type PlanningError struct {
	Mode string
	Err  error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning mode %s: %v", e.Mode, e.Err)
}

func (e *PlanningError) Unwrap() error {
	return e.Err
}

// UnknownStepError is returned for a step name outside the vocabulary
// where one is required.
type UnknownStepError struct {
	Name string
}

func (e *UnknownStepError) Error() string {
	return fmt.Sprintf("unknown step %q", e.Name)
}
