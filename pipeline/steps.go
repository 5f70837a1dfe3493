// Package pipeline runs a planned sequence of steps over one or two MVEL
// rules and produces a single text output.
//
// Steps execute strictly in order against an explicit RunState value that
// each handler receives and returns. Handlers report whether they produced
// a terminal output; the TerminationPolicy decides whether that ends the run.
package pipeline

import (
	"context"
	"slices"
)

// StepName names one step of a plan.
type StepName string

// Step vocabulary.
const (
	StepParse           StepName = "parse"
	StepStaticChecks    StepName = "static_checks"
	StepRetrieveContext StepName = "retrieve_context"
	StepExplain         StepName = "explain"
	StepVerify          StepName = "verify"
	StepRewrite         StepName = "rewrite"
	StepReflect         StepName = "reflect"
	StepGenerateTests   StepName = "generate_tests"
	StepDiff            StepName = "diff"
	// StepUnknown stands in for any name outside the vocabulary; it is
	// traced and ignored.
	StepUnknown StepName = "unknown"
)

// Vocabulary lists every executable step.
var Vocabulary = []StepName{
	StepParse, StepStaticChecks, StepRetrieveContext, StepExplain, StepVerify,
	StepRewrite, StepReflect, StepGenerateTests, StepDiff,
}

// ParseStepName maps s to a step, or StepUnknown.
func ParseStepName(s string) StepName {
	name := StepName(s)
	if slices.Contains(Vocabulary, name) {
		return name
	}
	return StepUnknown
}

// Run modes.
const (
	ModeAgentic = "agentic"
	ModeExplain = "explain"
	ModeVerify  = "verify"
	ModeTests   = "tests"
	ModeDiff    = "diff"
	ModeReflect = "reflect"
)

// Modes lists the accepted run modes.
var Modes = []string{ModeExplain, ModeVerify, ModeTests, ModeDiff, ModeAgentic, ModeReflect}

// ValidMode reports whether mode is accepted.
func ValidMode(mode string) bool {
	return slices.Contains(Modes, mode)
}

// ModePlanner returns a fixed plan per mode.
type ModePlanner struct{}

// Plan implements Planner.
func (ModePlanner) Plan(_ context.Context, mode string) ([]StepName, error) {
	return PlanFor(mode), nil
}

// PlanFor returns the fixed plan for mode. Unlisted modes get the full
// explain-and-verify plan.
func PlanFor(mode string) []StepName {
	switch mode {
	case ModeDiff:
		return []StepName{StepParse, StepParse, StepDiff}
	case ModeTests:
		return []StepName{StepParse, StepGenerateTests}
	case ModeVerify:
		return []StepName{StepParse, StepStaticChecks, StepRetrieveContext, StepReflect, StepVerify, StepRewrite}
	case ModeExplain:
		return []StepName{StepParse, StepRetrieveContext, StepExplain, StepReflect, StepRewrite}
	default:
		return []StepName{StepParse, StepStaticChecks, StepRetrieveContext, StepExplain, StepVerify, StepRewrite}
	}
}

// TerminationPolicy is the set of steps whose output ends the run.
type TerminationPolicy map[StepName]bool

// DefaultTermination ends the run when explain or rewrite produce output.
func DefaultTermination() TerminationPolicy {
	return TerminationPolicy{StepExplain: true, StepRewrite: true}
}

// NewTermination builds a policy from step names. Unknown names are rejected.
func NewTermination(names []string) (TerminationPolicy, error) {
	p := TerminationPolicy{}
	for _, n := range names {
		step := ParseStepName(n)
		if step == StepUnknown {
			return nil, &UnknownStepError{Name: n}
		}
		p[step] = true
	}
	return p, nil
}

// Terminal reports whether step ends the run when it produces output.
func (p TerminationPolicy) Terminal(step StepName) bool {
	return p[step]
}
