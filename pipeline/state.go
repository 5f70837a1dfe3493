package pipeline

import (
	"slices"

	"github.com/pithecene-io/rulelens/types"
)

// RunState is the working memory of one run. Handlers receive it by value
// and return the updated value; slices are never mutated in place.
type RunState struct {
	// Inputs are the raw rule texts, in request order.
	Inputs []string `json:"-"`
	// Extractions are the parsed rules, one per consumed input.
	Extractions []types.Extraction `json:"extractions"`
	// RuleHash is the hash of the most recently parsed input.
	RuleHash     string            `json:"rule_hash,omitempty"`
	StaticIssues []string          `json:"static_issues,omitempty"`
	Context      string            `json:"context,omitempty"`
	Output       string            `json:"output"`
	Verdict      *types.Verdict    `json:"verdict,omitempty"`
	Reflection   *types.Reflection `json:"reflection,omitempty"`
	Tests        []types.TestCase  `json:"tests,omitempty"`
}

// Latest returns the most recent extraction.
func (s RunState) Latest() (types.Extraction, bool) {
	if len(s.Extractions) == 0 {
		return types.Extraction{}, false
	}
	return s.Extractions[len(s.Extractions)-1], true
}

// withExtraction returns s with ex appended.
func (s RunState) withExtraction(ex types.Extraction, hash string) RunState {
	s.Extractions = append(slices.Clip(s.Extractions), ex)
	s.RuleHash = hash
	return s
}

// Action tells the executor what to do after a step.
type Action int

const (
	// Continue proceeds to the next planned step.
	Continue Action = iota
	// ShortCircuit reports a terminal output. The run ends if the
	// TerminationPolicy lists the step.
	ShortCircuit
)

func (a Action) String() string {
	if a == ShortCircuit {
		return "short_circuit"
	}
	return "continue"
}

// StepResult is what a handler reports besides the new state.
type StepResult struct {
	Action Action
	// CacheHit is nil when no cache was consulted.
	CacheHit *bool
}

func cont() StepResult { return StepResult{Action: Continue} }

func cached(hit bool, action Action) StepResult {
	return StepResult{Action: action, CacheHit: &hit}
}
