package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/pithecene-io/rulelens/memory"
	"github.com/pithecene-io/rulelens/types"
)

// Agent runs the model-backed collaborators against one llms.Model.
// It is safe for concurrent use when the model is.
type Agent struct {
	model       llms.Model
	temperature float64
	profile     memory.Profile
}

// Option configures an Agent.
type Option func(*Agent)

// WithTemperature sets the sampling temperature (default 0).
func WithTemperature(t float64) Option {
	return func(a *Agent) { a.temperature = t }
}

// WithProfile sets the reader profile used by explain and rewrite.
func WithProfile(p memory.Profile) Option {
	return func(a *Agent) { a.profile = p }
}

// NewAgent creates an Agent over model.
func NewAgent(model llms.Model, opts ...Option) *Agent {
	a := &Agent{model: model, profile: memory.DefaultProfile()}
	for _, opt := range opts {
		opt(a)
	}
	if a.profile.Tone == "" {
		a.profile.Tone = memory.DefaultProfile().Tone
	}
	return a
}

// Explain renders ex as stakeholder English, using kbContext for terminology.
func (a *Agent) Explain(ctx context.Context, ex types.Extraction, kbContext string) (string, error) {
	out, err := generate(ctx, a.model, a.temperature, explainPrompt(a.profile, ex, kbContext))
	if err != nil {
		return "", fmt.Errorf("explain: %w", err)
	}
	return out, nil
}

type verdictReply struct {
	OK            *bool `json:"ok"`
	Missing       []any `json:"missing"`
	RewriteNeeded *bool `json:"rewrite_needed"`
}

// Verify checks english against ex. Absent fields default to ok=true,
// missing=[] and rewrite_needed=!ok.
func (a *Agent) Verify(ctx context.Context, ex types.Extraction, english string) (types.Verdict, error) {
	raw, err := generate(ctx, a.model, a.temperature, verifyPrompt(ex, english))
	if err != nil {
		return types.Verdict{}, fmt.Errorf("verify: %w", err)
	}
	var reply verdictReply
	recovered, err := decodeReply(raw, '{', '}', &reply)
	if err != nil {
		return types.Verdict{}, fmt.Errorf("verify: %w", err)
	}

	v := types.Verdict{OK: true, Missing: stringify(reply.Missing), Recovered: recovered}
	if reply.OK != nil {
		v.OK = *reply.OK
	}
	v.RewriteNeeded = !v.OK
	if reply.RewriteNeeded != nil {
		v.RewriteNeeded = *reply.RewriteNeeded
	}
	return v, nil
}

// Rewrite produces a corrected explanation covering missing.
func (a *Agent) Rewrite(ctx context.Context, ex types.Extraction, english string, missing []string) (string, error) {
	out, err := generate(ctx, a.model, a.temperature, rewritePrompt(a.profile, ex, english, missing))
	if err != nil {
		return "", fmt.Errorf("rewrite: %w", err)
	}
	return out, nil
}

type reflectionReply struct {
	OK     bool  `json:"ok"`
	Issues []any `json:"issues"`
}

// Reflect reviews english against ex. An absent ok is treated as false.
func (a *Agent) Reflect(ctx context.Context, ex types.Extraction, english string) (types.Reflection, error) {
	raw, err := generate(ctx, a.model, a.temperature, reflectPrompt(ex, english))
	if err != nil {
		return types.Reflection{}, fmt.Errorf("reflect: %w", err)
	}
	var reply reflectionReply
	recovered, err := decodeReply(raw, '{', '}', &reply)
	if err != nil {
		return types.Reflection{}, fmt.Errorf("reflect: %w", err)
	}
	return types.Reflection{OK: reply.OK, Issues: stringify(reply.Issues), Recovered: recovered}, nil
}

// GenerateTests asks for one test case per branch.
func (a *Agent) GenerateTests(ctx context.Context, ex types.Extraction) ([]types.TestCase, error) {
	raw, err := generate(ctx, a.model, a.temperature, testsPrompt(ex))
	if err != nil {
		return nil, fmt.Errorf("generate_tests: %w", err)
	}
	var cases []types.TestCase
	if _, err := decodeReply(raw, '[', ']', &cases); err != nil {
		return nil, fmt.Errorf("generate_tests: %w", err)
	}
	for i := range cases {
		if cases[i].Input == nil {
			cases[i].Input = map[string]any{}
		}
		if cases[i].Expected == nil {
			cases[i].Expected = map[string]any{}
		}
	}
	return cases, nil
}

// Diff explains how behavior changed from old to updated.
func (a *Agent) Diff(ctx context.Context, old, updated types.Extraction) (string, error) {
	out, err := generate(ctx, a.model, a.temperature, diffPrompt(old, updated))
	if err != nil {
		return "", fmt.Errorf("diff: %w", err)
	}
	return out, nil
}
