package pipeline

import (
	"context"

	"github.com/pithecene-io/rulelens/types"
)

// Planner chooses the steps for a mode.
type Planner interface {
	Plan(ctx context.Context, mode string) ([]StepName, error)
}

// RuleParser turns raw MVEL into an extraction.
type RuleParser interface {
	Parse(ctx context.Context, raw string) (types.Extraction, error)
}

// StaticChecker lists structural issues of an extraction.
type StaticChecker interface {
	Check(ctx context.Context, ex types.Extraction) ([]string, error)
}

// ContextRetriever returns knowledge-base text relevant to query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query, kbDir string) (string, error)
}

// Explainer renders an extraction as English.
type Explainer interface {
	Explain(ctx context.Context, ex types.Extraction, kbContext string) (string, error)
}

// Verifier checks an explanation against its extraction.
type Verifier interface {
	Verify(ctx context.Context, ex types.Extraction, english string) (types.Verdict, error)
}

// Rewriter corrects an explanation.
type Rewriter interface {
	Rewrite(ctx context.Context, ex types.Extraction, english string, missing []string) (string, error)
}

// Reflector reviews an explanation for long-term memory.
type Reflector interface {
	Reflect(ctx context.Context, ex types.Extraction, english string) (types.Reflection, error)
}

// TestGenerator produces test cases for an extraction.
type TestGenerator interface {
	GenerateTests(ctx context.Context, ex types.Extraction) ([]types.TestCase, error)
}

// DiffExplainer explains how a rule changed.
type DiffExplainer interface {
	Diff(ctx context.Context, old, updated types.Extraction) (string, error)
}

// MemoryStore persists reflection findings.
type MemoryStore interface {
	Append(ctx context.Context, item types.MemoryItem) error
}

// Model bundles the model-backed collaborators.
type Model interface {
	Explainer
	Verifier
	Rewriter
	Reflector
	TestGenerator
	DiffExplainer
}
