package pipeline

import (
	"slices"
	"testing"
)

func TestPlanFor(t *testing.T) {
	tests := []struct {
		mode string
		want []StepName
	}{
		{ModeDiff, []StepName{StepParse, StepParse, StepDiff}},
		{ModeTests, []StepName{StepParse, StepGenerateTests}},
		{ModeVerify, []StepName{StepParse, StepStaticChecks, StepRetrieveContext, StepReflect, StepVerify, StepRewrite}},
		{ModeExplain, []StepName{StepParse, StepRetrieveContext, StepExplain, StepReflect, StepRewrite}},
		{ModeAgentic, []StepName{StepParse, StepStaticChecks, StepRetrieveContext, StepExplain, StepVerify, StepRewrite}},
		{ModeReflect, []StepName{StepParse, StepStaticChecks, StepRetrieveContext, StepExplain, StepVerify, StepRewrite}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := ModePlanner{}.Plan(t.Context(), tt.mode)
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Plan(%s) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestParseStepName(t *testing.T) {
	for _, s := range Vocabulary {
		if got := ParseStepName(string(s)); got != s {
			t.Errorf("ParseStepName(%q) = %q", s, got)
		}
	}
	for _, s := range []string{"", "summarize", "Parse", "unknown"} {
		if got := ParseStepName(s); got != StepUnknown {
			t.Errorf("ParseStepName(%q) = %q, want unknown", s, got)
		}
	}
}

func TestNewTermination(t *testing.T) {
	p, err := NewTermination([]string{"rewrite"})
	if err != nil {
		t.Fatalf("NewTermination failed: %v", err)
	}
	if !p.Terminal(StepRewrite) || p.Terminal(StepExplain) {
		t.Errorf("policy = %v", p)
	}

	if _, err := NewTermination([]string{"explain", "bogus"}); err == nil {
		t.Error("expected error for unknown step")
	}

	d := DefaultTermination()
	if !d.Terminal(StepExplain) || !d.Terminal(StepRewrite) || d.Terminal(StepDiff) {
		t.Errorf("default policy = %v", d)
	}
}

func TestRunState_WithExtractionDoesNotAlias(t *testing.T) {
	base := RunState{}.withExtraction(extractionFor("a"), "h1")
	left := base.withExtraction(extractionFor("b"), "h2")
	right := base.withExtraction(extractionFor("c"), "h3")

	if left.Extractions[1].Outputs[0] != "b" || right.Extractions[1].Outputs[0] != "c" {
		t.Error("appends from the same base state must not share storage")
	}
	if len(base.Extractions) != 1 || base.RuleHash != "h1" {
		t.Errorf("base state mutated: %+v", base)
	}
}
