package llm

import (
	"errors"
	"slices"
	"testing"

	"github.com/pithecene-io/rulelens/pipeline"
)

func TestPlanner_AgenticAsksModel(t *testing.T) {
	m := NewMock().On("planning agent", `{"steps": ["parse", "explain", "summarize"]}`)
	steps, err := NewPlanner(m).Plan(t.Context(), pipeline.ModeAgentic)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	want := []pipeline.StepName{pipeline.StepParse, pipeline.StepExplain, pipeline.StepUnknown}
	if !slices.Equal(steps, want) {
		t.Errorf("steps = %v, want %v", steps, want)
	}
}

func TestPlanner_FixedModesSkipModel(t *testing.T) {
	m := NewMock()
	steps, err := NewPlanner(m).Plan(t.Context(), pipeline.ModeDiff)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if !slices.Equal(steps, pipeline.PlanFor(pipeline.ModeDiff)) {
		t.Errorf("steps = %v", steps)
	}
	if m.Calls() != 0 {
		t.Errorf("model called %d times, want 0", m.Calls())
	}
}

func TestPlanner_UnparseableReply(t *testing.T) {
	for _, reply := range []string{"I think you should parse first.", `{"steps": []}`} {
		m := NewMock().On("planning agent", reply)
		_, err := NewPlanner(m).Plan(t.Context(), pipeline.ModeAgentic)
		var pe *pipeline.PlanningError
		if !errors.As(err, &pe) {
			t.Errorf("reply %q: error = %v, want PlanningError", reply, err)
		}
	}
}
