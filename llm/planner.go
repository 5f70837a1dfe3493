package llm

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"

	"github.com/pithecene-io/rulelens/pipeline"
)

type planReply struct {
	Steps []string `json:"steps"`
}

// Planner asks the model for a plan in agentic mode and uses the fixed
// mode table otherwise.
type Planner struct {
	model       llms.Model
	temperature float64
	fallback    pipeline.ModePlanner
}

// NewPlanner creates a Planner over model.
func NewPlanner(model llms.Model) *Planner {
	return &Planner{model: model}
}

// Plan implements pipeline.Planner. Names outside the step vocabulary
// become pipeline.StepUnknown. An unparseable reply is a PlanningError.
func (p *Planner) Plan(ctx context.Context, mode string) ([]pipeline.StepName, error) {
	if mode != pipeline.ModeAgentic {
		return p.fallback.Plan(ctx, mode)
	}

	raw, err := generate(ctx, p.model, p.temperature, plannerPrompt(mode))
	if err != nil {
		return nil, &pipeline.PlanningError{Mode: mode, Err: err}
	}
	var reply planReply
	if _, err := decodeReply(raw, '{', '}', &reply); err != nil {
		return nil, &pipeline.PlanningError{Mode: mode, Err: err}
	}
	if len(reply.Steps) == 0 {
		return nil, &pipeline.PlanningError{Mode: mode, Err: errors.New("model returned no steps")}
	}

	steps := make([]pipeline.StepName, len(reply.Steps))
	for i, s := range reply.Steps {
		steps[i] = pipeline.ParseStepName(s)
	}
	return steps, nil
}
