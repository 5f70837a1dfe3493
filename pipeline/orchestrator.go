package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/rulelens/cache"
	"github.com/pithecene-io/rulelens/log"
	"github.com/pithecene-io/rulelens/metrics"
	"github.com/pithecene-io/rulelens/retrieval"
	"github.com/pithecene-io/rulelens/rules"
	"github.com/pithecene-io/rulelens/trace"
	"github.com/pithecene-io/rulelens/types"
)

// NoOutput is the output of a run whose steps produced nothing.
const NoOutput = "No output was produced. Check the plan and earlier steps."

// persistTimeout bounds trace persistence after the run context is done.
const persistTimeout = 10 * time.Second

// Config configures an Orchestrator. Only the collaborators used by the
// planned steps are required; a missing one fails its step with
// ErrNoCollaborator.
type Config struct {
	// Planner defaults to ModePlanner.
	Planner Planner
	// Parser defaults to rules.Parser.
	Parser RuleParser
	// Checker defaults to rules.Checker.
	Checker StaticChecker
	// Retriever defaults to retrieval.Keyword with default limits.
	Retriever ContextRetriever

	Explainer     Explainer
	Verifier      Verifier
	Rewriter      Rewriter
	Reflector     Reflector
	TestGenerator TestGenerator
	DiffExplainer DiffExplainer

	// Memory receives reflection findings. Optional.
	Memory MemoryStore
	// MemoryContext is prepended to retrieved context (see memory.FormatContext).
	MemoryContext string
	// KBDir is the knowledge-base directory passed to the retriever.
	KBDir string

	// Cache is the advisory cache. Nil disables caching.
	Cache *cache.Advisory
	// Sink persists the finished trace. Nil discards it.
	Sink trace.Sink
	// Termination defaults to DefaultTermination.
	Termination TerminationPolicy
	// CollaboratorTimeout bounds each collaborator call. Zero means unbounded.
	CollaboratorTimeout time.Duration

	Logger  *log.Logger
	Metrics *metrics.Collector

	// NewRunID overrides run ID generation (default uuid.NewString).
	NewRunID func() string
	// Now overrides the trace clock.
	Now func() time.Time
}

// WithModel sets every model-backed collaborator from m.
func (c Config) WithModel(m Model) Config {
	c.Explainer = m
	c.Verifier = m
	c.Rewriter = m
	c.Reflector = m
	c.TestGenerator = m
	c.DiffExplainer = m
	return c
}

// Request is one run request.
type Request struct {
	// Mode selects the plan (default agentic).
	Mode string
	// Inputs are raw MVEL texts: two for diff, one otherwise.
	Inputs []string
}

// Result is the outcome of Execute.
type Result struct {
	RunID    string
	Mode     string
	Status   types.OutcomeStatus
	Steps    []StepName
	Output   string
	State    RunState
	Trace    *trace.Document
	Duration time.Duration
	Metrics  metrics.Snapshot
}

// Orchestrator executes runs. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator, filling defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Planner == nil {
		cfg.Planner = ModePlanner{}
	}
	if cfg.Parser == nil {
		cfg.Parser = rules.Parser{}
	}
	if cfg.Checker == nil {
		cfg.Checker = rules.Checker{}
	}
	if cfg.Retriever == nil {
		cfg.Retriever = retrieval.Keyword{}
	}
	if cfg.KBDir == "" {
		cfg.KBDir = retrieval.DefaultKBDir
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewAdvisory(cache.AdvisoryConfig{Logger: cfg.Logger, Metrics: cfg.Metrics})
	}
	if cfg.Sink == nil {
		cfg.Sink = trace.NopSink{}
	}
	if cfg.Termination == nil {
		cfg.Termination = DefaultTermination()
	}
	for step := range cfg.Termination {
		if step == StepUnknown || ParseStepName(string(step)) == StepUnknown {
			return nil, &UnknownStepError{Name: string(step)}
		}
	}
	if cfg.CollaboratorTimeout < 0 {
		return nil, fmt.Errorf("collaborator timeout must be >= 0, got %s", cfg.CollaboratorTimeout)
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{cfg: cfg}, nil
}

// MaxInputs is the most rule texts a single run accepts.
const MaxInputs = 2

// Validate checks that req names a known mode and carries one or two
// inputs. The count is not tied to the mode: a diff over a single input
// completes with DiffNeedsTwoOutput.
func Validate(req Request) error {
	mode := req.Mode
	if mode == "" {
		mode = ModeAgentic
	}
	if !ValidMode(mode) {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	if n := len(req.Inputs); n < 1 || n > MaxInputs {
		return fmt.Errorf("%w: expected 1 to %d inputs, got %d", ErrInvalidInput, MaxInputs, n)
	}
	return nil
}

// Execute runs req end to end.
//
// Invalid requests fail with ErrInvalidInput before any step runs and
// return a nil Result. Planner and collaborator failures abort the run;
// the partial Result is returned alongside the error and the trace is
// still finished and persisted.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = ModeAgentic
	}

	meta := types.RunMeta{RunID: o.cfg.NewRunID(), Mode: req.Mode}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}

	r := &run{
		o:        o,
		meta:     meta,
		logger:   o.cfg.Logger.ForRun(&meta),
		metrics:  o.cfg.Metrics,
		recorder: trace.NewRecorderWithClock(meta, o.cfg.Now),
	}
	result := r.execute(ctx, req)
	return result, r.err
}

// run is the per-execution context shared by the handlers. Mutable data
// flows through RunState, not through run.
type run struct {
	o        *Orchestrator
	meta     types.RunMeta
	logger   *log.Logger
	metrics  *metrics.Collector
	recorder *trace.Recorder
	err      error
}

func (r *run) handlers() map[StepName]Handler {
	return map[StepName]Handler{
		StepParse:           r.parse,
		StepStaticChecks:    r.staticChecks,
		StepRetrieveContext: r.retrieveContext,
		StepExplain:         r.explain,
		StepVerify:          r.verify,
		StepRewrite:         r.rewrite,
		StepReflect:         r.reflect,
		StepGenerateTests:   r.generateTests,
		StepDiff:            r.diff,
		StepUnknown:         r.unknown,
	}
}

func (r *run) execute(ctx context.Context, req Request) *Result {
	start := time.Now()
	r.metrics.IncRunStarted()
	r.logger.Info("starting run", map[string]any{"inputs": len(req.Inputs)})
	r.recorder.Log("start", map[string]any{"mode": req.Mode, "inputs": len(req.Inputs)})

	state := RunState{Inputs: req.Inputs}
	result := &Result{RunID: r.meta.RunID, Mode: r.meta.Mode}

	steps, err := r.o.cfg.Planner.Plan(ctx, req.Mode)
	if err == nil && len(steps) == 0 {
		err = errors.New("planner returned no steps")
	}
	if err != nil {
		var pe *PlanningError
		if !errors.As(err, &pe) {
			err = &PlanningError{Mode: req.Mode, Err: err}
		}
		return r.fail(ctx, result, state, start, err)
	}
	result.Steps = steps
	r.recorder.Log("plan", map[string]any{"steps": stepStrings(steps)})
	r.recorder.Reason("plan", fmt.Sprintf("planned %d steps for mode %s", len(steps), req.Mode), map[string]any{
		"planner": fmt.Sprintf("%T", r.o.cfg.Planner),
	})

	handlers := r.handlers()
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, result, state, start, err)
		}
		handler, ok := handlers[step]
		if !ok {
			handler = r.unknown
		}

		r.metrics.IncStep(string(step))
		r.logger.Debug("executing step", map[string]any{"step": string(step)})

		next, res, err := handler(ctx, state)
		if err != nil {
			return r.fail(ctx, result, state, start, err)
		}
		state = next

		if res.Action == ShortCircuit && r.o.cfg.Termination.Terminal(step) {
			r.metrics.IncShortCircuit()
			r.recorder.Log("short_circuit", map[string]any{"step": string(step)})
			r.recorder.Reason("short_circuit", fmt.Sprintf("%s produced the final output", step), nil)
			break
		}
	}

	if state.Output == "" {
		state.Output = NoOutput
	}
	r.metrics.IncRunCompleted()
	r.logger.Info("run completed", map[string]any{
		"output_chars": len(state.Output),
		"duration":     time.Since(start).String(),
	})
	return r.finish(ctx, result, state, start, types.OutcomeSuccess)
}

func (r *run) fail(ctx context.Context, result *Result, state RunState, start time.Time, err error) *Result {
	r.err = err
	r.metrics.IncRunFailed()

	data := map[string]any{"error": err.Error()}
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		data["step"] = string(ce.Step)
	}
	r.recorder.Log("error", data)
	r.logger.Error("run failed", data)
	return r.finish(ctx, result, state, start, types.OutcomeRunError)
}

// finish seals the trace, persists it best effort and fills result.
func (r *run) finish(ctx context.Context, result *Result, state RunState, start time.Time, status types.OutcomeStatus) *Result {
	if r.metrics != nil {
		r.recorder.AttachMetrics(r.metrics.Snapshot())
	}
	r.recorder.Finish(state.Output)
	doc := r.recorder.Document()

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := r.o.cfg.Sink.Write(persistCtx, doc); err != nil {
		r.metrics.IncTraceWriteFailure()
		r.logger.Warn("trace persistence failed (best effort)", map[string]any{"error": err.Error()})
	} else {
		r.metrics.IncTraceWriteSuccess()
	}

	result.Status = status
	result.Output = state.Output
	result.State = state
	result.Trace = doc
	result.Duration = time.Since(start)
	if r.metrics != nil {
		result.Metrics = r.metrics.Snapshot()
	}
	return result
}

func stepStrings(steps []StepName) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	return out
}
