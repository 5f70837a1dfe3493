package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/rulelens/cli/render"
	"github.com/pithecene-io/rulelens/pipeline"
	"github.com/pithecene-io/rulelens/types"
)

// Exit codes for run and batch.
const (
	exitSuccess      = 0
	exitRunError     = 1
	exitInvalidInput = 2
)

// RunCommand returns the run command.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Explain, verify or test a rule (two files for --mode diff)",
		ArgsUsage: "<rule-file> [<rule-file>]  (- reads stdin)",
		Flags:     executionFlags(),
		Action:    runAction,
	}
}

// RunOutput is the rendered result of a run.
type RunOutput struct {
	RunID      string              `json:"run_id" yaml:"run_id"`
	Mode       string              `json:"mode" yaml:"mode"`
	Outcome    types.OutcomeStatus `json:"outcome" yaml:"outcome"`
	Steps      []string            `json:"steps" yaml:"steps"`
	CacheHit   bool                `json:"cache_hit" yaml:"cache_hit"`
	DurationMs int64               `json:"duration_ms" yaml:"duration_ms"`
	Error      string              `json:"error,omitempty" yaml:"error,omitempty"`
	Output     string              `json:"output" yaml:"output"`
}

func newRunOutput(result *pipeline.Result, runErr error) RunOutput {
	out := RunOutput{
		RunID:      result.RunID,
		Mode:       result.Mode,
		Outcome:    result.Status,
		DurationMs: result.Duration.Milliseconds(),
		Output:     result.Output,
	}
	for _, s := range result.Steps {
		out.Steps = append(out.Steps, string(s))
	}
	if result.Trace != nil {
		out.CacheHit = result.Trace.CacheHit
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	return out
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	inputs, err := readInputs(c.Args().Slice(), c.App.Reader)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	req := pipeline.Request{Mode: c.String("mode"), Inputs: inputs}
	if err := validateArity(req); err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newEnvironment(ctx, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize: %v", err), exitInvalidInput)
	}
	defer func() { _ = env.Close() }()

	result, runErr := env.orchestrator.Execute(ctx, req)
	code := exitCodeFor(runErr)
	if result == nil {
		return cli.Exit(runErr.Error(), code)
	}

	if path := c.String("report"); path != "" {
		report := pipeline.BuildRunReport(result, runErr, code)
		if err := pipeline.WriteRunReport(report, path); err != nil {
			_, _ = fmt.Fprintf(c.App.ErrWriter, "Warning: %v\n", err)
		}
	}

	if !c.Bool("quiet") {
		if err := r.Render(newRunOutput(result, runErr)); err != nil {
			return err
		}
	}

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("run failed: %v", runErr), code)
	}
	return nil
}

// exitCodeFor maps a run error to the process exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, pipeline.ErrInvalidInput):
		return exitInvalidInput
	default:
		return exitRunError
	}
}

// validateArity checks req and then requires two files for diff and
// exactly one for every other mode.
func validateArity(req pipeline.Request) error {
	if err := pipeline.Validate(req); err != nil {
		return err
	}
	mode := req.Mode
	if mode == "" {
		mode = pipeline.ModeAgentic
	}
	want := 1
	if mode == pipeline.ModeDiff {
		want = 2
	}
	if len(req.Inputs) != want {
		return fmt.Errorf("%w: %s mode requires exactly %d file(s), got %d", pipeline.ErrInvalidInput, mode, want, len(req.Inputs))
	}
	return nil
}

// readInputs reads each rule file. "-" reads stdin once.
func readInputs(paths []string, stdin io.Reader) ([]string, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one rule file is required")
	}
	inputs := make([]string, 0, len(paths))
	stdinUsed := false
	for _, p := range paths {
		if p == "-" {
			if stdinUsed {
				return nil, errors.New("stdin (-) can only be read once")
			}
			stdinUsed = true
			data, err := io.ReadAll(stdin)
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			inputs = append(inputs, string(data))
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule file: %w", err)
		}
		inputs = append(inputs, string(data))
	}
	return inputs, nil
}
