package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/rulelens/cli/render"
	"github.com/pithecene-io/rulelens/metrics"
	"github.com/pithecene-io/rulelens/pipeline"
	"github.com/pithecene-io/rulelens/types"
)

// defaultConcurrency is the number of runs a batch executes at once.
const defaultConcurrency = 4

// BatchCommand returns the batch command.
func BatchCommand() *cli.Command {
	flags := append(executionFlags(), &cli.IntFlag{
		Name:  "concurrency",
		Usage: "Number of runs executed at once",
		Value: defaultConcurrency,
	})
	return &cli.Command{
		Name:      "batch",
		Usage:     "Run every rule file through the same mode concurrently",
		ArgsUsage: "<rule-file>...",
		Flags:     flags,
		Action:    batchAction,
	}
}

// BatchItem is the result of one file in a batch.
type BatchItem struct {
	File       string              `json:"file" yaml:"file"`
	RunID      string              `json:"run_id" yaml:"run_id"`
	Outcome    types.OutcomeStatus `json:"outcome" yaml:"outcome"`
	CacheHit   bool                `json:"cache_hit" yaml:"cache_hit"`
	DurationMs int64               `json:"duration_ms" yaml:"duration_ms"`
	Error      string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchReport is the JSON document written by batch --report.
type BatchReport struct {
	Mode    string           `json:"mode"`
	Failed  int              `json:"failed"`
	Items   []BatchItem      `json:"items"`
	Metrics metrics.Snapshot `json:"metrics"`
}

func batchAction(c *cli.Context) error {
	mode := c.String("mode")
	if mode == pipeline.ModeDiff {
		return cli.Exit("batch does not support diff mode; use run with two files", exitInvalidInput)
	}
	if !pipeline.ValidMode(mode) {
		return cli.Exit(fmt.Sprintf("unknown mode %q", mode), exitInvalidInput)
	}
	concurrency := c.Int("concurrency")
	if concurrency < 1 {
		return cli.Exit("--concurrency must be >= 1", exitInvalidInput)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	files := c.Args().Slice()
	if len(files) == 0 {
		return cli.Exit("at least one rule file is required", exitInvalidInput)
	}
	inputs := make([]string, len(files))
	for i, f := range files {
		if f == "-" {
			return cli.Exit("batch does not read stdin", exitInvalidInput)
		}
		in, err := readInputs([]string{f}, nil)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
		inputs[i] = in[0]
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

	items := runBatch(ctx, env.orchestrator, mode, files, inputs, concurrency)

	failed := 0
	for _, it := range items {
		if it.Outcome != types.OutcomeSuccess {
			failed++
		}
	}

	if path := c.String("report"); path != "" {
		report := BatchReport{Mode: mode, Failed: failed, Items: items, Metrics: env.metrics.Snapshot()}
		if err := writeBatchReport(report, path); err != nil {
			_, _ = fmt.Fprintf(c.App.ErrWriter, "Warning: %v\n", err)
		}
	}

	if !c.Bool("quiet") {
		if err := r.Render(items); err != nil {
			return err
		}
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d runs failed", failed, len(items)), exitRunError)
	}
	return nil
}

// runBatch executes one run per input, at most concurrency at a time. Runs
// share the orchestrator and therefore its cache and metrics. A failing run
// does not cancel the others.
func runBatch(ctx context.Context, o *pipeline.Orchestrator, mode string, files, inputs []string, concurrency int) []BatchItem {
	items := make([]BatchItem, len(inputs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range inputs {
		g.Go(func() error {
			items[i] = runOne(ctx, o, mode, files[i], inputs[i])
			return nil
		})
	}
	_ = g.Wait()
	return items
}

func runOne(ctx context.Context, o *pipeline.Orchestrator, mode, file, input string) BatchItem {
	item := BatchItem{File: file}
	result, err := o.Execute(ctx, pipeline.Request{Mode: mode, Inputs: []string{input}})
	if result != nil {
		item.RunID = result.RunID
		item.Outcome = result.Status
		item.DurationMs = result.Duration.Milliseconds()
		if result.Trace != nil {
			item.CacheHit = result.Trace.CacheHit
		}
	}
	if err != nil {
		item.Error = err.Error()
		if result == nil {
			item.Outcome = types.OutcomeInvalidInput
		}
	}
	return item
}

func writeBatchReport(report BatchReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch report: %w", err)
	}
	data = append(data, '\n')
	if path == "-" {
		_, err = os.Stderr.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write batch report to %s: %w", path, err)
	}
	return nil
}
