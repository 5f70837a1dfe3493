package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/rulelens/cli/config"
	"github.com/pithecene-io/rulelens/cli/render"
	"github.com/pithecene-io/rulelens/cli/tui"
	"github.com/pithecene-io/rulelens/lode"
	"github.com/pithecene-io/rulelens/trace"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect reads persisted traces; it never executes a run.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect persisted runs (trace, metrics, runs)",
		Subcommands: []*cli.Command{
			inspectTraceCommand(),
			inspectMetricsCommand(),
			inspectRunsCommand(),
		},
	}
}

func inspectTraceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "Show the trace of a run by ID or trace file path",
		ArgsUsage: "<run-id|path>",
		Flags:     append(ReadOnlyFlags(), traceSourceFlags()...),
		Action:    inspectTraceAction,
	}
}

// TraceSummary is the table view of a trace document.
type TraceSummary struct {
	RunID       string    `json:"run_id"`
	Mode        string    `json:"mode"`
	Outcome     string    `json:"outcome"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
	Steps       int       `json:"steps"`
	CacheHit    bool      `json:"cache_hit"`
	FinalOutput string    `json:"final_output"`
}

// StepRow is one trace entry in table view.
type StepRow struct {
	Seq   int    `json:"seq"`
	Name  string `json:"name"`
	Ts    string `json:"ts"`
	Cache string `json:"cache"`
	Data  string `json:"data"`
}

func inspectTraceAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("run-id or trace path required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	doc, err := loadTrace(c.Context, c, c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewTrace, doc)
	}

	if r.Format() != render.FormatTable {
		return r.Render(doc)
	}
	if err := r.Render(summarize(doc)); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.App.Writer)
	return r.Render(stepRows(doc))
}

func inspectMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:      "metrics",
		Usage:     "Show the metrics snapshot recorded with a run",
		ArgsUsage: "<run-id|path>",
		Flags:     append(ReadOnlyFlags(), traceSourceFlags()...),
		Action:    inspectMetricsAction,
	}
}

func inspectMetricsAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("run-id or trace path required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	doc, err := loadTrace(c.Context, c, c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if doc.Metrics == nil {
		return cli.Exit(fmt.Sprintf("run %s has no metrics recorded", doc.RunID), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewMetrics, doc.Metrics)
	}
	return r.Render(doc.Metrics)
}

func inspectRunsCommand() *cli.Command {
	flags := append(ReadOnlyFlags(), traceSourceFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:  "mode",
			Usage: "Only list runs of this mode",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of runs (0 = all)",
			Value: 20,
		},
	)
	return &cli.Command{
		Name:   "runs",
		Usage:  "List persisted runs, newest first",
		Flags:  flags,
		Action: inspectRunsAction,
	}
}

func inspectRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for inspect runs", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	var runs []lode.RunSummary
	if cfg.Trace.Lode.Path != "" {
		ds, err := lode.Open(c.Context, lodeOptions(cfg.Trace.Lode))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		runs, err = lode.ListRuns(c.Context, ds, c.String("mode"), c.Int("limit"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
	} else {
		runs, err = listTraceFiles(traceDir(cfg), c.String("mode"), c.Int("limit"))
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}
	if runs == nil {
		runs = []lode.RunSummary{}
	}
	return r.Render(runs)
}

// loadTrace resolves ref as a trace file path first, then as a run ID in
// the Lode dataset (when configured) or the trace directory.
func loadTrace(ctx context.Context, c *cli.Context, ref string) (*trace.Document, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return trace.ReadFile(ref)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	if cfg.Trace.Lode.Path != "" {
		ds, err := lode.Open(ctx, lodeOptions(cfg.Trace.Lode))
		if err != nil {
			return nil, err
		}
		doc, err := lode.QueryTrace(ctx, ds, ref)
		if errors.Is(err, lode.ErrTraceNotFound) {
			return nil, fmt.Errorf("no trace for run %s in dataset %s", ref, cfg.Trace.Lode.Path)
		}
		return doc, err
	}

	path := trace.NewFileSink(traceDir(cfg)).Path(ref)
	doc, err := trace.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no trace for run %s at %s", ref, path)
	}
	return doc, err
}

func traceDir(cfg *config.Config) string {
	if cfg.Trace.Dir != "" {
		return cfg.Trace.Dir
	}
	return trace.DefaultDir
}

// listTraceFiles summarizes the run_*.json files in dir, newest first.
// Unreadable files are skipped.
func listTraceFiles(dir, mode string, limit int) ([]lode.RunSummary, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "run_*.json"))
	if err != nil {
		return nil, err
	}

	var runs []lode.RunSummary
	for _, p := range paths {
		doc, err := trace.ReadFile(p)
		if err != nil || (mode != "" && doc.Mode != mode) {
			continue
		}
		runs = append(runs, lode.RunSummary{
			RunID:      doc.RunID,
			Mode:       doc.Mode,
			StartedAt:  doc.StartedAt,
			DurationMs: doc.Duration().Milliseconds(),
			Steps:      len(doc.Steps),
			CacheHit:   doc.CacheHit,
		})
	}

	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func summarize(doc *trace.Document) TraceSummary {
	outcome := "success"
	if _, ok := doc.Find("error"); ok {
		outcome = "run_error"
	}
	return TraceSummary{
		RunID:       doc.RunID,
		Mode:        doc.Mode,
		Outcome:     outcome,
		StartedAt:   doc.StartedAt,
		DurationMs:  doc.Duration().Milliseconds(),
		Steps:       len(doc.Steps),
		CacheHit:    doc.CacheHit,
		FinalOutput: doc.FinalOutput,
	}
}

func stepRows(doc *trace.Document) []StepRow {
	rows := make([]StepRow, len(doc.Steps))
	for i, e := range doc.Steps {
		cache := "-"
		if e.CacheHit != nil {
			cache = "miss"
			if *e.CacheHit {
				cache = "hit"
			}
		}
		rows[i] = StepRow{
			Seq:   i,
			Name:  e.Name,
			Ts:    e.Ts.UTC().Format("15:04:05.000"),
			Cache: cache,
			Data:  compactData(e.Data),
		}
	}
	return rows
}

// compactData renders entry data as one-line JSON with sorted keys.
func compactData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(raw)
}
