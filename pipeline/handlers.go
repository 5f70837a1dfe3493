package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/rulelens/cache"
	"github.com/pithecene-io/rulelens/types"
)

// Handler executes one step against state and returns the updated state.
type Handler func(ctx context.Context, state RunState) (RunState, StepResult, error)

// Fallback outputs and issues.
const (
	NoExtractionIssue  = "static_checks: no extraction available (parse not run yet)."
	NoBranchesOutput   = "could not parse any rule branches from the provided MVEL."
	VerifyMissingItem  = "verify: missing extraction or english"
	DiffNeedsTwoOutput = "Diff requires two parsed rules, but fewer were available."
	NoExtractionNote   = "No extraction available"
)

// call runs fn with the collaborator deadline and wraps failures.
func (r *run) call(ctx context.Context, step StepName, fn func(context.Context) error) error {
	r.metrics.IncCollaboratorCall(string(step))
	callCtx, cancel := r.collaboratorContext(ctx)
	defer cancel()

	started := time.Now()
	err := fn(callCtx)
	r.logger.Debug("collaborator call", map[string]any{
		"step":     string(step),
		"duration": time.Since(started).String(),
		"ok":       err == nil,
	})
	if err != nil {
		r.metrics.IncCollaboratorFailure(string(step))
		return &CollaboratorError{Step: step, Err: err}
	}
	return nil
}

func (r *run) collaboratorContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.o.cfg.CollaboratorTimeout > 0 {
		return context.WithTimeout(ctx, r.o.cfg.CollaboratorTimeout)
	}
	return context.WithCancel(ctx)
}

// shared runs fn once per key across concurrent runs. A run that stops
// waiting because its own ctx ended fails with a CollaboratorError for step.
func (r *run) shared(ctx context.Context, step StepName, key string, fn func(context.Context) (any, error)) (any, error) {
	v, err := r.o.cfg.Cache.Do(ctx, key, fn)
	if err == nil {
		return v, nil
	}
	var ce *CollaboratorError
	if !errors.As(err, &ce) {
		err = &CollaboratorError{Step: step, Err: err}
	}
	return nil, err
}

func missing(step StepName) error {
	return &CollaboratorError{Step: step, Err: ErrNoCollaborator}
}

func (r *run) fallback(name string, data map[string]any) {
	r.metrics.IncFallback()
	if _, ok := data["reason"]; !ok {
		data["reason"] = ErrExtractionMissing.Error()
	}
	r.recorder.Log(name, data)
}

func (r *run) parse(ctx context.Context, st RunState) (RunState, StepResult, error) {
	idx := len(st.Extractions)
	if idx >= len(st.Inputs) {
		r.recorder.Log("parse_skipped", map[string]any{"reason": "no more inputs", "idx": idx})
		return st, cont(), nil
	}

	raw := st.Inputs[idx]
	hash := cache.Hash(raw)
	if ex, ok := r.o.cfg.Cache.GetParse(ctx, hash); ok {
		st = st.withExtraction(ex, hash)
		r.recorder.LogCached("parse", true, parseData(idx, hash, ex))
		r.recorder.Reason("parse", "extraction served from cache", map[string]any{"rule_hash": hash})
		return st, cached(true, Continue), nil
	}

	key := r.o.cfg.Cache.Key(cache.KindParse, hash)
	v, err := r.shared(ctx, StepParse, key, func(ctx context.Context) (any, error) {
		var ex types.Extraction
		err := r.call(ctx, StepParse, func(ctx context.Context) error {
			var err error
			ex, err = r.o.cfg.Parser.Parse(ctx, raw)
			return err
		})
		if err != nil {
			return nil, err
		}
		r.o.cfg.Cache.PutParse(ctx, hash, ex)
		return ex, nil
	})
	if err != nil {
		return st, cont(), err
	}
	ex := v.(types.Extraction)

	st = st.withExtraction(ex, hash)
	r.recorder.LogCached("parse", false, parseData(idx, hash, ex))
	r.recorder.Reason("parse", fmt.Sprintf("parsed input %d into %d branches", idx, len(ex.Branches)), map[string]any{
		"rule_hash": hash,
		"outputs":   ex.Outputs,
	})
	return st, cached(false, Continue), nil
}

func parseData(idx int, hash string, ex types.Extraction) map[string]any {
	return map[string]any{
		"index":     idx,
		"rule_hash": hash,
		"branches":  len(ex.Branches),
		"outputs":   ex.Outputs,
	}
}

func (r *run) staticChecks(ctx context.Context, st RunState) (RunState, StepResult, error) {
	ex, ok := st.Latest()
	if !ok {
		st.StaticIssues = []string{NoExtractionIssue}
		r.fallback("static_checks", map[string]any{"issues": st.StaticIssues})
		return st, cont(), nil
	}

	var issues []string
	err := r.call(ctx, StepStaticChecks, func(ctx context.Context) error {
		var err error
		issues, err = r.o.cfg.Checker.Check(ctx, ex)
		return err
	})
	if err != nil {
		return st, cont(), err
	}
	st.StaticIssues = issues
	r.recorder.Log("static_checks", map[string]any{"issues": issues})
	if len(issues) > 0 {
		r.recorder.Reason("static_checks", fmt.Sprintf("%d structural issue(s) found", len(issues)), map[string]any{"issues": issues})
	}
	return st, cont(), nil
}

func (r *run) retrieveContext(ctx context.Context, st RunState) (RunState, StepResult, error) {
	if st.RuleHash != "" {
		if text, ok := r.o.cfg.Cache.GetText(ctx, cache.KindContext, st.RuleHash); ok {
			st.Context = text
			r.recorder.LogCached("retrieve_context", true, map[string]any{"context_chars": len(text)})
			return st, cached(true, Continue), nil
		}
	}

	query := ""
	if len(st.Inputs) > 0 {
		query = st.Inputs[0]
	}
	var kb string
	err := r.call(ctx, StepRetrieveContext, func(ctx context.Context) error {
		var err error
		kb, err = r.o.cfg.Retriever.Retrieve(ctx, query, r.o.cfg.KBDir)
		return err
	})
	if err != nil {
		return st, cont(), err
	}

	var pieces []string
	if r.o.cfg.MemoryContext != "" {
		pieces = append(pieces, r.o.cfg.MemoryContext)
	}
	if kb != "" {
		pieces = append(pieces, kb)
	}
	if len(st.StaticIssues) > 0 {
		pieces = append(pieces, "Static check notes:\n- "+strings.Join(st.StaticIssues, "\n- "))
	}
	st.Context = strings.TrimSpace(strings.Join(pieces, "\n\n"))

	var hit *bool
	if st.RuleHash != "" {
		r.o.cfg.Cache.PutText(ctx, cache.KindContext, st.RuleHash, st.Context)
		miss := false
		hit = &miss
	}
	data := map[string]any{"context_chars": len(st.Context), "kb_chars": len(kb)}
	if hit != nil {
		r.recorder.LogCached("retrieve_context", false, data)
	} else {
		r.recorder.Log("retrieve_context", data)
	}
	return st, StepResult{Action: Continue, CacheHit: hit}, nil
}

func (r *run) explain(ctx context.Context, st RunState) (RunState, StepResult, error) {
	ex, ok := st.Latest()
	if !ok {
		st.Output = NoBranchesOutput
		r.fallback("explain_fallback", map[string]any{})
		r.recorder.Reason("explain", "no extraction; explainer not called", nil)
		return st, cont(), nil
	}
	if r.o.cfg.Explainer == nil {
		return st, cont(), missing(StepExplain)
	}

	if st.RuleHash != "" {
		if text, ok := r.o.cfg.Cache.GetText(ctx, cache.KindExplain, st.RuleHash); ok && text != "" {
			st.Output = text
			r.recorder.LogCached("explain", true, map[string]any{"rule_hash": st.RuleHash, "english_chars": len(text)})
			r.recorder.Reason("explain", "explanation served from cache", map[string]any{"rule_hash": st.RuleHash})
			return st, cached(true, ShortCircuit), nil
		}
	}

	produce := func(ctx context.Context) (any, error) {
		var text string
		err := r.call(ctx, StepExplain, func(ctx context.Context) error {
			var err error
			text, err = r.o.cfg.Explainer.Explain(ctx, ex, st.Context)
			return err
		})
		if err != nil {
			return nil, err
		}
		if st.RuleHash != "" {
			r.o.cfg.Cache.PutText(ctx, cache.KindExplain, st.RuleHash, text)
		}
		return text, nil
	}
	var (
		v   any
		err error
	)
	if st.RuleHash != "" {
		v, err = r.shared(ctx, StepExplain, r.o.cfg.Cache.Key(cache.KindExplain, st.RuleHash), produce)
	} else {
		v, err = produce(ctx)
	}
	if err != nil {
		return st, cont(), err
	}

	st.Output = v.(string)
	r.recorder.LogCached("explain", false, map[string]any{"english_chars": len(st.Output)})
	return st, cached(false, ShortCircuit), nil
}

func (r *run) verify(ctx context.Context, st RunState) (RunState, StepResult, error) {
	ex, ok := st.Latest()
	if !ok || st.Output == "" {
		v := types.Verdict{OK: false, Missing: []string{VerifyMissingItem}, RewriteNeeded: true}
		st.Verdict = &v
		data := verdictData(v)
		if ok {
			data["reason"] = "no explanation to verify"
		}
		r.fallback("verify", data)
		return st, cont(), nil
	}
	if r.o.cfg.Verifier == nil {
		return st, cont(), missing(StepVerify)
	}

	var v types.Verdict
	err := r.call(ctx, StepVerify, func(ctx context.Context) error {
		var err error
		v, err = r.o.cfg.Verifier.Verify(ctx, ex, st.Output)
		return err
	})
	if err != nil {
		return st, cont(), err
	}
	if v.Recovered {
		r.metrics.IncJSONRecovered()
	}
	st.Verdict = &v
	r.recorder.Log("verify", verdictData(v))
	r.recorder.Reason("verify", verdictSummary(v), map[string]any{"missing": v.Missing})
	return st, cont(), nil
}

func verdictData(v types.Verdict) map[string]any {
	return map[string]any{
		"ok":             v.OK,
		"missing":        v.Missing,
		"rewrite_needed": v.RewriteNeeded,
		"recovered":      v.Recovered,
	}
}

func verdictSummary(v types.Verdict) string {
	if v.OK {
		return "explanation matches the rule"
	}
	return fmt.Sprintf("explanation incomplete: %d missing item(s)", len(v.Missing))
}

func (r *run) rewrite(ctx context.Context, st RunState) (RunState, StepResult, error) {
	ex, ok := st.Latest()
	if st.Verdict == nil || st.Verdict.OK || !ok || st.Output == "" {
		verdictOK := true
		if st.Verdict != nil {
			verdictOK = st.Verdict.OK
		}
		r.recorder.Log("rewrite_skipped", map[string]any{"ok": verdictOK})
		return st, cont(), nil
	}
	if r.o.cfg.Rewriter == nil {
		return st, cont(), missing(StepRewrite)
	}

	var text string
	err := r.call(ctx, StepRewrite, func(ctx context.Context) error {
		var err error
		text, err = r.o.cfg.Rewriter.Rewrite(ctx, ex, st.Output, st.Verdict.Missing)
		return err
	})
	if err != nil {
		return st, cont(), err
	}
	st.Output = text
	if st.RuleHash != "" {
		r.o.cfg.Cache.PutText(ctx, cache.KindExplain, st.RuleHash, text)
	}
	r.recorder.Log("rewrite", map[string]any{"english_chars": len(text)})
	r.recorder.Reason("rewrite", "explanation rewritten to cover missing items", map[string]any{"missing": st.Verdict.Missing})
	return st, StepResult{Action: ShortCircuit}, nil
}

// reflect never fails the run; problems are logged and traced.
func (r *run) reflect(ctx context.Context, st RunState) (RunState, StepResult, error) {
	ex, ok := st.Latest()
	if !ok {
		r.reflectFailed(ErrExtractionMissing)
		return st, cont(), nil
	}
	if r.o.cfg.Reflector == nil {
		r.reflectFailed(ErrNoCollaborator)
		return st, cont(), nil
	}

	var refl types.Reflection
	err := r.call(ctx, StepReflect, func(ctx context.Context) error {
		var err error
		refl, err = r.o.cfg.Reflector.Reflect(ctx, ex, st.Output)
		return err
	})
	if err != nil {
		r.reflectFailed(err)
		return st, cont(), nil
	}
	if refl.Recovered {
		r.metrics.IncJSONRecovered()
	}
	st.Reflection = &refl
	r.recorder.Log("reflect", map[string]any{"ok": refl.OK, "issues": len(refl.Issues), "recovered": refl.Recovered})

	if r.o.cfg.Memory == nil {
		return st, cont(), nil
	}
	item := types.MemoryItem{
		Type:     types.MemoryItemReflection,
		Issues:   append([]string{}, refl.Issues...),
		RuleHash: st.RuleHash,
		RunID:    r.meta.RunID,
	}
	if err := r.o.cfg.Memory.Append(ctx, item); err != nil {
		r.logger.Warn("memory append failed", map[string]any{"error": err.Error()})
		r.recorder.Log("reflect_memory_failed", map[string]any{"error": err.Error()})
	}
	return st, cont(), nil
}

func (r *run) reflectFailed(err error) {
	r.logger.Warn("reflect failed", map[string]any{"error": err.Error()})
	r.recorder.Log("reflect_failed", map[string]any{"error": err.Error()})
}

func (r *run) generateTests(ctx context.Context, st RunState) (RunState, StepResult, error) {
	var cases []types.TestCase
	ex, ok := st.Latest()
	switch {
	case !ok:
		cases = []types.TestCase{{
			Name:     "error",
			Input:    map[string]any{},
			Expected: map[string]any{},
			Note:     NoExtractionNote,
		}}
		r.fallback("generate_tests", map[string]any{"count": len(cases)})
	case r.o.cfg.TestGenerator == nil:
		return st, cont(), missing(StepGenerateTests)
	default:
		err := r.call(ctx, StepGenerateTests, func(ctx context.Context) error {
			var err error
			cases, err = r.o.cfg.TestGenerator.GenerateTests(ctx, ex)
			return err
		})
		if err != nil {
			return st, cont(), err
		}
		if cases == nil {
			cases = []types.TestCase{}
		}
		r.recorder.Log("generate_tests", map[string]any{"count": len(cases)})
	}

	out, err := indentJSON(cases)
	if err != nil {
		return st, cont(), &CollaboratorError{Step: StepGenerateTests, Err: err}
	}
	st.Tests = cases
	st.Output = out
	return st, cont(), nil
}

func indentJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode test cases: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (r *run) diff(ctx context.Context, st RunState) (RunState, StepResult, error) {
	if len(st.Extractions) < 2 {
		st.Output = DiffNeedsTwoOutput
		r.fallback("diff_fallback", map[string]any{"need": 2, "got": len(st.Extractions)})
		return st, cont(), nil
	}
	if r.o.cfg.DiffExplainer == nil {
		return st, cont(), missing(StepDiff)
	}

	var text string
	err := r.call(ctx, StepDiff, func(ctx context.Context) error {
		var err error
		text, err = r.o.cfg.DiffExplainer.Diff(ctx, st.Extractions[0], st.Extractions[1])
		return err
	})
	if err != nil {
		return st, cont(), err
	}
	st.Output = text
	r.recorder.Log("diff", map[string]any{"english_chars": len(text)})
	return st, cont(), nil
}

func (r *run) unknown(_ context.Context, st RunState) (RunState, StepResult, error) {
	r.recorder.Log("unknown_step", map[string]any{"step": string(StepUnknown)})
	return st, cont(), nil
}
