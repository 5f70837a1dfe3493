package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/pithecene-io/rulelens/memory"
	"github.com/pithecene-io/rulelens/types"
)

func sampleExtraction() types.Extraction {
	return types.Extraction{
		Globals: []string{},
		Branches: []types.Branch{
			{Condition: "applicant.age < 18", Actions: []string{`decision = "DENY"`}},
			{Condition: types.DefaultCondition, Actions: []string{`decision = "APPROVE"`}},
		},
		Variables: []string{"applicant.age"},
		Outputs:   []string{"decision"},
	}
}

func TestAgent_ExplainUsesProfileAndContext(t *testing.T) {
	m := NewMock().On("Rule extraction (JSON)", "  Summary: minors are denied.  ")
	a := NewAgent(m, WithProfile(memory.Profile{Tone: "executive", Style: "brief"}))

	got, err := a.Explain(t.Context(), sampleExtraction(), "Field definitions:\n- applicant.age: age")
	if err != nil {
		t.Fatalf("Explain failed: %v", err)
	}
	if got != "Summary: minors are denied." {
		t.Errorf("Explain = %q", got)
	}

	p := m.Prompts()[0]
	for _, want := range []string{
		"You write for executive stakeholders.",
		"Keep the writing brief.",
		"- applicant.age: age",
		`"condition": "applicant.age < 18"`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestAgent_VerifyDefaults(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  types.Verdict
	}{
		{
			name:  "complete",
			reply: `{"ok": false, "missing": ["DEFAULT branch"], "rewrite_needed": true}`,
			want:  types.Verdict{OK: false, Missing: []string{"DEFAULT branch"}, RewriteNeeded: true},
		},
		{
			name:  "empty object",
			reply: `{}`,
			want:  types.Verdict{OK: true, Missing: []string{}, RewriteNeeded: false},
		},
		{
			name:  "rewrite defaults to not ok",
			reply: `{"ok": false, "missing": [{"branch": 2}]}`,
			want:  types.Verdict{OK: false, Missing: []string{`{"branch":2}`}, RewriteNeeded: true},
		},
		{
			name:  "recovered from prose",
			reply: `Verdict: {"ok": true, "missing": [], "rewrite_needed": false}`,
			want:  types.Verdict{OK: true, Missing: []string{}, Recovered: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAgent(NewMock().On("strict QA verifier", tt.reply))
			got, err := a.Verify(t.Context(), sampleExtraction(), "Minors are denied.")
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if got.OK != tt.want.OK || got.RewriteNeeded != tt.want.RewriteNeeded || got.Recovered != tt.want.Recovered {
				t.Errorf("Verify = %+v, want %+v", got, tt.want)
			}
			if strings.Join(got.Missing, "|") != strings.Join(tt.want.Missing, "|") {
				t.Errorf("Missing = %q, want %q", got.Missing, tt.want.Missing)
			}
		})
	}
}

func TestAgent_VerifyUnparseable(t *testing.T) {
	a := NewAgent(NewMock().On("strict QA verifier", "looks fine to me"))
	if _, err := a.Verify(t.Context(), sampleExtraction(), "x"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("error = %v, want ErrNoJSON", err)
	}
}

func TestAgent_RewriteListsMissing(t *testing.T) {
	m := NewMock()
	a := NewAgent(m)
	if _, err := a.Rewrite(t.Context(), sampleExtraction(), "old", []string{"DEFAULT branch", "decision output"}); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if !strings.Contains(m.Prompts()[0], "Missing or incorrect items:\nDEFAULT branch\ndecision output") {
		t.Errorf("prompt = %q", m.Prompts()[0])
	}

	if _, err := a.Rewrite(t.Context(), sampleExtraction(), "old", nil); err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	if !strings.Contains(m.Prompts()[1], "Missing or incorrect items:\n(none)") {
		t.Errorf("prompt = %q", m.Prompts()[1])
	}
}

func TestAgent_Reflect(t *testing.T) {
	a := NewAgent(NewMock().On("strict reviewer", `{"issues": ["DEFAULT not described"]}`))
	got, err := a.Reflect(t.Context(), sampleExtraction(), "Minors are denied.")
	if err != nil {
		t.Fatalf("Reflect failed: %v", err)
	}
	if got.OK {
		t.Error("absent ok should be false")
	}
	if len(got.Issues) != 1 || got.Issues[0] != "DEFAULT not described" {
		t.Errorf("Issues = %q", got.Issues)
	}
}

func TestAgent_GenerateTests(t *testing.T) {
	reply := "Here you go:\n" + `[
		{"name": "minor", "input": {"applicant.age": 17}, "expected": {"decision": "DENY"}},
		{"name": "adult", "input": {"applicant.age": 18}}
	]`
	a := NewAgent(NewMock().On("generate test cases", reply))

	cases, err := a.GenerateTests(t.Context(), sampleExtraction())
	if err != nil {
		t.Fatalf("GenerateTests failed: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("len(cases) = %d, want 2", len(cases))
	}
	if cases[0].Expected["decision"] != "DENY" {
		t.Errorf("cases[0] = %+v", cases[0])
	}
	if cases[1].Expected == nil {
		t.Error("missing expected should become an empty map")
	}
}

func TestAgent_DiffPromptOrder(t *testing.T) {
	m := NewMock()
	a := NewAgent(m)
	old := sampleExtraction()
	updated := sampleExtraction()
	updated.Branches[0].Condition = "applicant.age < 21"

	if _, err := a.Diff(t.Context(), old, updated); err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	p := m.Prompts()[0]
	oldAt := strings.Index(p, "applicant.age < 18")
	newAt := strings.Index(p, "applicant.age < 21")
	if oldAt == -1 || newAt == -1 || oldAt > newAt {
		t.Errorf("old rule should precede new rule in prompt: %q", p)
	}
}

func TestAgent_ModelError(t *testing.T) {
	boom := errors.New("connection refused")
	a := NewAgent(NewMock().Fail(boom))
	if _, err := a.Explain(t.Context(), sampleExtraction(), ""); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped model error", err)
	}
}

func TestNewModel(t *testing.T) {
	if _, err := NewModel(Config{Provider: ProviderMock}); err != nil {
		t.Errorf("mock provider: %v", err)
	}
	if _, err := NewModel(Config{Provider: ProviderOllama, Model: "llama3.1", ServerURL: "http://127.0.0.1:11434"}); err != nil {
		t.Errorf("ollama provider: %v", err)
	}
	if _, err := NewModel(Config{Provider: "gpt"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
