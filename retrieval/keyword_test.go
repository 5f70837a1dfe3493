package retrieval

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeKB(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestTokens(t *testing.T) {
	got := Tokens(`if (applicant.age < 18) { decision = "DENY"; }`, 0)
	// Quotes survive; only bracket and separator punctuation is trimmed.
	want := []string{"applicant.age", "decision", `"DENY"`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokens = %q, want %q", got, want)
	}
}

func TestKeyword_RetrieveFormatsSnippets(t *testing.T) {
	dir := writeKB(t, map[string]string{
		"glossary.txt": "applicant.age is the age in whole years\nunrelated line\n",
		"policy.md":    "  A decision of DENY blocks the application  \n",
	})

	got, err := Keyword{}.Retrieve(t.Context(), `if (applicant.age < 18) { decision = "DENY"; }`, dir)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	want := strings.Join([]string{
		Header,
		"- (glossary.txt) applicant.age is the age in whole years",
		"- (policy.md) A decision of DENY blocks the application",
	}, "\n")
	if got != want {
		t.Errorf("Retrieve =\n%s\nwant\n%s", got, want)
	}
}

func TestKeyword_LimitAndDedupe(t *testing.T) {
	dir := writeKB(t, map[string]string{
		"a.txt": "fraudScore high\nfraudScore high\nfraudScore low\nfraudScore mid\n",
	})

	snippets, err := Keyword{MaxSnippets: 2}.Search(t.Context(), "fraudScore", dir)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := []Snippet{{"a.txt", "fraudScore high"}, {"a.txt", "fraudScore low"}}
	if !reflect.DeepEqual(snippets, want) {
		t.Errorf("Search = %+v, want %+v", snippets, want)
	}
}

func TestKeyword_EmptyResults(t *testing.T) {
	dir := writeKB(t, map[string]string{"a.txt": "nothing relevant\n"})

	tests := []struct {
		name  string
		query string
		dir   string
	}{
		{"missing dir", "applicant.age", filepath.Join(dir, "nope")},
		{"only short tokens", "x = 1; y = 2", dir},
		{"no match", "applicant.age", dir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Keyword{}.Retrieve(t.Context(), tt.query, tt.dir)
			if err != nil {
				t.Fatalf("Retrieve failed: %v", err)
			}
			if got != "" {
				t.Errorf("Retrieve = %q, want empty", got)
			}
		})
	}
}

func TestKeyword_SkipsDirectories(t *testing.T) {
	dir := writeKB(t, map[string]string{"a.txt": "applicant.age defined\n"})
	if err := os.Mkdir(filepath.Join(dir, "applicant.age"), 0o755); err != nil {
		t.Fatal(err)
	}

	snippets, err := Keyword{}.Search(t.Context(), "applicant.age", dir)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(snippets) != 1 {
		t.Errorf("Search = %+v, want one snippet", snippets)
	}
}
