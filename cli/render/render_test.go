package render

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	if _, err := ParseFormat("csv"); err == nil || !strings.Contains(err.Error(), "json, table, or yaml") {
		t.Errorf("error should list valid formats, got %v", err)
	}
}

type runRow struct {
	RunID    string    `json:"run_id"`
	Mode     string    `json:"mode"`
	Steps    []string  `json:"steps"`
	Started  time.Time `json:"started_at"`
	internal string
	Hidden   string `json:"-"`
}

func TestRenderer_JSON_KeepsHTML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatJSON, false, &buf)
	if err := r.Render(map[string]string{"rule": "age < 18 && x > 2"}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "age < 18 && x > 2") {
		t.Errorf("JSON output escaped HTML: %s", buf.String())
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatYAML, false, &buf)
	if err := r.Render(map[string]string{"key": "value"}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := buf.String(); got != "key: value\n" {
		t.Errorf("YAML = %q", got)
	}
}

func TestRenderer_Table_Struct(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	row := runRow{
		RunID:    "run-1",
		Mode:     "explain",
		Steps:    []string{"parse", "explain"},
		Started:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		internal: "x",
		Hidden:   "secret",
	}
	if err := r.Render(&row); err != nil {
		t.Fatalf("Render: %v", err)
	}

	got := buf.String()
	for _, want := range []string{"run_id:", "run-1", "steps:", "parse, explain", "2026-05-01T10:00:00Z"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "secret") || strings.Contains(got, "internal") {
		t.Errorf("table leaked hidden fields:\n%s", got)
	}
}

func TestRenderer_Table_MultilineBlock(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	data := struct {
		RunID  string `json:"run_id"`
		Output string `json:"output"`
	}{"run-1", "Line one.\nLine two."}
	if err := r.Render(data); err != nil {
		t.Fatalf("Render: %v", err)
	}

	want := "run_id:  run-1\n\noutput:\n  Line one.\n  Line two.\n"
	if buf.String() != want {
		t.Errorf("table =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)

	rows := []runRow{
		{RunID: "run-1", Mode: "explain"},
		{RunID: "run-2", Mode: "diff"},
	}
	if err := r.Render(rows); err != nil {
		t.Fatalf("Render: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "run_id") || !strings.Contains(lines[2], "diff") {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

func TestRenderer_Table_MapSortedKeys(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, true, &buf)
	if err := r.Render(map[string]int{"b": 2, "a": 1, "c": 3}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := buf.String(); got != "a:  1\nb:  2\nc:  3\n" {
		t.Errorf("table = %q", got)
	}
}

func TestRenderer_Table_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, false, &buf)
	if err := r.Render([]runRow{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("got %q", buf.String())
	}
}

func TestOneLine(t *testing.T) {
	long := strings.Repeat("é", 80)
	got := oneLine(long)
	if len([]rune(got)) != 60 || !strings.HasSuffix(got, "...") {
		t.Errorf("oneLine truncated badly: %q", got)
	}
	if oneLine("a\nb") != "a b" {
		t.Errorf("newlines not flattened")
	}
}

func TestRenderTUI_Unsupported(t *testing.T) {
	r := NewRendererWithWriter(FormatTable, false, &bytes.Buffer{})
	if err := r.RenderTUI("version", nil); err == nil {
		t.Fatal("expected error for unsupported view")
	}
}
