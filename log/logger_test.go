package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/rulelens/types"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_RunFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(&types.RunMeta{RunID: "run-1", Mode: "explain"}, &buf, zapcore.DebugLevel)

	l.Info("step completed", map[string]any{"step": "parse"})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	if entry["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", entry["run_id"])
	}
	if entry["mode"] != "explain" {
		t.Errorf("mode = %v, want explain", entry["mode"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["message"] != "step completed" {
		t.Errorf("message = %v", entry["message"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["step"] != "parse" {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_NoRunMeta(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(nil, &buf, zapcore.DebugLevel)
	l.Warn("cache unavailable", nil)

	entry := decodeLines(t, &buf)[0]
	if _, ok := entry["run_id"]; ok {
		t.Error("expected no run_id without run meta")
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
}

func TestLogger_ForRunAndLevel(t *testing.T) {
	var buf bytes.Buffer
	base := newLoggerWithWriter(nil, &buf, zapcore.InfoLevel)
	l := base.ForRun(&types.RunMeta{RunID: "run-2", Mode: "diff"})

	l.Debug("dropped", nil)
	l.Error("kept", nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected debug to be filtered, got %d lines", len(lines))
	}
	if lines[0]["run_id"] != "run-2" || lines[0]["mode"] != "diff" {
		t.Errorf("run fields missing: %v", lines[0])
	}
}

func TestParseLevel_Fallback(t *testing.T) {
	if got := parseLevel("bogus"); got != zapcore.InfoLevel {
		t.Errorf("parseLevel(bogus) = %v, want info", got)
	}
	if got := parseLevel("warn"); got != zapcore.WarnLevel {
		t.Errorf("parseLevel(warn) = %v, want warn", got)
	}
}
