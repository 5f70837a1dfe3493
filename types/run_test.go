package types //nolint:revive // types is a valid package name

import (
	"testing"
)

func TestRunMeta_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    RunMeta
		wantErr bool
	}{
		{"valid", RunMeta{RunID: "run-001", Mode: "explain"}, false},
		{"missing run id", RunMeta{Mode: "explain"}, true},
		{"missing mode", RunMeta{RunID: "run-001"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtraction_HasDefault(t *testing.T) {
	ex := Extraction{Branches: []Branch{{Condition: "x > 1"}}}
	if ex.HasDefault() {
		t.Error("expected no default branch")
	}
	ex.Branches = append(ex.Branches, Branch{Condition: DefaultCondition})
	if !ex.HasDefault() {
		t.Error("expected default branch")
	}
}
