package rules

import (
	"reflect"
	"testing"

	"github.com/pithecene-io/rulelens/types"
)

func TestStaticIssues(t *testing.T) {
	tests := []struct {
		name string
		ex   types.Extraction
		want []string
	}{
		{
			name: "no branches reports only that",
			ex:   types.Extraction{Outputs: nil},
			want: []string{IssueNoBranches},
		},
		{
			name: "missing default and outputs",
			ex: types.Extraction{
				Branches: []types.Branch{{Condition: "x > 1", Actions: []string{"log(x)"}}},
			},
			want: []string{IssueNoDefault, IssueNoOutputs},
		},
		{
			name: "empty branches are numbered from zero",
			ex: types.Extraction{
				Branches: []types.Branch{
					{Condition: "a", Actions: []string{"y = 1"}},
					{Condition: "b"},
					{Condition: types.DefaultCondition},
				},
				Outputs: []string{"y"},
			},
			want: []string{"Branch 1 has no actions.", "Branch 2 has no actions."},
		},
		{
			name: "clean rule",
			ex: types.Extraction{
				Branches: []types.Branch{
					{Condition: "a", Actions: []string{"y = 1"}},
					{Condition: types.DefaultCondition, Actions: []string{"y = 2"}},
				},
				Outputs: []string{"y"},
			},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StaticIssues(tt.ex)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("StaticIssues = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChecker_ParsedScenarioHasNoIssues(t *testing.T) {
	ex := Extract(`if (applicant.age < 18) { decision = "DENY"; } else { decision = "APPROVE"; }`)

	issues, err := (Checker{}).Check(t.Context(), ex)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	for _, issue := range issues {
		if issue == IssueNoDefault || issue == IssueNoOutputs {
			t.Errorf("unexpected issue %q", issue)
		}
	}
	if len(issues) != 0 {
		t.Errorf("issues = %q, want none", issues)
	}
}
