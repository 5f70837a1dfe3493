package rules

import (
	"context"
	"fmt"

	"github.com/pithecene-io/rulelens/types"
)

// Static check messages.
const (
	IssueNoBranches = "No branches detected (parser may have failed)."
	IssueNoDefault  = "No DEFAULT/else branch found; rule may be partial or relies on fallthrough."
	IssueNoOutputs  = "No output assignments detected."
)

// Checker flags structural problems in an extraction. The zero value is ready to use.
type Checker struct{}

// Check returns the issues found in ex, or an empty list.
func (Checker) Check(ctx context.Context, ex types.Extraction) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return StaticIssues(ex), nil
}

// StaticIssues runs every check. A rule without branches reports only that.
func StaticIssues(ex types.Extraction) []string {
	issues := []string{}
	if len(ex.Branches) == 0 {
		return append(issues, IssueNoBranches)
	}
	if !ex.HasDefault() {
		issues = append(issues, IssueNoDefault)
	}
	for i, b := range ex.Branches {
		if len(b.Actions) == 0 {
			issues = append(issues, fmt.Sprintf("Branch %d has no actions.", i))
		}
	}
	if len(ex.Outputs) == 0 {
		issues = append(issues, IssueNoOutputs)
	}
	return issues
}
