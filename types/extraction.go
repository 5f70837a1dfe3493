// Package types defines core domain types for rulelens.
//
//nolint:revive // types is a common Go package naming convention
package types

// DefaultCondition is the condition recorded for an else branch.
const DefaultCondition = "DEFAULT"

// Branch is one conditional arm of a rule.
type Branch struct {
	// Condition is the text between the if parentheses, or DEFAULT.
	Condition string `json:"condition" msgpack:"condition"`
	// Actions are the statements executed when the branch is taken, in order.
	Actions []string `json:"actions" msgpack:"actions"`
}

// Extraction is the structured form of a parsed rule.
// An Extraction is immutable once produced; callers must not modify the slices.
type Extraction struct {
	// Globals are statements outside any if/else block, in source order.
	Globals []string `json:"globals" msgpack:"globals"`
	// Branches are the conditional branches, in source order.
	Branches []Branch `json:"branches" msgpack:"branches"`
	// Variables are referenced identifiers that are not outputs (sorted, unique).
	Variables []string `json:"variables" msgpack:"variables"`
	// Outputs are assignment targets (sorted, unique).
	Outputs []string `json:"outputs" msgpack:"outputs"`
}

// HasDefault reports whether any branch is the DEFAULT branch.
func (e *Extraction) HasDefault() bool {
	for _, b := range e.Branches {
		if b.Condition == DefaultCondition {
			return true
		}
	}
	return false
}
