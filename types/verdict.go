package types

// Verdict is the verifier's assessment of an explanation.
type Verdict struct {
	OK            bool     `json:"ok"`
	Missing       []string `json:"missing"`
	RewriteNeeded bool     `json:"rewrite_needed"`
	// Recovered is true when the verdict was salvaged from free text
	// rather than decoded from a strict JSON reply.
	Recovered bool `json:"recovered,omitempty"`
}

// Reflection is the reflector's review of an explanation.
type Reflection struct {
	OK        bool     `json:"ok"`
	Issues    []string `json:"issues"`
	Recovered bool     `json:"recovered,omitempty"`
}

// TestCase is a generated test case covering one rule branch.
type TestCase struct {
	Name     string         `json:"name"`
	Input    map[string]any `json:"input"`
	Expected map[string]any `json:"expected"`
	Note     string         `json:"note,omitempty"`
}

// MemoryItemReflection is the type tag of reflection entries in long-term memory.
const MemoryItemReflection = "reflection_issue"

// MemoryItem is one entry appended to the long-term memory store.
type MemoryItem struct {
	Type     string   `json:"type"`
	Issues   []string `json:"issues"`
	RuleHash string   `json:"rule_hash,omitempty"`
	RunID    string   `json:"run_id,omitempty"`
	Ts       string   `json:"ts,omitempty"`
}
