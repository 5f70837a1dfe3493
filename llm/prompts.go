package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pithecene-io/rulelens/memory"
	"github.com/pithecene-io/rulelens/types"
)

const plannerUser = `You are given a user mode and a list of allowed steps.

Allowed steps:
- parse
- static_checks
- retrieve_context
- explain
- verify
- rewrite
- generate_tests
- diff

Rules:
- mode=explain -> [parse, retrieve_context, explain]
- mode=verify -> [parse, static_checks, retrieve_context, explain, verify, rewrite]
- mode=tests -> [parse, generate_tests]
- mode=diff -> [parse, parse, diff]
- mode=agentic -> choose the safest default (like verify)

Return JSON only in this format:
{ "steps": ["step1", "step2", ...] }

mode: %s`

const explainUser = `Convert the following extracted rule structure into clear English.

Requirements:
- Start with a 1-2 sentence Summary
- Then list Decision logic as bullet points
- One bullet per branch, in order
- Use 'Otherwise,' for the DEFAULT branch
- Use provided context to define business terms if relevant

Context:
%s

Rule extraction (JSON):
%s`

const verifyUser = `Compare the English explanation against the rule extraction.

Check for:
- Missing branches
- Missing outputs
- Incorrect conditions

Return JSON only in this format:
{
  "ok": true | false,
  "missing": ["description of missing item", ...],
  "rewrite_needed": true | false
}

Rule extraction:
%s

English explanation:
%s`

const rewriteUser = `Rewrite the explanation so that it fully matches the rule extraction.

Rules:
- Cover ALL branches and outputs
- Keep it concise and clear
- Do not mention verification or errors

Rule extraction:
%s

Current explanation:
%s

Missing or incorrect items:
%s`

const diffUser = `Compare the OLD rule and the NEW rule and explain how behavior changed.

Output format:
- Short summary of changes
- Bullet points describing behavioral differences
- Mention added, removed, or modified conditions

OLD rule extraction:
%s

NEW rule extraction:
%s`

const testsUser = `Given the rule extraction below, generate test cases that cover ALL branches.

Requirements:
1) One test case per branch, including the DEFAULT branch.
2) Inputs must use the same field paths referenced in the rule conditions/actions (e.g., applicant.age).
3) Expected must include ALL output assignments performed by the branch taken (do NOT return an empty expected if the rule assigns outputs).
4) Prefer boundary values (e.g., equals threshold) where relevant.

Return STRICT JSON array with this schema:
[
  {
    "name": "...",
    "input": {"...": "..."},
    "expected": {"...": "..."}
  }
]

Rule extraction:
%s`

const reflectUser = `Check whether the English explanation fully matches the rule extraction.
Return JSON like:
{
  "ok": true,
  "issues": ["..."]
}

Rule extraction:
%s

English explanation:
%s
`

func plannerPrompt(mode string) prompt {
	return prompt{
		system: "You are a planning agent. Output STRICT JSON only. Do not explain your reasoning.",
		user:   fmt.Sprintf(plannerUser, mode),
		json:   true,
	}
}

// explainPrompt addresses the reader described by profile.
func explainPrompt(profile memory.Profile, ex types.Extraction, kbContext string) prompt {
	system := fmt.Sprintf("You write for %s stakeholders. Do not mention code, syntax, or programming terms.", profile.Tone)
	if profile.Style != "" {
		system += fmt.Sprintf(" Keep the writing %s.", profile.Style)
	}
	return prompt{
		system: system,
		user:   fmt.Sprintf(explainUser, kbContext, extractionJSON(ex)),
	}
}

func verifyPrompt(ex types.Extraction, english string) prompt {
	return prompt{
		system: "You are a strict QA verifier. Be precise. Output STRICT JSON only.",
		user:   fmt.Sprintf(verifyUser, extractionJSON(ex), english),
		json:   true,
	}
}

func rewritePrompt(profile memory.Profile, ex types.Extraction, english string, missing []string) prompt {
	items := "(none)"
	if len(missing) > 0 {
		items = strings.Join(missing, "\n")
	}
	return prompt{
		system: fmt.Sprintf("You rewrite explanations for %s stakeholders.", profile.Tone),
		user:   fmt.Sprintf(rewriteUser, extractionJSON(ex), english, items),
	}
}

func diffPrompt(old, updated types.Extraction) prompt {
	return prompt{
		system: fmt.Sprintf("You are a rules comparison analyst for %s stakeholders.", memory.DefaultProfile().Tone),
		user:   fmt.Sprintf(diffUser, extractionJSON(old), extractionJSON(updated)),
	}
}

func testsPrompt(ex types.Extraction) prompt {
	return prompt{
		system: "You generate test cases for business rules. Output STRICT JSON only (no markdown, no commentary).",
		user:   fmt.Sprintf(testsUser, extractionJSON(ex)),
	}
}

func reflectPrompt(ex types.Extraction, english string) prompt {
	return prompt{
		system: "You are a strict reviewer. Output STRICT JSON only.",
		user:   fmt.Sprintf(reflectUser, extractionJSON(ex), english),
		json:   true,
	}
}

// extractionJSON renders ex as indented JSON without HTML escaping, so
// conditions like a < b reach the model verbatim.
func extractionJSON(ex types.Extraction) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ex); err != nil {
		return "{}"
	}
	return strings.TrimSpace(buf.String())
}
