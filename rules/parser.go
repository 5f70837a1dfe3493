// Package rules extracts the structure of MVEL-style business rules and
// flags common authoring problems.
//
// The parser is heuristic: it understands if / else if / else chains,
// brace and parenthesis nesting, string literals and comments, and treats
// everything else as opaque statements. It never fails; unrecognized input
// simply yields fewer branches.
package rules

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/pithecene-io/rulelens/types"
)

var (
	identRE   = regexp.MustCompile(`\b[a-zA-Z_]\w*(?:\.[a-zA-Z_]\w*)*\b`)
	assignRE  = regexp.MustCompile(`^([a-zA-Z_]\w*(?:\.[a-zA-Z_]\w*)*)\s*[-+*/%]?=(?:[^=]|$)`)
	stringsRE = regexp.MustCompile(`"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`)
)

var keywords = map[string]struct{}{
	"if": {}, "else": {}, "return": {}, "true": {}, "false": {}, "null": {}, "new": {},
	"for": {}, "foreach": {}, "while": {}, "switch": {}, "case": {}, "break": {},
	"continue": {}, "def": {},
}

// Parser extracts rule structure. The zero value is ready to use.
type Parser struct{}

// Parse extracts the structure of raw. It only fails if ctx is done.
func (Parser) Parse(ctx context.Context, raw string) (types.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return types.Extraction{}, err
	}
	return Extract(raw), nil
}

// Extract parses raw rule text.
func Extract(raw string) types.Extraction {
	p := &parser{
		variables: make(map[string]struct{}),
		outputs:   make(map[string]struct{}),
	}
	globals := []string{}
	p.block(newScanner(stripComments(raw)), &globals, true)

	for out := range p.outputs {
		delete(p.variables, out)
	}

	branches := p.branches
	if branches == nil {
		branches = []types.Branch{}
	}
	return types.Extraction{
		Globals:   globals,
		Branches:  branches,
		Variables: sortedKeys(p.variables),
		Outputs:   sortedKeys(p.outputs),
	}
}

type parser struct {
	branches  []types.Branch
	variables map[string]struct{}
	outputs   map[string]struct{}
}

// block parses statements until the scanner is exhausted. At top level,
// conditional arms become branches and plain statements become globals;
// nested arms are flattened into actions.
func (p *parser) block(s *scanner, actions *[]string, top bool) {
	for {
		s.skipSeparators()
		if s.eof() {
			return
		}
		switch {
		case s.peek() == '}':
			s.pos++
		case s.peek() == '{':
			p.block(newScanner(s.balanced('{', '}')), actions, top)
		case s.atWord("if"):
			s.pos += len("if")
			p.ifChain(s, actions, top)
		case s.atWord("else"):
			// Dangling else: treat as the default arm of an implicit chain.
			s.pos += len("else")
			p.elseArm(s, actions, top)
		case top && s.atWord("def"):
			s.skipDef()
		default:
			p.record(s.statement(), actions)
		}
	}
}

// ifChain parses "(cond) body" followed by any else if / else arms.
// The scanner is positioned just past the "if" keyword.
func (p *parser) ifChain(s *scanner, actions *[]string, top bool) {
	p.arm(p.condition(s), p.body(s), actions, top)
	p.elseArms(s, actions, top)
}

// elseArms consumes a following "else" arm, if any, recursing through else if.
func (p *parser) elseArms(s *scanner, actions *[]string, top bool) {
	save := s.pos
	s.skipSpace()
	if s.eof() || !s.atWord("else") {
		s.pos = save
		return
	}
	s.pos += len("else")
	p.elseArm(s, actions, top)
}

// elseArm parses what follows "else". The scanner is just past the keyword.
func (p *parser) elseArm(s *scanner, actions *[]string, top bool) {
	s.skipSpace()
	if !s.eof() && s.atWord("if") {
		s.pos += len("if")
		p.ifChain(s, actions, top)
		return
	}
	p.arm(types.DefaultCondition, p.body(s), actions, top)
}

func (p *parser) condition(s *scanner) string {
	s.skipSpace()
	if s.eof() || s.peek() != '(' {
		return ""
	}
	cond := strings.Join(strings.Fields(s.balanced('(', ')')), " ")
	p.idents(cond)
	return cond
}

func (p *parser) body(s *scanner) string {
	s.skipSpace()
	if s.eof() {
		return ""
	}
	if s.peek() == '{' {
		return s.balanced('{', '}')
	}
	return s.statement()
}

func (p *parser) arm(cond, body string, actions *[]string, top bool) {
	armActions := []string{}
	p.block(newScanner(body), &armActions, false)

	if top {
		p.branches = append(p.branches, types.Branch{Condition: cond, Actions: armActions})
		return
	}
	marker := "if (" + cond + ")"
	if cond == types.DefaultCondition {
		marker = "else"
	}
	*actions = append(*actions, marker)
	*actions = append(*actions, armActions...)
}

func (p *parser) record(stmt string, actions *[]string) {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return
	}
	p.idents(stmt)
	if m := assignRE.FindStringSubmatch(stmt); m != nil {
		p.outputs[m[1]] = struct{}{}
	}
	*actions = append(*actions, stmt)
}

// idents records referenced identifiers, ignoring string contents and keywords.
func (p *parser) idents(text string) {
	for _, id := range identRE.FindAllString(stringsRE.ReplaceAllString(text, `""`), -1) {
		if _, kw := keywords[id]; kw {
			continue
		}
		p.variables[id] = struct{}{}
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
