package llm

import (
	"context"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Mock is a scripted llms.Model. Replies are chosen by the first rule whose
// substring occurs in the prompt; rules added later take precedence over
// earlier ones and over the built-in defaults.
type Mock struct {
	mu      sync.Mutex
	rules   []mockRule
	err     error
	prompts []string
}

type mockRule struct {
	match string
	reply string
}

var _ llms.Model = (*Mock)(nil)

// defaultRules give a coherent offline run.
var defaultRules = []mockRule{
	{"planning agent", `{"steps": ["parse", "static_checks", "retrieve_context", "explain", "verify", "rewrite"]}`},
	{"strict QA verifier", `{"ok": true, "missing": [], "rewrite_needed": false}`},
	{"strict reviewer", `{"ok": true, "issues": []}`},
	{"generate test cases", `[]`},
	{"rules comparison analyst", "Summary: the rule changed.\n- Behavior differs between the old and new rule."},
	{"rewrite explanations", "Summary: revised explanation of the rule."},
	{"", "Summary: this rule assigns an outcome based on its conditions.\n- Otherwise, the default outcome applies."},
}

// NewMock creates a Mock with the default replies.
func NewMock() *Mock {
	return &Mock{}
}

// On registers reply for prompts containing match.
func (m *Mock) On(match, reply string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{match: match, reply: reply})
	return m
}

// Fail makes every call return err.
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Calls returns the number of calls made.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns the flattened prompts received, in call order.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// GenerateContent implements llms.Model.
func (m *Mock) GenerateContent(ctx context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				b.WriteString(text.Text)
				b.WriteString("\n")
			}
		}
	}
	p := b.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.reply(p)}},
	}, nil
}

// Call implements the legacy llms.Model method.
func (m *Mock) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *Mock) reply(p string) string {
	for i := len(m.rules) - 1; i >= 0; i-- {
		if strings.Contains(p, m.rules[i].match) {
			return m.rules[i].reply
		}
	}
	for _, r := range defaultRules {
		if strings.Contains(p, r.match) {
			return r.reply
		}
	}
	return ""
}
