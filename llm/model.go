// Package llm implements the model-backed collaborators of a run: explain,
// verify, rewrite, reflect, test generation, diff and agentic planning.
//
// Every collaborator talks to an llms.Model from langchaingo. Ollama is the
// production provider; the scripted Mock serves offline runs and tests.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderMock   = "mock"
)

// Defaults for the ollama provider.
const (
	DefaultModel     = "llama3.1"
	DefaultServerURL = "http://localhost:11434"
)

// ErrEmptyResponse is returned when the model produced no choices.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// Config selects and tunes the model.
type Config struct {
	Provider    string
	Model       string
	ServerURL   string
	Temperature float64
}

// NewModel builds the llms.Model named by cfg.Provider.
func NewModel(cfg Config) (llms.Model, error) {
	switch cfg.Provider {
	case "", ProviderOllama:
		model := cfg.Model
		if model == "" {
			model = DefaultModel
		}
		opts := []ollama.Option{ollama.WithModel(model)}
		if cfg.ServerURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
		}
		return ollama.New(opts...)
	case ProviderMock:
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (want %s or %s)", cfg.Provider, ProviderOllama, ProviderMock)
	}
}

// prompt is a system/user message pair.
type prompt struct {
	system string
	user   string
	// json asks the provider for a JSON-only reply.
	json bool
}

func (p prompt) messages() []llms.MessageContent {
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, p.system),
		llms.TextParts(llms.ChatMessageTypeHuman, p.user),
	}
}

// generate sends p and returns the trimmed text of the first choice.
func generate(ctx context.Context, model llms.Model, temperature float64, p prompt) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if p.json {
		opts = append(opts, llms.WithJSONMode())
	}
	resp, err := model.GenerateContent(ctx, p.messages(), opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
