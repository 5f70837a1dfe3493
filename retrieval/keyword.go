// Package retrieval finds knowledge-base lines relevant to a rule by
// plain keyword matching. There are no embeddings and no index; the
// knowledge base is a directory of text files read on every call.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Defaults for Keyword.
const (
	DefaultKBDir       = "kb"
	DefaultMaxSnippets = 5
	DefaultMinTokenLen = 6
)

// Header starts every non-empty result.
const Header = "Knowledge base snippets:"

// Keyword retrieves lines containing any sufficiently long token of the query.
type Keyword struct {
	// MaxSnippets caps the number of lines returned (default 5).
	MaxSnippets int
	// MinTokenLen drops short, noisy query tokens (default 6).
	MinTokenLen int
}

// Snippet is one matching knowledge-base line.
type Snippet struct {
	File string
	Line string
}

// Retrieve returns matching snippets formatted as
//
//	Knowledge base snippets:
//	- (<file>) <line>
//
// or "" when the directory is missing, empty, or nothing matches.
func (k Keyword) Retrieve(ctx context.Context, query, kbDir string) (string, error) {
	snippets, err := k.Search(ctx, query, kbDir)
	if err != nil || len(snippets) == 0 {
		return "", err
	}
	lines := make([]string, 0, len(snippets)+1)
	lines = append(lines, Header)
	for _, s := range snippets {
		lines = append(lines, fmt.Sprintf("- (%s) %s", s.File, s.Line))
	}
	return strings.Join(lines, "\n"), nil
}

// Search returns unique matching lines in file-name then line order.
func (k Keyword) Search(ctx context.Context, query, kbDir string) ([]Snippet, error) {
	if kbDir == "" {
		kbDir = DefaultKBDir
	}
	limit := k.MaxSnippets
	if limit <= 0 {
		limit = DefaultMaxSnippets
	}

	tokens := Tokens(query, k.MinTokenLen)
	if len(tokens) == 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(kbDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge base %s: %w", kbDir, err)
	}

	var out []Snippet
	seen := make(map[Snippet]struct{})
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(kbDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read knowledge base file %s: %w", e.Name(), err)
		}
		for _, line := range strings.Split(strings.ToValidUTF8(string(data), "�"), "\n") {
			line = strings.TrimSpace(line)
			if !containsAny(line, tokens) {
				continue
			}
			s := Snippet{File: e.Name(), Line: line}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
			if len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Tokens splits query on whitespace, trims bracket and separator punctuation,
// and keeps tokens of at least minLen bytes (default 6).
func Tokens(query string, minLen int) []string {
	if minLen <= 0 {
		minLen = DefaultMinTokenLen
	}
	var out []string
	for _, f := range strings.Fields(query) {
		t := strings.Trim(f, "(){}[];,.")
		if len(t) >= minLen {
			out = append(out, t)
		}
	}
	return out
}

func containsAny(line string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(line, t) {
			return true
		}
	}
	return false
}
