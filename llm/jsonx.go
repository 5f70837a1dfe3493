package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a reply holds no decodable JSON value.
var ErrNoJSON = errors.New("llm: reply did not contain valid JSON")

// decodeReply decodes the JSON value delimited by openCh and closeCh from a model
// reply. A strict decode of the whole reply is tried first; on failure the
// first balanced value is scanned out of the surrounding text. recovered
// reports that the second phase was needed.
func decodeReply(raw string, openCh, closeCh byte, v any) (recovered bool, err error) {
	text := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return false, nil
	}
	candidate, ok := scanValue(text, openCh, closeCh)
	if !ok {
		return false, ErrNoJSON
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return false, errors.Join(ErrNoJSON, err)
	}
	return true, nil
}

// scanValue returns the first balanced openCh...closeCh span of s, ignoring
// delimiters inside JSON strings.
func scanValue(s string, openCh, closeCh byte) (string, bool) {
	for start := strings.IndexByte(s, openCh); start != -1; {
		depth := 0
		inString, escaped := false, false
		for i := start; i < len(s); i++ {
			ch := s[i]
			if escaped {
				escaped = false
				continue
			}
			if inString {
				switch ch {
				case '\\':
					escaped = true
				case '"':
					inString = false
				}
				continue
			}
			switch ch {
			case '"':
				inString = true
			case openCh:
				depth++
			case closeCh:
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
		// Unbalanced from this start; try the next opening delimiter.
		next := strings.IndexByte(s[start+1:], openCh)
		if next == -1 {
			break
		}
		start += next + 1
	}
	return "", false
}

// stringify renders arbitrary JSON values as strings; models sometimes return
// structured items where text is expected.
func stringify(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
			continue
		}
		b, err := json.Marshal(item)
		if err != nil {
			continue
		}
		out = append(out, string(b))
	}
	return out
}
