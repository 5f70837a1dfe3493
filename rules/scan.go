package rules

import "strings"

// scanner walks rule source with awareness of string literals and bracket nesting.
type scanner struct {
	src string
	pos int
}

func newScanner(src string) *scanner {
	return &scanner{src: src}
}

func (s *scanner) eof() bool {
	return s.pos >= len(s.src)
}

func (s *scanner) peek() byte {
	return s.src[s.pos]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// skipSpace skips whitespace.
func (s *scanner) skipSpace() {
	for !s.eof() && isSpace(s.peek()) {
		s.pos++
	}
}

// skipSeparators skips whitespace and empty statements.
func (s *scanner) skipSeparators() {
	for !s.eof() && (isSpace(s.peek()) || s.peek() == ';') {
		s.pos++
	}
}

// atWord reports whether the keyword w starts at pos as a whole word.
func (s *scanner) atWord(w string) bool {
	if !strings.HasPrefix(s.src[s.pos:], w) {
		return false
	}
	end := s.pos + len(w)
	return end == len(s.src) || !isIdentChar(s.src[end])
}

// skipString returns the index just past the string literal starting at i.
// Unterminated literals run to the end of input.
func skipString(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(src)
}

// balanced consumes the group opened at pos and returns its inner text.
// An unclosed group consumes the rest of the input.
func (s *scanner) balanced(open, close byte) string {
	start := s.pos
	depth := 0
	for i := start; i < len(s.src); {
		c := s.src[i]
		switch {
		case c == '"' || c == '\'':
			i = skipString(s.src, i)
			continue
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				s.pos = i + 1
				return s.src[start+1 : i]
			}
		}
		i++
	}
	s.pos = len(s.src)
	return s.src[start+1:]
}

// statement consumes one statement: up to ';' or a newline outside any
// bracket, or up to an unmatched '}' (left in place). The terminator is consumed.
func (s *scanner) statement() string {
	start := s.pos
	depth := 0
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch c {
		case '"', '\'':
			s.pos = skipString(s.src, s.pos)
			continue
		case '(', '[', '{':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case '}':
			if depth == 0 {
				return s.src[start:s.pos]
			}
			depth--
		case ';', '\n':
			if depth == 0 {
				text := s.src[start:s.pos]
				s.pos++
				return text
			}
		}
		s.pos++
	}
	return s.src[start:]
}

// skipDef skips a helper definition: its signature and body block, or the
// rest of the statement when there is no body.
func (s *scanner) skipDef() {
	s.pos += len("def")
	for !s.eof() {
		switch c := s.peek(); c {
		case '"', '\'':
			s.pos = skipString(s.src, s.pos)
		case '(':
			s.balanced('(', ')')
		case '{':
			s.balanced('{', '}')
			return
		case ';', '\n':
			s.pos++
			return
		default:
			s.pos++
		}
	}
}

// stripComments removes // and /* */ comments outside string literals.
// Line comments keep their newline so statement boundaries survive.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			end := skipString(src, i)
			b.WriteString(src[i:end])
			i = end
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			nl := strings.IndexByte(src[i:], '\n')
			if nl < 0 {
				return b.String()
			}
			i += nl
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += 2 + end + 2
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}
