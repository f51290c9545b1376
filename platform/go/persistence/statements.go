package persistence

import "strings"

// SplitStatements breaks a SQL script into individual statements on top-level semicolons.
// Semicolons inside single-quoted strings (including E'...' escape strings), double-quoted
// identifiers, dollar-quoted bodies and comments are not treated as separators.
// Empty statements are dropped.
func SplitStatements(script string) []string {
	var (
		out     []string
		current strings.Builder
		dollar  string // active dollar-quote tag, e.g. "$$" or "$body$"
	)

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		current.Reset()
		if stmt != "" && !onlyComments(stmt) {
			out = append(out, stmt)
		}
	}

	for i := 0; i < len(script); i++ {
		c := script[i]

		if dollar != "" {
			if strings.HasPrefix(script[i:], dollar) {
				current.WriteString(dollar)
				i += len(dollar) - 1
				dollar = ""
				continue
			}
			current.WriteByte(c)
			continue
		}

		switch {
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			end := strings.IndexByte(script[i:], '\n')
			if end < 0 {
				end = len(script) - i
			}
			current.WriteString(script[i : i+end])
			i += end - 1
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				current.WriteString(script[i:])
				i = len(script)
				continue
			}
			current.WriteString(script[i : i+2+end+2])
			i += 2 + end + 1
		case c == '\'' || c == '"':
			end := closingQuote(script, i, c == '\'' && escapeString(script, i))
			current.WriteString(script[i : end+1])
			i = end
		case c == '$':
			if tag, ok := dollarTag(script[i:]); ok {
				dollar = tag
				current.WriteString(tag)
				i += len(tag) - 1
				continue
			}
			current.WriteByte(c)
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()

	return out
}

// closingQuote returns the index of the quote closing the literal opened at start.
// Doubled quotes are escapes; with backslashes set, a backslash also escapes the next byte.
// An unterminated literal runs to the end of the script.
func closingQuote(script string, start int, backslashes bool) int {
	q := script[start]
	for j := start + 1; j < len(script); j++ {
		if backslashes && script[j] == '\\' {
			j++
			continue
		}
		if script[j] != q {
			continue
		}
		if j+1 < len(script) && script[j+1] == q {
			j++
			continue
		}
		return j
	}
	return len(script) - 1
}

// escapeString reports whether the quote at i opens an E'...' literal.
func escapeString(script string, i int) bool {
	if i == 0 || (script[i-1] != 'E' && script[i-1] != 'e') {
		return false
	}
	return i == 1 || !identByte(script[i-2])
}

func identByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || j > 1 && c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}

func onlyComments(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
