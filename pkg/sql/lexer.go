package sql

import (
	"strings"
	"unicode"
)

// scanCode walks query from start and calls visit for every byte offset that
// lies outside string literals, quoted identifiers, bracketed identifiers and
// comments. depth is the parenthesis depth relative to start and may go
// negative when the scan leaves an enclosing group. Returning false from
// visit stops the scan.
func scanCode(query string, start int, visit func(i, depth int) bool) {
	depth := 0
	n := len(query)

	for i := start; i < n; i++ {
		ch := query[i]
		var next byte
		if i+1 < n {
			next = query[i+1]
		}

		switch {
		case ch == '-' && next == '-':
			for i < n && query[i] != '\n' && query[i] != '\r' {
				i++
			}
			continue
		case ch == '/' && next == '*':
			end := strings.Index(query[i+2:], "*/")
			if end < 0 {
				return
			}
			i += end + 3
			continue
		case ch == '\'':
			i = skipQuoted(query, i, '\'')
			continue
		case ch == '"':
			i = skipQuoted(query, i, '"')
			continue
		case ch == '[':
			i = skipQuoted(query, i, ']')
			continue
		}

		if ch == '(' {
			if !visit(i, depth) {
				return
			}
			depth++
			continue
		}
		if ch == ')' {
			depth--
		}
		if !visit(i, depth) {
			return
		}
	}
}

// skipQuoted returns the offset of the closing delimiter of the quoted run
// that opens at query[open]. A doubled closing delimiter is an escape.
func skipQuoted(query string, open int, closeCh byte) int {
	for j := open + 1; j < len(query); j++ {
		if query[j] != closeCh {
			continue
		}
		if j+1 < len(query) && query[j+1] == closeCh {
			j++
			continue
		}
		return j
	}
	return len(query) - 1
}

// blankComments replaces each comment in query with spaces, leaving offsets
// and the text inside literals and quoted identifiers unchanged. An
// unterminated block comment runs to the end of the input.
func blankComments(query string) string {
	out := []byte(query)
	n := len(out)

	for i := 0; i < n; i++ {
		ch := out[i]
		var next byte
		if i+1 < n {
			next = out[i+1]
		}

		switch {
		case ch == '-' && next == '-':
			for i < n && out[i] != '\n' && out[i] != '\r' {
				out[i] = ' '
				i++
			}
		case ch == '/' && next == '*':
			end := strings.Index(query[i+2:], "*/")
			stop := n
			if end >= 0 {
				stop = i + end + 4
			}
			for j := i; j < stop; j++ {
				if out[j] != '\n' {
					out[j] = ' '
				}
			}
			i = stop - 1
		case ch == '\'':
			i = skipQuoted(query, i, '\'')
		case ch == '"':
			i = skipQuoted(query, i, '"')
		case ch == '[':
			i = skipQuoted(query, i, ']')
		}
	}
	return string(out)
}

func isWordByte(b byte) bool {
	return b == '_' || b == '@' || b == '#' || b == '$' ||
		(b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || b >= 0x80
}

// matchKeywords reports whether the keyword sequence (e.g. "ORDER", "BY")
// starts at query[i] on word boundaries, separated by whitespace. It returns
// the offset just past the last keyword.
func matchKeywords(query string, i int, words ...string) (int, bool) {
	if i > 0 && isWordByte(query[i-1]) {
		return 0, false
	}
	pos := i
	for w, word := range words {
		if w > 0 {
			start := pos
			for pos < len(query) && unicode.IsSpace(rune(query[pos])) {
				pos++
			}
			if pos == start {
				return 0, false
			}
		}
		if len(query)-pos < len(word) || !strings.EqualFold(query[pos:pos+len(word)], word) {
			return 0, false
		}
		pos += len(word)
	}
	if pos < len(query) && isWordByte(query[pos]) {
		return 0, false
	}
	return pos, true
}
