// Package sql provides T-SQL text utilities: parameter detection, heuristic
// SELECT-list parsing, field name sanitization and query normalization.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyQuery indicates the query text is blank.
	ErrEmptyQuery = errors.New("query text is empty")

	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// NormalizeQuery trims whitespace and any trailing semicolons.
func NormalizeQuery(query string) string {
	query = strings.TrimSpace(query)
	for strings.HasSuffix(query, ";") {
		query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	}
	return query
}

// ValidateQueryText checks that a query is non-blank and holds a single
// statement, and returns its normalized form. Semicolons inside string
// literals, quoted identifiers and comments are ignored.
func ValidateQueryText(query string) (string, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return "", ErrEmptyQuery
	}
	if hasStatementSeparator(normalized) {
		return "", ErrMultipleStatements
	}
	return normalized, nil
}

func hasStatementSeparator(query string) bool {
	found := false
	scanCode(query, 0, func(i, _ int) bool {
		if query[i] == ';' {
			found = true
			return false
		}
		return true
	})
	return found
}
