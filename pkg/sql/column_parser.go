package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoProjection is returned when a query has no SELECT list to parse.
var ErrNoProjection = errors.New("no SELECT projection found")

// ParsedColumn represents a column extracted from a SELECT list.
type ParsedColumn struct {
	Name string // The alias or trailing identifier, unquoted
	Expr string // The full expression, e.g. "SUM(o.Total) AS Revenue"
}

var (
	// DISTINCT / ALL and TOP (n) [PERCENT] [WITH TIES] ahead of the first column.
	projectionPrefixPattern = regexp.MustCompile(`(?is)^\s*(?:(?:ALL|DISTINCT)\s+)?(?:TOP\s*(?:\([^)]*\)|\d+)(?:\s+PERCENT)?(?:\s+WITH\s+TIES)?\s+)?`)

	// "expr AS alias", alias may be bracketed or quoted.
	asAliasPattern = regexp.MustCompile(`(?is)\bAS\s+(\[[^\]]+\]|"[^"]+"|'[^']+'|\w+)\s*$`)

	// T-SQL "alias = expr".
	equalsAliasPattern = regexp.MustCompile(`(?s)^(\[[^\]]+\]|\w+)\s*=(?:[^=<>!]|$)`)

	// Trailing identifier, bracketed or double-quoted; the last part of a
	// dotted name.
	trailingIdentPattern = regexp.MustCompile(`(\[[^\]]+\]|"[^"]+"|\w+)\s*$`)
)

// projectionEndKeywords close a SELECT list at its own nesting level.
var projectionEndKeywords = [][]string{
	{"FROM"}, {"INTO"}, {"WHERE"}, {"GROUP", "BY"}, {"HAVING"}, {"ORDER", "BY"},
	{"UNION"}, {"EXCEPT"}, {"INTERSECT"}, {"OPTION"}, {"FOR"},
}

// ParseSelectColumns extracts the output columns of a query's outer SELECT
// list without consulting a database. It handles:
//   - Simple and table-qualified columns: SELECT id, u.name
//   - AS aliases, bracketed or quoted: SELECT SUM(x) AS [Total Sales]
//   - T-SQL alias assignment: SELECT Total = SUM(x)
//   - Implicit aliases: SELECT COUNT(*) total
//   - DISTINCT and TOP prefixes
//
// Expressions with no recoverable name are named Column{n} (1-based).
// Returns ErrNoProjection when the query has no SELECT keyword or an empty list.
func ParseSelectColumns(query string) ([]ParsedColumn, error) {
	projection, ok := extractProjection(query)
	if !ok {
		return nil, ErrNoProjection
	}

	prefix := projectionPrefixPattern.FindStringIndex(projection)
	if prefix != nil {
		projection = projection[prefix[1]:]
	}

	exprs := splitSelectColumns(projection)
	if len(exprs) == 0 {
		return nil, ErrNoProjection
	}

	result := make([]ParsedColumn, 0, len(exprs))
	for i, expr := range exprs {
		name := columnNameFromExpression(expr)
		if name == "" {
			name = fmt.Sprintf("Column%d", i+1)
		}
		result = append(result, ParsedColumn{Name: name, Expr: expr})
	}

	return result, nil
}

// extractProjection returns the text between the outer SELECT keyword and
// the keyword that ends its list. The first SELECT at nesting level zero is
// preferred so that CTE bodies and subqueries are skipped.
func extractProjection(query string) (string, bool) {
	selectEnd := -1
	firstAnyDepth := -1

	scanCode(query, 0, func(i, depth int) bool {
		end, ok := matchKeywords(query, i, "SELECT")
		if !ok {
			return true
		}
		if firstAnyDepth < 0 {
			firstAnyDepth = end
		}
		if depth == 0 {
			selectEnd = end
			return false
		}
		return true
	})

	if selectEnd < 0 {
		selectEnd = firstAnyDepth
	}
	if selectEnd < 0 {
		return "", false
	}

	listEnd := len(query)
	scanCode(query, selectEnd, func(i, depth int) bool {
		if depth < 0 || (depth == 0 && query[i] == ';') {
			listEnd = i
			return false
		}
		if depth != 0 {
			return true
		}
		for _, kw := range projectionEndKeywords {
			if _, ok := matchKeywords(query, i, kw...); ok {
				listEnd = i
				return false
			}
		}
		return true
	})

	return strings.TrimSpace(query[selectEnd:listEnd]), true
}

// splitSelectColumns splits a SELECT column list by commas, respecting
// parentheses, string literals, quoted identifiers and comments.
func splitSelectColumns(selectClause string) []string {
	var columns []string
	last := 0

	scanCode(selectClause, 0, func(i, depth int) bool {
		if depth == 0 && selectClause[i] == ',' {
			columns = append(columns, selectClause[last:i])
			last = i + 1
		}
		return true
	})
	columns = append(columns, selectClause[last:])

	result := columns[:0]
	for _, col := range columns {
		if col = strings.TrimSpace(col); col != "" {
			result = append(result, col)
		}
	}
	return result
}

// columnNameFromExpression returns the output name of one SELECT list item,
// or "" when none can be recovered (e.g. "COUNT(*)" or "t.*"). Comments in
// the item are ignored.
func columnNameFromExpression(expr string) string {
	expr = strings.TrimSpace(blankComments(expr))

	if m := asAliasPattern.FindStringSubmatch(expr); m != nil {
		return unquoteIdentifier(m[1])
	}
	if m := equalsAliasPattern.FindStringSubmatch(expr); m != nil {
		return unquoteIdentifier(m[1])
	}
	if m := trailingIdentPattern.FindStringSubmatch(expr); m != nil {
		// CASE ... END has no name of its own
		if strings.EqualFold(m[1], "END") {
			return ""
		}
		return unquoteIdentifier(m[1])
	}
	return ""
}

func unquoteIdentifier(ident string) string {
	if len(ident) >= 2 {
		switch {
		case ident[0] == '[' && ident[len(ident)-1] == ']',
			ident[0] == '"' && ident[len(ident)-1] == '"',
			ident[0] == '\'' && ident[len(ident)-1] == '\'':
			return ident[1 : len(ident)-1]
		}
	}
	return ident
}
