package sql

import "strings"

// SplitOrderBy separates a trailing top-level ORDER BY clause from a query.
// ORDER BY inside subqueries, OVER(...) windows, literals and comments is left
// alone. clause starts with "ORDER BY" when found is true.
func SplitOrderBy(query string) (base, clause string, found bool) {
	at := -1
	scanCode(query, 0, func(i, depth int) bool {
		if depth != 0 {
			return true
		}
		if _, ok := matchKeywords(query, i, "ORDER", "BY"); ok {
			at = i
		}
		return true
	})

	if at < 0 {
		return strings.TrimSpace(query), "", false
	}
	return strings.TrimSpace(query[:at]), strings.TrimSpace(query[at:]), true
}
