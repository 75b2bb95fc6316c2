package sql

import (
	"strconv"
	"strings"
)

// DefaultFieldName replaces a name with no usable characters.
const DefaultFieldName = "Field"

// SanitizeFieldName makes a column name usable as a report field name.
// Every character outside [A-Za-z0-9_] becomes an underscore, and leading
// digits and underscores are dropped because report element names must start
// with a letter. A name with nothing left becomes "Field".
func SanitizeFieldName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	sanitized := strings.TrimLeft(b.String(), "0123456789_")
	if sanitized == "" {
		return DefaultFieldName
	}
	return sanitized
}

// UniqueFieldNames resolves duplicates in encounter order: the first
// occurrence keeps its name and later ones get _2, _3, ... A suffix that
// would collide with any name in the input is skipped, so the result is
// always injective.
//
// Example:
//
//	UniqueFieldNames([]string{"Total", "Total", "Total_2"})
//	// []string{"Total", "Total_3", "Total_2"}
func UniqueFieldNames(names []string) []string {
	reserved := make(map[string]bool, len(names))
	for _, name := range names {
		reserved[name] = true
	}

	used := make(map[string]bool, len(names))
	nextSuffix := make(map[string]int)
	result := make([]string, len(names))

	for i, name := range names {
		if !used[name] {
			used[name] = true
			result[i] = name
			continue
		}

		n := nextSuffix[name]
		if n == 0 {
			n = 2
		}
		candidate := name + "_" + strconv.Itoa(n)
		for used[candidate] || reserved[candidate] {
			n++
			candidate = name + "_" + strconv.Itoa(n)
		}
		nextSuffix[name] = n + 1
		used[candidate] = true
		result[i] = candidate
	}

	return result
}
