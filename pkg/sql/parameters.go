package sql

import (
	"unicode"
	"unicode/utf8"

	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

// DetectParameterNames finds every @Name marker in a query and returns the
// names without the marker, deduplicated in order of first appearance.
// Doubled markers (@@ROWCOUNT, @@SERVERNAME) are system references and are
// skipped.
//
// Example:
//
//	DetectParameterNames("SELECT * FROM t WHERE d BETWEEN @From AND @To AND x = @From")
//	// []string{"From", "To"}
func DetectParameterNames(query string) []string {
	seen := make(map[string]bool)
	names := []string{}

	for i := 0; i < len(query); i++ {
		if query[i] != '@' {
			continue
		}
		if i > 0 && query[i-1] == '@' {
			continue
		}

		end := i + 1
		for end < len(query) {
			r, size := utf8.DecodeRuneInString(query[end:])
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			end += size
		}
		if end == i+1 {
			continue
		}

		name := query[i+1 : end]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i = end - 1
	}

	return names
}

// DetectParameters returns the report parameters for a query. Every detected
// parameter is typed as String.
func DetectParameters(query string) []models.Parameter {
	names := DetectParameterNames(query)
	params := make([]models.Parameter, len(names))
	for i, name := range names {
		params[i] = models.Parameter{Name: name, Type: models.ParameterTypeString}
	}
	return params
}
