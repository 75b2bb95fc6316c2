package mssql

import (
	"fmt"
	"regexp"
	"strings"
)

// quoteName quotes an identifier the way QUOTENAME() does: square brackets
// with ] escaped as ]].
func quoteName(identifier string) string {
	return "[" + strings.ReplaceAll(identifier, "]", "]]") + "]"
}

// buildFullyQualifiedName builds a fully qualified table name: [schema].[table]
func buildFullyQualifiedName(schema, table string) string {
	return fmt.Sprintf("%s.%s", quoteName(schema), quoteName(table))
}

var variableNamePattern = regexp.MustCompile(`^@?[\p{L}_][\p{L}\p{N}_]*$`)

// variableName validates a T-SQL variable name and strips its @ marker.
func variableName(name string) (string, error) {
	if !variableNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid parameter name %q", name)
	}
	return strings.TrimPrefix(name, "@"), nil
}

// paramDeclarations renders "@A nvarchar(4000), @B nvarchar(4000)" for
// the @params argument of the describe functions.
func paramDeclarations(names []string) string {
	decls := make([]string, len(names))
	for i, name := range names {
		decls[i] = "@" + name + " nvarchar(4000)"
	}
	return strings.Join(decls, ", ")
}

// declareBlock renders one DECLARE statement per name, each initialised to NULL.
func declareBlock(names []string) string {
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "DECLARE @%s NVARCHAR(4000) = NULL;\n", name)
	}
	return b.String()
}
