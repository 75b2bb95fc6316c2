package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitOrderBy(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantBase   string
		wantClause string
		wantFound  bool
	}{
		{
			name:      "no order by",
			query:     "SELECT a FROM t",
			wantBase:  "SELECT a FROM t",
			wantFound: false,
		},
		{
			name:       "trailing order by",
			query:      "SELECT a, b FROM t ORDER BY a DESC, b",
			wantBase:   "SELECT a, b FROM t",
			wantClause: "ORDER BY a DESC, b",
			wantFound:  true,
		},
		{
			name:       "lowercase with line break",
			query:      "select a from t\norder\n  by a",
			wantBase:   "select a from t",
			wantClause: "order\n  by a",
			wantFound:  true,
		},
		{
			name:      "window ordering is not split",
			query:     "SELECT ROW_NUMBER() OVER (ORDER BY a) AS rn FROM t",
			wantBase:  "SELECT ROW_NUMBER() OVER (ORDER BY a) AS rn FROM t",
			wantFound: false,
		},
		{
			name:       "subquery ordering is skipped",
			query:      "SELECT * FROM (SELECT TOP 5 a FROM t ORDER BY a) x ORDER BY a",
			wantBase:   "SELECT * FROM (SELECT TOP 5 a FROM t ORDER BY a) x",
			wantClause: "ORDER BY a",
			wantFound:  true,
		},
		{
			name:      "literal is ignored",
			query:     "SELECT 'ORDER BY x' AS label FROM t",
			wantBase:  "SELECT 'ORDER BY x' AS label FROM t",
			wantFound: false,
		},
		{
			name:      "identifier containing keyword",
			query:     "SELECT border_by FROM t",
			wantBase:  "SELECT border_by FROM t",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, clause, found := SplitOrderBy(tt.query)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantClause, clause)
			assert.Equal(t, tt.wantFound, found)
		})
	}
}
