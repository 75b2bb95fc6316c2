package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runParams(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "rdlgen", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().BoolP("verbose", "v", false, "")
	root.AddCommand(NewParamsCmd().Command())

	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append([]string{"params"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestParamsCmd(t *testing.T) {
	out, err := runParams(t, "--sql", "SELECT * FROM dbo.Orders WHERE OrderDate >= @From AND OrderDate < @To AND @@ROWCOUNT > 0")
	require.NoError(t, err)

	assert.Contains(t, out, "From")
	assert.Contains(t, out, "To")
	assert.NotContains(t, out, "ROWCOUNT")
}

func TestParamsCmd_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.sql")
	require.NoError(t, os.WriteFile(path, []byte("SELECT 1 AS One WHERE 1 = @Flag"), 0o600))

	out, err := runParams(t, "--sql-file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Flag")
}

func TestParamsCmd_NoParameters(t *testing.T) {
	out, err := runParams(t, "--sql", "SELECT 1 AS One")
	require.NoError(t, err)
	assert.Equal(t, "No parameters found.\n", out)
}

func TestParamsCmd_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no query", args: nil},
		{name: "both sources", args: []string{"--sql", "SELECT 1", "--sql-file", "q.sql"}},
		{name: "missing file", args: []string{"--sql-file", filepath.Join(t.TempDir(), "missing.sql")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runParams(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
