package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
)

type ParamsCmd struct{}

func NewParamsCmd() *ParamsCmd {
	return &ParamsCmd{}
}

func (c *ParamsCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "List the @parameters a query references",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd)
			if err != nil {
				return err
			}

			params := sqlutil.DetectParameters(query)
			if len(params) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No parameters found.")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Name", "Type"})
			table.SetAutoWrapText(false)
			for _, p := range params {
				table.Append([]string{p.Name, p.Type})
			}
			table.Render()
			return nil
		},
	}

	addQueryFlags(cmd)
	return cmd
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("sql", "", "T-SQL query text")
	cmd.Flags().String("sql-file", "", "path to a file holding the T-SQL query")
}

// readQuery returns the query from --sql or --sql-file.
func readQuery(cmd *cobra.Command) (string, error) {
	query, err := cmd.Flags().GetString("sql")
	if err != nil {
		return "", fmt.Errorf("failed to get sql flag: %w", err)
	}
	path, err := cmd.Flags().GetString("sql-file")
	if err != nil {
		return "", fmt.Errorf("failed to get sql-file flag: %w", err)
	}

	switch {
	case query != "" && path != "":
		return "", fmt.Errorf("specify only one of --sql or --sql-file")
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}
		query = string(data)
	}

	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("a query is required (--sql or --sql-file)")
	}
	return query, nil
}
