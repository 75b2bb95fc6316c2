package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/models"
	"github.com/ekaya-inc/ekaya-reports/pkg/services"
	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
)

// ReportToolDeps contains dependencies for the report definition tools.
type ReportToolDeps struct {
	Generator services.ReportGenerationService
	Logger    *zap.Logger
}

type detectParametersResult struct {
	Parameters []models.Parameter `json:"parameters"`
}

// RegisterReportTools registers the report definition tools.
func RegisterReportTools(s *server.MCPServer, deps *ReportToolDeps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	registerDetectParametersTool(s)
	registerDiscoverSchemaTool(s, deps)
	registerGenerateRDLTool(s, deps)
}

func registerDetectParametersTool(s *server.MCPServer) {
	tool := mcp.NewTool(
		"detect_parameters",
		mcp.WithDescription(
			"List the @Name parameters referenced by a T-SQL query, in order of first appearance. "+
				"System references such as @@ROWCOUNT are ignored. Every parameter is typed String.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("T-SQL query text"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, invalid, err := requireQuery(req)
		if invalid != nil || err != nil {
			return invalid, err
		}
		return jsonResult(detectParametersResult{Parameters: sqlutil.DetectParameters(query)})
	})
}

func registerDiscoverSchemaTool(s *server.MCPServer, deps *ReportToolDeps) {
	tool := mcp.NewTool(
		"discover_schema",
		mcp.WithDescription(
			"Determine the result columns of a T-SQL query without returning rows. "+
				"Tries sys.dm_exec_describe_first_result_set, then SET FMTONLY ON, then parses the SELECT list. "+
				"Returns fields with raw and sanitized names, SQL and RDL types, notes and the tier that succeeded.",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("T-SQL query text"),
		),
		mcp.WithString(
			"database",
			mcp.Description("Database to describe the query against. Omit to use heuristic parsing only."),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, invalid, err := requireQuery(req)
		if invalid != nil || err != nil {
			return invalid, err
		}
		database := optionalArg(req, "database")

		result, err := deps.Generator.Discover(ctx, database, query)
		if err != nil {
			if toolErr := NewReportErrorResult(err); toolErr != nil {
				deps.Logger.Debug("discover_schema rejected", zap.Error(err))
				return toolErr, nil
			}
			return nil, fmt.Errorf("schema discovery failed: %w", err)
		}
		return jsonResult(result)
	})
}

func registerGenerateRDLTool(s *server.MCPServer, deps *ReportToolDeps) {
	tool := mcp.NewTool(
		"generate_rdl",
		mcp.WithDescription(
			"Generate an SSRS report definition (.rdl) for a T-SQL query and write it to output_path. "+
				"The dataset is bound to the configured shared data source. "+
				"Example: generate_rdl(sql='SELECT Id, Name FROM dbo.Customers', database='Sales', output_path='customers.rdl').",
		),
		mcp.WithString(
			"sql",
			mcp.Required(),
			mcp.Description("T-SQL query text"),
		),
		mcp.WithString(
			"database",
			mcp.Required(),
			mcp.Description("Database the query runs against"),
		),
		mcp.WithString(
			"output_path",
			mcp.Required(),
			mcp.Description("Destination file; must end with .rdl. Relative paths resolve under the configured output directory."),
		),
		mcp.WithString(
			"report_name",
			mcp.Description("Report name written to the definition (default AutoReport)"),
		),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, invalid, err := requireQuery(req)
		if invalid != nil || err != nil {
			return invalid, err
		}
		database, err := req.RequireString("database")
		if err != nil {
			return nil, err
		}
		outputPath, err := req.RequireString("output_path")
		if err != nil {
			return nil, err
		}

		result, err := deps.Generator.Generate(ctx, &services.GenerateRDLRequest{
			SQL:          query,
			DatabaseName: strings.TrimSpace(database),
			OutputPath:   strings.TrimSpace(outputPath),
			ReportName:   optionalArg(req, "report_name"),
		})
		if err != nil {
			if toolErr := NewReportErrorResult(err); toolErr != nil {
				deps.Logger.Debug("generate_rdl rejected", zap.Error(err))
				return toolErr, nil
			}
			return nil, fmt.Errorf("report generation failed: %w", err)
		}
		return jsonResult(result)
	})
}
