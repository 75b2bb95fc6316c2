package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/ekaya-reports/pkg/config"
	"github.com/ekaya-inc/ekaya-reports/pkg/rdl"
	"github.com/ekaya-inc/ekaya-reports/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

type GenerateCmd struct{}

func NewGenerateCmd() *GenerateCmd {
	return &GenerateCmd{}
}

func (c *GenerateCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write an RDL report definition for a query",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd)
			if err != nil {
				return err
			}
			db, err := cmd.Flags().GetString("db")
			if err != nil {
				return fmt.Errorf("failed to get db flag: %w", err)
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			name, err := cmd.Flags().GetString("name")
			if err != nil {
				return fmt.Errorf("failed to get name flag: %w", err)
			}

			logger, err := newLogger(cmd)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load(Version)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			generator := newGenerator(cfg, logger)
			result, err := generator.Generate(ctx, &services.GenerateRDLRequest{
				SQL:          query,
				OutputPath:   out,
				DatabaseName: db,
				ReportName:   name,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	addQueryFlags(cmd)
	cmd.Flags().String("db", "", "database the query runs against")
	cmd.Flags().String("out", "", "output .rdl path; relative paths resolve under the configured output directory")
	cmd.Flags().String("name", "", "report name (defaults to the output file name)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newGenerator(cfg *config.Config, logger *zap.Logger) services.ReportGenerationService {
	var sessions datasource.SessionFactory = datasource.UnavailableFactory{}
	if cfg.SQLServer.IsConfigured() {
		sessions = mssql.NewFactory(&mssql.Config{
			Host:                   cfg.SQLServer.Host,
			Port:                   cfg.SQLServer.Port,
			Username:               cfg.SQLServer.User,
			Password:               cfg.SQLServer.Password,
			Encrypt:                cfg.SQLServer.Encrypt,
			TrustServerCertificate: cfg.SQLServer.TrustServerCertificate,
			ConnectionTimeout:      cfg.SQLServer.ConnectionTimeout,
		}, logger.Named("mssql"))
	}

	return services.NewReportGenerationService(
		sessions,
		services.NewSchemaDiscoveryService(logger),
		rdl.NewBuilder(),
		services.ReportGenerationConfig{
			DataSourceReference: cfg.SSRS.SharedDataSourcePath,
			OutputDir:           cfg.Report.OutputDir,
		},
		logger,
	)
}
