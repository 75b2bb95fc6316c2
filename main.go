package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource/mssql"
	"github.com/ekaya-inc/ekaya-reports/pkg/config"
	"github.com/ekaya-inc/ekaya-reports/pkg/handlers"
	"github.com/ekaya-inc/ekaya-reports/pkg/llm"
	"github.com/ekaya-inc/ekaya-reports/pkg/logging"
	"github.com/ekaya-inc/ekaya-reports/pkg/mcp"
	"github.com/ekaya-inc/ekaya-reports/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-reports/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reports/pkg/middleware"
	"github.com/ekaya-inc/ekaya-reports/pkg/rdl"
	"github.com/ekaya-inc/ekaya-reports/pkg/services"
	"github.com/ekaya-inc/ekaya-reports/pkg/ssrs"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Env),
		zap.Bool("sqlserver", cfg.SQLServer.IsConfigured()),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("llm", cfg.LLM.IsConfigured()),
		zap.Bool("ssrs", cfg.SSRS.IsConfigured()))

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

	llmClient, err := llm.NewClientFromConfig(&cfg.LLM, logger)
	if err != nil {
		logger.Warn("LLM disabled; using rule-based parsing", zap.Error(err))
		llmClient = nil
	}

	var publisher services.ReportPublisher
	if cfg.SSRS.IsConfigured() {
		client, err := ssrs.NewClient(ssrs.Config{
			SOAPURL:    cfg.SSRS.SOAPURL,
			RESTURL:    cfg.SSRS.RESTURL,
			RenderBase: cfg.SSRS.RenderBase,
			Domain:     cfg.SSRS.Domain,
			User:       cfg.SSRS.User,
			Password:   cfg.SSRS.Password,
			Timeout:    time.Duration(cfg.SSRS.TimeoutSeconds) * time.Second,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create report server client", zap.Error(err))
		}
		publisher = client
	}

	presets, err := services.LoadPresets()
	if err != nil {
		logger.Fatal("Failed to load report presets", zap.Error(err))
	}

	builder := rdl.NewBuilder()
	catalog := services.NewCatalogService(sessions, logger)
	generator := services.NewReportGenerationService(
		sessions,
		services.NewSchemaDiscoveryService(logger),
		builder,
		services.ReportGenerationConfig{
			DataSourceReference: cfg.SSRS.SharedDataSourcePath,
			OutputDir:           cfg.Report.OutputDir,
		},
		logger,
	)

	reportServices := handlers.ReportServices{
		Catalog:   catalog,
		Intent:    services.NewIntentService(llmClient, catalog, services.NewMappingService(llmClient, logger), presets, logger),
		SQL:       services.NewSQLGenerationService(llmClient, presets, logger),
		Preview:   services.NewPreviewService(sessions, logger),
		Publish:   services.NewPublishService(publisher, builder, services.PublishConfig{DefaultFolder: cfg.SSRS.ReportFolder}, logger),
		Generator: generator,
	}

	mcpServer := mcp.NewServer("ekaya-reports", cfg.Version, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), tools.HealthToolDeps{
		Version:   cfg.Version,
		SQLServer: cfg.SQLServer.IsConfigured(),
		LLM:       llmClient != nil,
		SSRS:      publisher != nil,
	})
	tools.RegisterReportTools(mcpServer.MCP(), &tools.ReportToolDeps{Generator: generator, Logger: logger})

	mux := http.NewServeMux()
	health := handlers.NewHealthHandler(cfg, logger)
	if guarded, ok := llmClient.(*llm.GuardedClient); ok {
		health.WithLLMCircuit(func() string { return guarded.Breaker().State().String() })
	}
	health.RegisterRoutes(mux)
	handlers.NewReportHandler(reportServices, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting ekaya-reports", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		var err error
		if cfg.TLSCertPath != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
