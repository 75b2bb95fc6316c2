package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/logging"
)

// Adapter is a SQL Server session scoped to one database. It implements
// datasource.Session.
type Adapter struct {
	config  *Config
	db      *sql.DB
	logger  *zap.Logger
	ownedDB bool
}

// NewAdapter opens and pings a SQL Server connection.
// If logger is nil, a no-op logger is used.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := connectionString(cfg)
	logger.Debug("Opening SQL Server connection", zap.String("dsn", logging.SanitizeConnectionString(dsn)))

	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection: %w", err)
	}

	a := &Adapter{
		config:  cfg,
		db:      db,
		logger:  logger.Named("mssql"),
		ownedDB: true,
	}
	if err := a.TestConnection(ctx); err != nil {
		_ = db.Close()
		logger.Warn("SQL Server connection test failed",
			zap.String("host", cfg.Host),
			zap.String("database", cfg.Database),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return a, nil
}

// NewAdapterWithDB wraps an existing connection pool. The caller keeps
// ownership of db; Close does not close it.
func NewAdapterWithDB(db *sql.DB, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		config: &Config{},
		db:     db,
		logger: logger.Named("mssql"),
	}
}

// connectionString builds a sqlserver:// URL for SQL authentication.
func connectionString(cfg *Config) string {
	query := url.Values{}
	if cfg.Database != "" {
		query.Add("database", cfg.Database)
	}

	if cfg.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}

	if cfg.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}

	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}
	return u.String()
}

// TestConnection pings the server and runs SELECT 1, which fails when the
// login cannot open the target database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Close releases the connection pool when the adapter opened it.
func (a *Adapter) Close() error {
	if a.ownedDB && a.db != nil {
		return a.db.Close()
	}
	return nil
}

// DB returns the underlying *sql.DB.
func (a *Adapter) DB() *sql.DB {
	return a.db
}

var _ datasource.Session = (*Adapter)(nil)
