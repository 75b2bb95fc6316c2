package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
)

// Factory opens one Adapter per request against the configured server.
type Factory struct {
	config *Config
	logger *zap.Logger
}

// NewFactory returns a session factory for cfg.
func NewFactory(cfg *Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{config: cfg, logger: logger}
}

// Open connects to database, or to the configured default when it is empty.
func (f *Factory) Open(ctx context.Context, database string) (datasource.Session, error) {
	return NewAdapter(ctx, f.config.WithDatabase(database), f.logger)
}

// Available reports true; a Factory is only built when a server is configured.
func (f *Factory) Available() bool {
	return true
}

var _ datasource.SessionFactory = (*Factory)(nil)
