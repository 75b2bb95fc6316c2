package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
)

// DemoDatabase is listed when no database server is configured.
const DemoDatabase = "DemoDW"

// DefaultSampleLimit is the number of sample values returned when none is requested.
const DefaultSampleLimit = 5

// DemoColumns is the catalog used when the server is unconfigured or unreachable.
func DemoColumns() []models.ColumnMetadata {
	return []models.ColumnMetadata{
		models.NewColumnMetadata("dbo", "FactSales", "OrderDate", "datetime"),
		models.NewColumnMetadata("dbo", "FactSales", "Region", "varchar"),
		models.NewColumnMetadata("dbo", "FactSales", "Product", "nvarchar"),
		models.NewColumnMetadata("dbo", "FactSales", "Quantity", "int"),
		models.NewColumnMetadata("dbo", "FactSales", "SalesAmount", "decimal"),
	}
}

// CatalogService lists databases and columns of the customer server.
type CatalogService interface {
	// ListDatabases returns user database names, or DemoDatabase when no
	// server is configured. Failures wrap apperrors.ErrCatalog.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListColumns returns the columns of database. It never fails: an
	// unconfigured or failing server yields DemoColumns.
	ListColumns(ctx context.Context, database string) []models.ColumnMetadata

	// SampleValues returns up to limit non-null values of one column.
	SampleValues(ctx context.Context, database, schema, table, column string, limit int) ([]string, error)
}

type catalogService struct {
	sessions datasource.SessionFactory
	logger   *zap.Logger
}

// NewCatalogService creates a catalog service.
func NewCatalogService(sessions datasource.SessionFactory, logger *zap.Logger) CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = datasource.UnavailableFactory{}
	}
	return &catalogService{sessions: sessions, logger: logger.Named("catalog")}
}

func (s *catalogService) ListDatabases(ctx context.Context) ([]string, error) {
	if !s.sessions.Available() {
		return []string{DemoDatabase}, nil
	}

	session, err := s.sessions.Open(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCatalog, err)
	}
	defer session.Close()

	names, err := session.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCatalog, err)
	}
	return names, nil
}

func (s *catalogService) ListColumns(ctx context.Context, database string) []models.ColumnMetadata {
	if !s.sessions.Available() {
		return DemoColumns()
	}

	columns, err := s.listColumns(ctx, database)
	if err != nil {
		s.logger.Warn("Failed to load columns, using demo catalog",
			zap.String("database", database),
			zap.Error(err))
		return DemoColumns()
	}
	return columns
}

func (s *catalogService) listColumns(ctx context.Context, database string) ([]models.ColumnMetadata, error) {
	session, err := s.sessions.Open(ctx, database)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	return session.ListColumns(ctx)
}

func (s *catalogService) SampleValues(ctx context.Context, database, schema, table, column string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	if !s.sessions.Available() {
		if strings.Contains(column, "Region") {
			return []string{"North", "South"}, nil
		}
		return []string{"1000", "2000"}, nil
	}

	session, err := s.sessions.Open(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCatalog, err)
	}
	defer session.Close()

	values, err := session.SampleValues(ctx, schema, table, column, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrCatalog, err)
	}
	return values, nil
}
