package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-reports/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-reports/pkg/metrics"
	"github.com/ekaya-inc/ekaya-reports/pkg/models"
	sqlutil "github.com/ekaya-inc/ekaya-reports/pkg/sql"
)

// Notes attached to a SchemaResult.
const (
	NoteFMTOnly           = "schema discovered via FMTONLY"
	NoteHeuristic         = "schema inferred heuristically"
	NoteEngineUnavailable = "engine tiers unavailable"
)

var (
	errEngineUnavailable = errors.New("no database session")
	errNoColumns         = errors.New("no visible columns")
)

// SchemaDiscoveryService determines the output fields of a query without
// materializing rows.
type SchemaDiscoveryService interface {
	// Discover tries the engine metadata function, then schema-only execution,
	// then heuristic parsing of the SELECT list. The first tier that yields
	// at least one column wins; results are never merged. A nil describer
	// skips the two engine tiers.
	Discover(ctx context.Context, describer datasource.SchemaDescriber, query string) (*models.SchemaResult, error)
}

type schemaDiscoveryService struct {
	logger *zap.Logger
}

// NewSchemaDiscoveryService creates a schema discovery service.
func NewSchemaDiscoveryService(logger *zap.Logger) SchemaDiscoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &schemaDiscoveryService{logger: logger.Named("schema-discovery")}
}

type engineTier struct {
	tier     models.DiscoveryTier
	note     string
	describe func(context.Context, string) ([]datasource.DescribedColumn, error)
}

func (s *schemaDiscoveryService) Discover(ctx context.Context, describer datasource.SchemaDescriber, query string) (*models.SchemaResult, error) {
	var (
		attempted []apperrors.TierFailure
		notes     []string
	)

	if describer == nil {
		for _, tier := range []models.DiscoveryTier{models.TierDescribeFirstResultSet, models.TierFMTOnly} {
			attempted = append(attempted, apperrors.TierFailure{Tier: string(tier), Cause: errEngineUnavailable})
			metrics.ObserveDiscoveryTier(string(tier), metrics.OutcomeSkipped)
		}
		notes = append(notes, NoteEngineUnavailable)
	} else {
		tiers := []engineTier{
			{tier: models.TierDescribeFirstResultSet, describe: describer.DescribeFirstResultSet},
			{tier: models.TierFMTOnly, note: NoteFMTOnly, describe: describer.DescribeSchemaOnly},
		}
		for _, t := range tiers {
			fields, err := s.runEngineTier(ctx, t, query)
			if err != nil {
				s.logger.Debug("Schema discovery tier failed",
					zap.String("tier", string(t.tier)),
					zap.Error(err))
				attempted = append(attempted, apperrors.TierFailure{Tier: string(t.tier), Cause: err})
				metrics.ObserveDiscoveryTier(string(t.tier), metrics.OutcomeFailure)
				continue
			}

			metrics.ObserveDiscoveryTier(string(t.tier), metrics.OutcomeSuccess)
			if t.note != "" {
				notes = append(notes, t.note)
			}
			s.logger.Info("Schema discovered",
				zap.String("tier", string(t.tier)),
				zap.Int("fields", len(fields)))
			return &models.SchemaResult{Fields: fields, Notes: notes, Tier: t.tier}, nil
		}
	}

	fields, err := heuristicFields(query)
	if err != nil {
		attempted = append(attempted, apperrors.TierFailure{Tier: string(models.TierHeuristic), Cause: err})
		metrics.ObserveDiscoveryTier(string(models.TierHeuristic), metrics.OutcomeFailure)
		discoveryErr := &apperrors.DiscoveryError{Attempted: attempted}
		s.logger.Warn("Schema discovery failed", zap.Strings("tiers", discoveryErr.Tiers()))
		return nil, discoveryErr
	}

	metrics.ObserveDiscoveryTier(string(models.TierHeuristic), metrics.OutcomeSuccess)
	notes = append(notes, NoteHeuristic)
	s.logger.Info("Schema discovered",
		zap.String("tier", string(models.TierHeuristic)),
		zap.Int("fields", len(fields)))
	return &models.SchemaResult{Fields: fields, Notes: notes, Tier: models.TierHeuristic}, nil
}

func (s *schemaDiscoveryService) runEngineTier(ctx context.Context, t engineTier, query string) ([]models.Field, error) {
	columns, err := t.describe(ctx, query)
	if err != nil {
		return nil, err
	}

	visible := make([]datasource.DescribedColumn, 0, len(columns))
	for _, col := range columns {
		if col.Hidden || col.Name == "" {
			continue
		}
		visible = append(visible, col)
	}
	if len(visible) == 0 {
		return nil, errNoColumns
	}

	rawNames := make([]string, len(visible))
	sqlTypes := make([]string, len(visible))
	for i, col := range visible {
		rawNames[i] = col.Name
		sqlTypes[i] = col.SQLType
	}
	return buildFields(rawNames, sqlTypes), nil
}

func heuristicFields(query string) ([]models.Field, error) {
	parsed, err := sqlutil.ParseSelectColumns(query)
	if err != nil {
		return nil, fmt.Errorf("parse select list: %w", err)
	}

	rawNames := make([]string, len(parsed))
	for i, col := range parsed {
		rawNames[i] = col.Name
	}
	return buildFields(rawNames, nil), nil
}

// buildFields sanitizes and de-duplicates names and maps SQL types. A nil
// sqlTypes slice types every field as System.String.
func buildFields(rawNames, sqlTypes []string) []models.Field {
	sanitized := make([]string, len(rawNames))
	for i, name := range rawNames {
		sanitized[i] = sqlutil.SanitizeFieldName(name)
	}
	sanitized = sqlutil.UniqueFieldNames(sanitized)

	fields := make([]models.Field, len(rawNames))
	for i, name := range rawNames {
		field := models.Field{
			RawName:       name,
			SanitizedName: sanitized[i],
			MappedType:    models.RDLTypeString,
		}
		if sqlTypes != nil {
			field.SQLType = sqlTypes[i]
			field.MappedType = models.MapSQLType(sqlTypes[i])
		}
		fields[i] = field
	}
	return fields
}
