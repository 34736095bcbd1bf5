package legacycontact

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const tableName = "legacy_deal_contacts"

// Repository reads the legacy flat buyer/contact rows
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new legacy contact repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListByScope returns every legacy row of a deal ordered by id
func (r *Repository) ListByScope(ctx context.Context, scope string) ([]*models.LegacyContact, error) {
	ctx, span := tracing.StartSpan(ctx, "legacycontact.Repository.ListByScope")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "scope", "company_name", "website", "first_name", "last_name", "email", "title", "phone",
		"role", "is_primary", "migrated_at", "migration_run_id")
	sb.From(tableName)
	sb.Where(sb.Equal("scope", scope))
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows []*models.LegacyContact
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"scope": scope}).Error("Failed to list legacy contacts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list legacy contacts")
	}

	return rows, nil
}

// MarkMigrated stamps a row with the run that converted it
func (r *Repository) MarkMigrated(ctx context.Context, id string, runID string) error {
	ctx, span := tracing.StartSpan(ctx, "legacycontact.Repository.MarkMigrated")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("migrated_at", time.Now().UTC()),
		sb.Assign("migration_run_id", runID),
	)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"legacy_id": id}).Error("Failed to mark legacy contact migrated")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark legacy contact migrated")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("legacy contact %s not found", id))
	}

	return nil
}

// ClearMigrated resets every row of a scope to unmigrated
func (r *Repository) ClearMigrated(ctx context.Context, scope string) error {
	ctx, span := tracing.StartSpan(ctx, "legacycontact.Repository.ClearMigrated")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("migrated_at", nil),
		sb.Assign("migration_run_id", nil),
	)
	sb.Where(sb.Equal("scope", scope))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"scope": scope}).Error("Failed to reset legacy contacts")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reset legacy contacts")
	}

	return nil
}
