package migrationrun

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	runsTable  = "migration_runs"
	itemsTable = "migration_items"
)

// Repository handles migration runs and the per-row ledger
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new migration run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// runResult is the JSONB result column of a run
type runResult struct {
	Counts models.MigrationCounts `json:"counts"`
	Errors []models.RowError      `json:"errors,omitempty"`
}

type runRow struct {
	models.MigrationRun
	Result database.JSONB[runResult] `db:"result"`
}

func (row *runRow) toModel() *models.MigrationRun {
	run := row.MigrationRun
	run.Counts = row.Result.Data.Counts
	run.Errors = row.Result.Data.Errors
	return &run
}

type itemRow struct {
	models.MigrationItem
	Relations database.JSONB[map[string][]string] `db:"relations"`
}

// CreateRun inserts a run record
func (r *Repository) CreateRun(ctx context.Context, run *models.MigrationRun) error {
	ctx, span := tracing.StartSpan(ctx, "migrationrun.Repository.CreateRun")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(runsTable)
	sb.Cols("id", "scope", "dry_run", "status", "result", "actor_id", "started_at", "finished_at", "duration_ms")
	sb.Values(run.ID, run.Scope, run.DryRun, run.Status, database.NewJSONB(runResult{Counts: run.Counts, Errors: run.Errors}),
		run.ActorID, run.StartedAt, run.FinishedAt, run.DurationMs)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID, "scope": run.Scope}).Error("Failed to create migration run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create migration run")
	}

	return nil
}

// UpdateRun writes the status, result and timing of a run
func (r *Repository) UpdateRun(ctx context.Context, run *models.MigrationRun) error {
	ctx, span := tracing.StartSpan(ctx, "migrationrun.Repository.UpdateRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(runsTable)
	sb.Set(
		sb.Assign("status", run.Status),
		sb.Assign("result", database.NewJSONB(runResult{Counts: run.Counts, Errors: run.Errors})),
		sb.Assign("finished_at", run.FinishedAt),
		sb.Assign("duration_ms", run.DurationMs),
	)
	sb.Where(sb.Equal("id", run.ID))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to update migration run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update migration run")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("migration run %s not found", run.ID))
	}

	return nil
}

// ListRuns returns every run of a scope, oldest first
func (r *Repository) ListRuns(ctx context.Context, scope string) ([]*models.MigrationRun, error) {
	ctx, span := tracing.StartSpan(ctx, "migrationrun.Repository.ListRuns")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "scope", "dry_run", "status", "result", "actor_id", "started_at", "finished_at", "duration_ms")
	sb.From(runsTable)
	sb.Where(sb.Equal("scope", scope))
	sb.OrderBy("started_at", "id")

	query, args := sb.Build()
	var rows []runRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"scope": scope}).Error("Failed to list migration runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list migration runs")
	}

	runs := make([]*models.MigrationRun, len(rows))
	for i := range rows {
		runs[i] = rows[i].toModel()
	}
	return runs, nil
}

// CreateItem writes one ledger entry
func (r *Repository) CreateItem(ctx context.Context, item *models.MigrationItem) error {
	ctx, span := tracing.StartSpan(ctx, "migrationrun.Repository.CreateItem")
	defer span.End()

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(itemsTable)
	sb.Cols("id", "run_id", "scope", "legacy_id", "company_id", "company_created", "person_id", "person_created", "relations", "created_at")
	sb.Values(item.ID, item.RunID, item.Scope, item.LegacyID, item.CompanyID, item.CompanyCreated, item.PersonID,
		item.PersonCreated, database.NewJSONB(item.Relations), item.CreatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"legacy_id": item.LegacyID}).Error("Failed to create migration item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create migration item")
	}

	return nil
}

// ListActiveItems returns ledger entries of a scope not yet rolled back
func (r *Repository) ListActiveItems(ctx context.Context, scope string) ([]*models.MigrationItem, error) {
	ctx, span := tracing.StartSpan(ctx, "migrationrun.Repository.ListActiveItems")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "run_id", "scope", "legacy_id", "company_id", "company_created", "person_id", "person_created", "relations", "created_at", "rolled_back_at")
	sb.From(itemsTable)
	sb.Where(
		sb.Equal("scope", scope),
		sb.IsNull("rolled_back_at"),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var rows []itemRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"scope": scope}).Error("Failed to list migration items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list migration items")
	}

	items := make([]*models.MigrationItem, len(rows))
	for i := range rows {
		item := rows[i].MigrationItem
		item.Relations = rows[i].Relations.Data
		items[i] = &item
	}
	return items, nil
}

// MarkRolledBack stamps the active items and runs of a scope
func (r *Repository) MarkRolledBack(ctx context.Context, scope string) error {
	ctx, span := tracing.StartSpan(ctx, "migrationrun.Repository.MarkRolledBack")
	defer span.End()

	now := time.Now().UTC()
	conn := database.Conn(ctx, r.db)

	ib := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ib.Update(itemsTable)
	ib.Set(ib.Assign("rolled_back_at", now))
	ib.Where(
		ib.Equal("scope", scope),
		ib.IsNull("rolled_back_at"),
	)
	query, args := ib.Build()
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"scope": scope}).Error("Failed to roll back migration items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to roll back migration items")
	}

	rb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	rb.Update(runsTable)
	rb.Set(rb.Assign("status", models.MigrationStatusRolledBack))
	rb.Where(
		rb.Equal("scope", scope),
		rb.NotEqual("status", models.MigrationStatusRolledBack),
	)
	query, args = rb.Build()
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"scope": scope}).Error("Failed to roll back migration runs")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to roll back migration runs")
	}

	return nil
}
