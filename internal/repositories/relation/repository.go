package relation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

var columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Repository reads and rewrites relation rows of any registered RelationType.
// Queries are built from the descriptor, so every table that references a
// canonical record is handled the same way.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type relationRow struct {
	ID        string `db:"id"`
	EntityID  string `db:"entity_id"`
	UniqueKey string `db:"unique_key"`
}

// uniqueKeyExpr renders the key columns as one '|' separated text value so it
// compares equal to RelationType.KeyOf.
func uniqueKeyExpr(rt models.RelationType) string {
	if !rt.Unique() {
		return "''"
	}
	parts := make([]string, len(rt.KeyColumns))
	for i, col := range rt.KeyColumns {
		parts[i] = fmt.Sprintf("coalesce(%s::text, '')", col)
	}
	return fmt.Sprintf("concat_ws('|', %s)", strings.Join(parts, ", "))
}

// ListByEntity returns the rows whose FK is in entityIDs, ordered by (entity, id)
func (r *Repository) ListByEntity(ctx context.Context, rt models.RelationType, entityIDs []string) ([]*models.Relation, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.ListByEntity")
	defer span.End()

	if len(entityIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", rt.FKColumn+" AS entity_id", uniqueKeyExpr(rt)+" AS unique_key")
	sb.From(rt.Table)
	sb.Where(sb.In(rt.FKColumn, database.AnyOf(entityIDs)...))
	sb.OrderBy(rt.FKColumn, "id")

	query, args := sb.Build()
	var rows []relationRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"relation": rt.Name}).Error("Failed to list relations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to list %s", rt.Name))
	}

	relations := make([]*models.Relation, len(rows))
	for i, row := range rows {
		relations[i] = &models.Relation{
			ID:        row.ID,
			Type:      rt.Name,
			EntityID:  row.EntityID,
			UniqueKey: row.UniqueKey,
		}
	}
	return relations, nil
}

// Repoint moves relation rows onto entityID with one UPDATE
func (r *Repository) Repoint(ctx context.Context, rt models.RelationType, relationIDs []string, entityID string) error {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.Repoint")
	defer span.End()

	if len(relationIDs) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(rt.Table)
	sb.Set(sb.Assign(rt.FKColumn, entityID))
	sb.Where(sb.In("id", database.AnyOf(relationIDs)...))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"relation":  rt.Name,
			"entity_id": entityID,
			"count":     len(relationIDs),
		}).Error("Failed to repoint relations")
		return httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to repoint %s", rt.Name))
	}

	return nil
}

// Delete removes relation rows with one DELETE. Rows of a DetachOnly relation
// keep existing with a null FK.
func (r *Repository) Delete(ctx context.Context, rt models.RelationType, relationIDs []string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.Delete")
	defer span.End()

	if len(relationIDs) == 0 {
		return 0, nil
	}

	var query string
	var args []any
	if rt.DetachOnly {
		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update(rt.Table)
		sb.Set(sb.Assign(rt.FKColumn, nil))
		sb.Where(sb.In("id", database.AnyOf(relationIDs)...), sb.IsNotNull(rt.FKColumn))
		query, args = sb.Build()
	} else {
		sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
		sb.DeleteFrom(rt.Table)
		sb.Where(sb.In("id", database.AnyOf(relationIDs)...))
		query, args = sb.Build()
	}

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"relation": rt.Name,
			"count":    len(relationIDs),
		}).Error("Failed to delete relations")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to delete %s", rt.Name))
	}

	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// Create inserts a relation row. A row whose unique key is already held is
// skipped and reported as not created.
func (r *Repository) Create(ctx context.Context, input models.RelationInput) (string, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "relation.Repository.Create")
	defer span.End()

	rt, ok := models.LookupRelationType(input.Type)
	if !ok {
		return "", false, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown relation type %q", input.Type))
	}
	if rt.DetachOnly {
		return "", false, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("relation type %q cannot be created directly", rt.Name))
	}

	columns := make([]string, 0, len(input.Values))
	for col := range input.Values {
		if col == rt.FKColumn || col == "id" {
			continue
		}
		if !columnPattern.MatchString(col) {
			return "", false, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid relation column %q", col))
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	id := uuid.New().String()
	values := []any{id, input.EntityID}
	for _, col := range columns {
		values = append(values, input.Values[col])
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(rt.Table)
	ib.Cols(append([]string{"id", rt.FKColumn}, columns...)...)
	ib.Values(values...)
	if rt.Unique() {
		ib.OnConflictDoNothing(append([]string{rt.FKColumn}, rt.KeyColumns...)...)
	}
	ib.Returning("id")

	query, args := ib.Build()
	var inserted string
	if err := database.Conn(ctx, r.db).GetContext(ctx, &inserted, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"relation":  rt.Name,
			"entity_id": input.EntityID,
		}).Error("Failed to create relation")
		return "", false, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to create %s", rt.Name))
	}

	return inserted, true, nil
}
