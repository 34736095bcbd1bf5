package audit

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/internal/platform/database"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const tableName = "merge_audit_logs"

// Repository handles merge audit log persistence. Logs are append-only.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

type auditRow struct {
	models.MergeAuditLog
	AbsorbedIDs database.JSONB[[]string]                        `db:"absorbed_ids"`
	Relations   database.JSONB[map[string]models.RelationCount] `db:"relations"`
	Conflicts   database.JSONB[[]models.MergeConflict]          `db:"conflicts"`
}

func (row *auditRow) toModel() *models.MergeAuditLog {
	log := row.MergeAuditLog
	log.AbsorbedIDs = row.AbsorbedIDs.Data
	log.Relations = row.Relations.Data
	log.Conflicts = row.Conflicts.Data
	return &log
}

// Create writes one merge audit log
func (r *Repository) Create(ctx context.Context, log *models.MergeAuditLog) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.Create")
	defer span.End()

	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "entity_type", "primary_id", "absorbed_ids", "actor_id", "source", "relations", "conflicts", "performed_at")
	sb.Values(log.ID, log.EntityType, log.PrimaryID, database.NewJSONB(log.AbsorbedIDs), log.ActorID, log.Source,
		database.NewJSONB(log.Relations), database.NewJSONB(log.Conflicts), log.PerformedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"primary_id": log.PrimaryID,
			"absorbed":   log.AbsorbedIDs,
		}).Error("Failed to create merge audit log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge audit log")
	}

	return nil
}

// ListByEntities returns logs naming any of ids as primary or absorbed record
func (r *Repository) ListByEntities(ctx context.Context, entityType models.EntityType, ids []string) ([]*models.MergeAuditLog, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.ListByEntities")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, entity_type, primary_id, absorbed_ids, actor_id, source, relations, conflicts, performed_at
		FROM merge_audit_logs
		WHERE entity_type = $1
		AND (primary_id::text = ANY($2) OR absorbed_ids ?| $2)
		ORDER BY performed_at, id
	`

	var rows []auditRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, entityType, pq.Array(ids)); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge audit logs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge audit logs")
	}

	logs := make([]*models.MergeAuditLog, len(rows))
	for i := range rows {
		logs[i] = rows[i].toModel()
	}
	return logs, nil
}
