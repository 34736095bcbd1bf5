package candidate

import (
	"context"
	"database/sql"
	"errors"
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

const tableName = "duplicate_candidates"

var columns = []string{
	"id", "entity_type", "record_a_id", "record_b_id", "score", "signals", "status",
	"resolution", "resolved_by", "resolved_at", "created_at", "updated_at",
}

// Repository handles duplicate candidate persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// candidateRow carries the JSONB signals column
type candidateRow struct {
	models.DuplicateCandidate
	Signals database.JSONB[[]string] `db:"signals"`
}

func (row *candidateRow) toModel() *models.DuplicateCandidate {
	c := row.DuplicateCandidate
	c.Signals = row.Signals.Data
	return &c
}

// Create inserts a candidate unless the partial unique index already holds a
// PENDING row for the same unordered pair. In that case the held row is
// returned with created false, which keeps concurrent enqueues of one pair
// from failing.
func (r *Repository) Create(ctx context.Context, candidate *models.DuplicateCandidate) (*models.DuplicateCandidate, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Create")
	defer span.End()

	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	if candidate.CreatedAt.IsZero() {
		candidate.CreatedAt = time.Now().UTC()
	}
	candidate.UpdatedAt = candidate.CreatedAt
	if candidate.Status == "" {
		candidate.Status = models.CandidateStatusPending
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(tableName)
	ib.Cols(columns...)
	ib.Values(candidate.ID, candidate.EntityType, candidate.RecordAID, candidate.RecordBID, candidate.Score,
		database.NewJSONB(candidate.Signals), candidate.Status, candidate.Resolution, candidate.ResolvedBy,
		candidate.ResolvedAt, candidate.CreatedAt, candidate.UpdatedAt)
	ib.OnConflictDoNothing()
	ib.Returning("id")

	query, args := ib.Build()
	var inserted string
	err := database.Conn(ctx, r.db).GetContext(ctx, &inserted, query, args...)
	if err == nil {
		return candidate, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidate.ID}).Error("Failed to create duplicate candidate")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create duplicate candidate")
	}

	existing, err := r.FindPendingPair(ctx, candidate.EntityType, candidate.RecordAID, candidate.RecordBID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("duplicate candidate %s already exists", candidate.ID))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": existing.ID,
		"entity_type":  existing.EntityType,
	}).Debug("Pending pair already queued")
	return existing, false, nil
}

// Get retrieves a duplicate candidate by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Get")
	defer span.End()

	return r.get(ctx, id, false)
}

// GetForUpdate retrieves a candidate and locks its row
func (r *Repository) GetForUpdate(ctx context.Context, id string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.GetForUpdate")
	defer span.End()

	return r.get(ctx, id, true)
}

func (r *Repository) get(ctx context.Context, id string, lock bool) (*models.DuplicateCandidate, error) {
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))
	if lock {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var row candidateRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("duplicate candidate %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": id}).Error("Failed to get duplicate candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate candidate")
	}

	return row.toModel(), nil
}

// FindPendingPair gets the pending candidate between two records (regardless of order)
func (r *Repository) FindPendingPair(ctx context.Context, entityType models.EntityType, a, b string) (*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.FindPendingPair")
	defer span.End()

	query := `
		SELECT id, entity_type, record_a_id, record_b_id, score, signals, status, resolution, resolved_by, resolved_at, created_at, updated_at
		FROM duplicate_candidates
		WHERE entity_type = $1
		AND status = 'PENDING'
		AND ((record_a_id = $2 AND record_b_id = $3) OR (record_a_id = $3 AND record_b_id = $2))
		LIMIT 1
	`

	var row candidateRow
	if err := database.Conn(ctx, r.db).GetContext(ctx, &row, query, entityType, a, b); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil // No pending candidate
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get duplicate candidate by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get duplicate candidate")
	}

	return row.toModel(), nil
}

// Update writes the pair, status and resolution of a candidate
func (r *Repository) Update(ctx context.Context, candidate *models.DuplicateCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Update")
	defer span.End()

	candidate.UpdatedAt = time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("record_a_id", candidate.RecordAID),
		sb.Assign("record_b_id", candidate.RecordBID),
		sb.Assign("status", candidate.Status),
		sb.Assign("resolution", candidate.Resolution),
		sb.Assign("resolved_by", candidate.ResolvedBy),
		sb.Assign("resolved_at", candidate.ResolvedAt),
		sb.Assign("updated_at", candidate.UpdatedAt),
	)
	sb.Where(sb.Equal("id", candidate.ID))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"candidate_id": candidate.ID}).Error("Failed to update duplicate candidate")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update duplicate candidate")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("duplicate candidate %s not found", candidate.ID))
	}

	return nil
}

// Delete removes candidates without resolving them
func (r *Repository) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.Delete")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(sb.In("id", database.AnyOf(ids)...))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to delete duplicate candidates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete duplicate candidates")
	}

	return nil
}

// ListPending retrieves pending candidates for review, best score first
func (r *Repository) ListPending(ctx context.Context, entityType models.EntityType, limit int) ([]*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	where := []string{sb.Equal("status", models.CandidateStatusPending)}
	if entityType != "" {
		where = append(where, sb.Equal("entity_type", entityType))
	}
	sb.Where(where...)
	sb.OrderBy("score DESC", "created_at", "id")
	sb.Limit(limit)

	return r.selectCandidates(ctx, sb, "failed to list pending duplicate candidates")
}

// ListPendingByEntities retrieves pending candidates with either side in ids
func (r *Repository) ListPendingByEntities(ctx context.Context, entityType models.EntityType, ids []string) ([]*models.DuplicateCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.ListPendingByEntities")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("entity_type", entityType),
		sb.Equal("status", models.CandidateStatusPending),
		sb.Or(
			sb.In("record_a_id", database.AnyOf(ids)...),
			sb.In("record_b_id", database.AnyOf(ids)...),
		),
	)
	sb.OrderBy("id")
	sb.ForUpdate()

	return r.selectCandidates(ctx, sb, "failed to list duplicate candidates")
}

func (r *Repository) selectCandidates(ctx context.Context, sb *database.SelectBuilder, failure string) ([]*models.DuplicateCandidate, error) {
	query, args := sb.Build()
	var rows []candidateRow
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to select duplicate candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}

	candidates := make([]*models.DuplicateCandidate, len(rows))
	for i := range rows {
		candidates[i] = rows[i].toModel()
	}
	return candidates, nil
}
