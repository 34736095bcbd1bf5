package person

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

const tableName = "canonical_people"

// Repository handles canonical person persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a person by ID, tombstoned or not
func (r *Repository) Get(ctx context.Context, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(models.PersonColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var person models.Person
	if err := database.Conn(ctx, r.db).GetContext(ctx, &person, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": id}).Error("Failed to get person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}

	return &person, nil
}

// GetMany retrieves people by ID. Missing IDs are omitted.
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.GetMany")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(models.PersonColumns...)
	sb.From(tableName)
	sb.Where(sb.In("id", database.AnyOf(ids)...))
	sb.OrderBy("id")

	return r.selectPeople(ctx, sb, "failed to get people")
}

// LockForUpdate locks the person rows in id order for the rest of the transaction
func (r *Repository) LockForUpdate(ctx context.Context, ids []string) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.LockForUpdate")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(models.PersonColumns...)
	sb.From(tableName)
	sb.Where(sb.In("id", database.AnyOf(ids)...))
	sb.OrderBy("id")
	sb.ForUpdate()

	return r.selectPeople(ctx, sb, "failed to lock people")
}

// Create inserts a new person
func (r *Repository) Create(ctx context.Context, person *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(models.PersonColumns...)
	sb.Values(person.ID, person.FirstName, person.LastName, person.NormalizedName, person.Email, person.SocialURL,
		person.Title, person.Phone, person.CompanyID, person.MergedInto, person.CreatedAt, person.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": person.ID}).Error("Failed to create person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create person")
	}

	return nil
}

// Update writes every mutable attribute of the person
func (r *Repository) Update(ctx context.Context, person *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Update")
	defer span.End()

	person.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("first_name", person.FirstName),
		sb.Assign("last_name", person.LastName),
		sb.Assign("normalized_name", person.NormalizedName),
		sb.Assign("email", person.Email),
		sb.Assign("social_url", person.SocialURL),
		sb.Assign("title", person.Title),
		sb.Assign("phone", person.Phone),
		sb.Assign("company_id", person.CompanyID),
		sb.Assign("updated_at", person.UpdatedAt),
	)
	sb.Where(sb.Equal("id", person.ID))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": person.ID}).Error("Failed to update person")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update person")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", person.ID))
	}

	return nil
}

// Tombstone points every id at primaryID
func (r *Repository) Tombstone(ctx context.Context, ids []string, primaryID string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Tombstone")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("merged_into", primaryID),
		sb.Assign("updated_at", time.Now().UTC()),
	)
	sb.Where(sb.In("id", database.AnyOf(ids)...))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"primary_id": primaryID,
			"ids":        ids,
		}).Error("Failed to tombstone people")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone people")
	}

	return nil
}

// Delete removes people outright. Only migration rollback does this.
func (r *Repository) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Delete")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(sb.In("id", database.AnyOf(ids)...))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to delete people")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete people")
	}

	return nil
}

// FindByEmail returns active people with the exact normalized email
func (r *Repository) FindByEmail(ctx context.Context, email string) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindByEmail")
	defer span.End()

	return r.findActive(ctx, "email", email, 0)
}

// FindBySocialURL returns active people with the exact normalized social URL
func (r *Repository) FindBySocialURL(ctx context.Context, socialURL string) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindBySocialURL")
	defer span.End()

	return r.findActive(ctx, "social_url", socialURL, 0)
}

// FindByNormalizedName returns active people with the exact normalized name
func (r *Repository) FindByNormalizedName(ctx context.Context, name string) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindByNormalizedName")
	defer span.End()

	return r.findActive(ctx, "normalized_name", name, 0)
}

// FindByNamePrefix returns active people whose normalized name starts with prefix
func (r *Repository) FindByNamePrefix(ctx context.Context, prefix string, limit int) ([]*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindByNamePrefix")
	defer span.End()

	if prefix == "" {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(models.PersonColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Like("normalized_name", prefix+"%"),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("id")
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.selectPeople(ctx, sb, "failed to find people")
}

func (r *Repository) findActive(ctx context.Context, column, value string, limit int) ([]*models.Person, error) {
	if value == "" {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(models.PersonColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal(column, value),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("id")
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.selectPeople(ctx, sb, "failed to find people")
}

func (r *Repository) selectPeople(ctx context.Context, sb *database.SelectBuilder, failure string) ([]*models.Person, error) {
	query, args := sb.Build()
	var people []*models.Person
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &people, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to select people")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}

	return people, nil
}
