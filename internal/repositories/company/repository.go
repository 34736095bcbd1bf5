package company

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

const tableName = "canonical_companies"

// Repository handles canonical company persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a company by ID, tombstoned or not
func (r *Repository) Get(ctx context.Context, id string) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(models.CompanyColumns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var company models.Company
	if err := database.Conn(ctx, r.db).GetContext(ctx, &company, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("company %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"company_id": id}).Error("Failed to get company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get company")
	}

	return &company, nil
}

// GetMany retrieves companies by ID. Missing IDs are omitted.
func (r *Repository) GetMany(ctx context.Context, ids []string) ([]*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.GetMany")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(models.CompanyColumns...)
	sb.From(tableName)
	sb.Where(sb.In("id", database.AnyOf(ids)...))
	sb.OrderBy("id")

	return r.selectCompanies(ctx, sb, "failed to get companies")
}

// LockForUpdate locks the company rows in id order for the rest of the transaction
func (r *Repository) LockForUpdate(ctx context.Context, ids []string) ([]*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.LockForUpdate")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(models.CompanyColumns...)
	sb.From(tableName)
	sb.Where(sb.In("id", database.AnyOf(ids)...))
	sb.OrderBy("id")
	sb.ForUpdate()

	return r.selectCompanies(ctx, sb, "failed to lock companies")
}

// Create inserts a new company
func (r *Repository) Create(ctx context.Context, company *models.Company) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Create")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(models.CompanyColumns...)
	sb.Values(company.ID, company.Name, company.NormalizedName, company.Domain, company.Website, company.SocialURL,
		company.CompanyType, company.Industry, company.Size, company.MergedInto, company.CreatedAt, company.UpdatedAt)

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"company_id": company.ID}).Error("Failed to create company")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create company")
	}

	return nil
}

// Update writes every mutable attribute of the company
func (r *Repository) Update(ctx context.Context, company *models.Company) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Update")
	defer span.End()

	company.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("name", company.Name),
		sb.Assign("normalized_name", company.NormalizedName),
		sb.Assign("domain", company.Domain),
		sb.Assign("website", company.Website),
		sb.Assign("social_url", company.SocialURL),
		sb.Assign("company_type", company.CompanyType),
		sb.Assign("industry", company.Industry),
		sb.Assign("size", company.Size),
		sb.Assign("updated_at", company.UpdatedAt),
	)
	sb.Where(sb.Equal("id", company.ID))

	query, args := sb.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"company_id": company.ID}).Error("Failed to update company")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update company")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("company %s not found", company.ID))
	}

	return nil
}

// Tombstone points every id at primaryID
func (r *Repository) Tombstone(ctx context.Context, ids []string, primaryID string) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Tombstone")
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
		}).Error("Failed to tombstone companies")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone companies")
	}

	return nil
}

// Delete removes companies outright. Only migration rollback does this.
func (r *Repository) Delete(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Delete")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(sb.In("id", database.AnyOf(ids)...))

	query, args := sb.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to delete companies")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete companies")
	}

	return nil
}

// FindByDomain returns active companies with the exact normalized domain
func (r *Repository) FindByDomain(ctx context.Context, domain string) ([]*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FindByDomain")
	defer span.End()

	return r.findActive(ctx, "domain", domain, 0)
}

// FindBySocialURL returns active companies with the exact normalized social URL
func (r *Repository) FindBySocialURL(ctx context.Context, socialURL string) ([]*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FindBySocialURL")
	defer span.End()

	return r.findActive(ctx, "social_url", socialURL, 0)
}

// FindByNormalizedName returns active companies with the exact normalized name
func (r *Repository) FindByNormalizedName(ctx context.Context, name string) ([]*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FindByNormalizedName")
	defer span.End()

	return r.findActive(ctx, "normalized_name", name, 0)
}

// FindByNamePrefix returns active companies whose normalized name starts with prefix
func (r *Repository) FindByNamePrefix(ctx context.Context, prefix string, limit int) ([]*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.FindByNamePrefix")
	defer span.End()

	if prefix == "" {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(models.CompanyColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Like("normalized_name", prefix+"%"),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("id")
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.selectCompanies(ctx, sb, "failed to find companies")
}

func (r *Repository) findActive(ctx context.Context, column, value string, limit int) ([]*models.Company, error) {
	if value == "" {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(models.CompanyColumns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal(column, value),
		sb.IsNull("merged_into"),
	)
	sb.OrderBy("id")
	if limit > 0 {
		sb.Limit(limit)
	}

	return r.selectCompanies(ctx, sb, "failed to find companies")
}

func (r *Repository) selectCompanies(ctx context.Context, sb *database.SelectBuilder, failure string) ([]*models.Company, error) {
	query, args := sb.Build()
	var companies []*models.Company
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &companies, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to select companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}

	return companies, nil
}
