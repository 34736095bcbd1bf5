package migration

import (
	"context"
	"strings"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
)

const (
	IssueScopeEmpty             = "SCOPE_EMPTY"
	IssueAlreadyMigrated        = "ALREADY_MIGRATED"
	IssueMissingCompanyName     = "MISSING_COMPANY_NAME"
	IssueInvalidEmail           = "INVALID_EMAIL"
	IssueMissingContactIdentity = "MISSING_CONTACT_IDENTITY"
)

type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	LegacyID string   `json:"legacy_id,omitempty"`
	Message  string   `json:"message"`
}

type ReadinessResult struct {
	Scope        string  `json:"scope"`
	Ready        bool    `json:"ready"`
	Issues       []Issue `json:"issues"`
	TotalRows    int     `json:"total_rows"`
	MigratedRows int     `json:"migrated_rows"`
	PendingRows  int     `json:"pending_rows"`
}

// ValidateReadiness inspects a scope without changing anything. Row issues
// are only reported for rows not yet migrated.
func (p *Pipeline) ValidateReadiness(ctx context.Context, scope string) (*ReadinessResult, error) {
	ctx, span := tracing.StartSpan(ctx, "migration.Pipeline.ValidateReadiness")
	defer span.End()

	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.Validation("scope is required")
	}

	rows, err := p.store.Legacy().ListByScope(ctx, scope)
	if err != nil {
		return nil, errors.Internal(err, "failed to load legacy contacts")
	}

	result := &ReadinessResult{Scope: scope, Issues: []Issue{}, TotalRows: len(rows)}
	if len(rows) == 0 {
		result.Issues = append(result.Issues, Issue{
			Code:     IssueScopeEmpty,
			Severity: SeverityBlocking,
			Message:  "scope has no legacy contacts",
		})
		return result, nil
	}

	for _, row := range rows {
		if row.IsMigrated() {
			result.MigratedRows++
			continue
		}
		result.Issues = append(result.Issues, p.rowIssues(row)...)
	}
	result.PendingRows = result.TotalRows - result.MigratedRows

	if result.PendingRows == 0 {
		result.Issues = append(result.Issues, Issue{
			Code:     IssueAlreadyMigrated,
			Severity: SeverityBlocking,
			Message:  "every legacy contact in scope is already migrated",
		})
	}

	result.Ready = !hasBlocking(result.Issues)

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"scope":  scope,
		"ready":  result.Ready,
		"issues": len(result.Issues),
	}).Debug("Validated migration readiness")

	return result, nil
}

func (p *Pipeline) rowIssues(row *models.LegacyContact) []Issue {
	var issues []Issue
	if strings.TrimSpace(row.CompanyName) == "" {
		issues = append(issues, Issue{
			Code:     IssueMissingCompanyName,
			Severity: SeverityBlocking,
			LegacyID: row.ID,
			Message:  "legacy contact has no company name",
		})
	}
	if email := strings.TrimSpace(models.Deref(row.Email)); email != "" && !p.validEmail(email) {
		issues = append(issues, Issue{
			Code:     IssueInvalidEmail,
			Severity: SeverityWarning,
			LegacyID: row.ID,
			Message:  "email " + email + " is not valid and will be ignored",
		})
	}
	if !row.HasContact() && (models.Deref(row.Role) != "" || row.IsPrimary) {
		issues = append(issues, Issue{
			Code:     IssueMissingContactIdentity,
			Severity: SeverityWarning,
			LegacyID: row.ID,
			Message:  "contact has a role but neither a name nor an email; only the buyer is migrated",
		})
	}
	return issues
}

func (p *Pipeline) validEmail(email string) bool {
	return p.validator.Var(email, "email") == nil
}

func hasBlocking(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityBlocking {
			return true
		}
	}
	return false
}
