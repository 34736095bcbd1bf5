package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Company is a CanonicalCompany. MergedInto is nil while the record is active.
type Company struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	NormalizedName string    `json:"normalized_name" db:"normalized_name"`
	Domain         *string   `json:"domain,omitempty" db:"domain"`
	Website        *string   `json:"website,omitempty" db:"website"`
	SocialURL      *string   `json:"social_url,omitempty" db:"social_url"`
	CompanyType    *string   `json:"company_type,omitempty" db:"company_type"`
	Industry       *string   `json:"industry,omitempty" db:"industry"`
	Size           *string   `json:"size,omitempty" db:"size"`
	MergedInto     *string   `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

func (c *Company) GetID() string { return c.ID }

func (c *Company) IsTombstoned() bool { return c.MergedInto != nil }

// ScalarFields exposes the optional attributes merged by the Merge Executor.
func (c *Company) ScalarFields() map[string]**string {
	return map[string]**string{
		"domain":       &c.Domain,
		"website":      &c.Website,
		"social_url":   &c.SocialURL,
		"company_type": &c.CompanyType,
		"industry":     &c.Industry,
		"size":         &c.Size,
	}
}

// CompanyColumns is the column list shared by company queries.
var CompanyColumns = []string{
	"id", "name", "normalized_name", "domain", "website", "social_url",
	"company_type", "industry", "size", "merged_into", "created_at", "updated_at",
}

// CreateCompanyRequest creates a canonical company.
type CreateCompanyRequest struct {
	Name        string  `json:"name" validate:"required"`
	Domain      *string `json:"domain,omitempty"`
	Website     *string `json:"website,omitempty"`
	SocialURL   *string `json:"social_url,omitempty"`
	CompanyType *string `json:"company_type,omitempty"`
	Industry    *string `json:"industry,omitempty"`
	Size        *string `json:"size,omitempty"`
}

// Build returns a new active company with normalized keys.
func (r CreateCompanyRequest) Build(now time.Time) *Company {
	c := &Company{
		ID:             uuid.New().String(),
		Name:           strings.TrimSpace(r.Name),
		NormalizedName: normalizers.NormalizeCompanyName(r.Name),
		Website:        StringPtr(Deref(r.Website)),
		CompanyType:    r.CompanyType,
		Industry:       r.Industry,
		Size:           r.Size,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	domain := normalizers.NormalizeDomain(Deref(r.Domain))
	if domain == "" {
		domain = normalizers.WebsiteHost(Deref(r.Website))
	}
	c.Domain = StringPtr(domain)
	c.SocialURL = StringPtr(normalizers.NormalizeSocialURL(Deref(r.SocialURL)))
	return c
}
