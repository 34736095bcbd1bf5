package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Person is a CanonicalPerson. CompanyID is a weak employer reference.
type Person struct {
	ID             string    `json:"id" db:"id"`
	FirstName      string    `json:"first_name" db:"first_name"`
	LastName       string    `json:"last_name" db:"last_name"`
	NormalizedName string    `json:"normalized_name" db:"normalized_name"`
	Email          *string   `json:"email,omitempty" db:"email"`
	SocialURL      *string   `json:"social_url,omitempty" db:"social_url"`
	Title          *string   `json:"title,omitempty" db:"title"`
	Phone          *string   `json:"phone,omitempty" db:"phone"`
	CompanyID      *string   `json:"company_id,omitempty" db:"company_id"`
	MergedInto     *string   `json:"merged_into,omitempty" db:"merged_into"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

func (p *Person) GetID() string { return p.ID }

func (p *Person) IsTombstoned() bool { return p.MergedInto != nil }

func (p *Person) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p *Person) ScalarFields() map[string]**string {
	return map[string]**string{
		"email":      &p.Email,
		"social_url": &p.SocialURL,
		"title":      &p.Title,
		"phone":      &p.Phone,
		"company_id": &p.CompanyID,
	}
}

var PersonColumns = []string{
	"id", "first_name", "last_name", "normalized_name", "email", "social_url",
	"title", "phone", "company_id", "merged_into", "created_at", "updated_at",
}

type CreatePersonRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	SocialURL *string `json:"social_url,omitempty"`
	Title     *string `json:"title,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	CompanyID *string `json:"company_id,omitempty"`
}

func (r CreatePersonRequest) Build(now time.Time) *Person {
	p := &Person{
		ID:        uuid.New().String(),
		FirstName: strings.TrimSpace(r.FirstName),
		LastName:  strings.TrimSpace(r.LastName),
		Title:     StringPtr(Deref(r.Title)),
		CompanyID: r.CompanyID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	p.NormalizedName = normalizers.NormalizeName(p.FullName())
	p.Email = StringPtr(normalizers.NormalizeEmail(Deref(r.Email)))
	p.SocialURL = StringPtr(normalizers.NormalizeSocialURL(Deref(r.SocialURL)))
	p.Phone = StringPtr(normalizers.NormalizePhone(Deref(r.Phone)))
	return p
}
