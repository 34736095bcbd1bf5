// Package resolution turns a partial identity into a canonical record by
// matching it and acting on the verdict: link, create, or create and queue
// for review.
package resolution

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/dupqueue"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

// Options tune one resolution.
type Options struct {
	SkipMatch   bool
	CreateOnNew bool
}

// Outcome reports what happened to one identity. RecordID is empty only when
// the verdict was CREATE_NEW and creation was not requested.
type Outcome struct {
	EntityType  models.EntityType        `json:"entity_type"`
	Action      matching.SuggestedAction `json:"action"`
	RecordID    string                   `json:"record_id,omitempty"`
	Created     bool                     `json:"created"`
	MatchedID   string                   `json:"matched_id,omitempty"`
	Score       float64                  `json:"score,omitempty"`
	Queued      bool                     `json:"queued"`
	CandidateID string                   `json:"candidate_id,omitempty"`
	Company     *models.Company          `json:"company,omitempty"`
	Person      *models.Person           `json:"person,omitempty"`
}

// Resolver must run inside the caller's transaction when writes are allowed.
type Resolver struct {
	logger  ectologger.Logger
	store   store.Store
	matcher *matching.Engine
	queue   *dupqueue.Queue
	now     func() time.Time
}

func NewResolver(logger ectologger.Logger, st store.Store, matcher *matching.Engine, queue *dupqueue.Queue) *Resolver {
	return &Resolver{
		logger:  logger,
		store:   st,
		matcher: matcher,
		queue:   queue,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Resolver) Company(ctx context.Context, req models.CreateCompanyRequest, opts Options) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Resolver.Company")
	defer span.End()

	if req.Name == "" {
		return nil, errors.Validation("company name is required")
	}

	create := func() (*Outcome, error) {
		company := req.Build(r.now())
		if err := r.store.Companies().Create(ctx, company); err != nil {
			return nil, errors.Internal(err, "failed to create company")
		}
		return &Outcome{EntityType: models.EntityTypeCompany, RecordID: company.ID, Created: true, Company: company}, nil
	}

	if opts.SkipMatch {
		outcome, err := create()
		if err != nil {
			return nil, err
		}
		outcome.Action = matching.ActionCreateNew
		return outcome, nil
	}

	match, err := r.matcher.FindCompanyMatches(ctx, companyProbe(req))
	if err != nil {
		return nil, err
	}

	outcome, err := r.act(ctx, match, opts, create)
	if err != nil {
		return nil, err
	}
	if outcome.Company == nil && outcome.RecordID != "" {
		outcome.Company = match.Top().Company
	}
	return outcome, nil
}

// Person resolves a contact. employerID, when set, is stored as the new
// record's employer and used as a corroborating match signal.
func (r *Resolver) Person(ctx context.Context, req models.CreatePersonRequest, employerName string, opts Options) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Resolver.Person")
	defer span.End()

	create := func() (*Outcome, error) {
		person := req.Build(r.now())
		if err := r.store.People().Create(ctx, person); err != nil {
			return nil, errors.Internal(err, "failed to create person")
		}
		return &Outcome{EntityType: models.EntityTypePerson, RecordID: person.ID, Created: true, Person: person}, nil
	}

	if opts.SkipMatch {
		outcome, err := create()
		if err != nil {
			return nil, err
		}
		outcome.Action = matching.ActionCreateNew
		return outcome, nil
	}

	match, err := r.matcher.FindPersonMatches(ctx, personProbe(req, employerName))
	if err != nil {
		return nil, err
	}

	outcome, err := r.act(ctx, match, opts, create)
	if err != nil {
		return nil, err
	}
	if outcome.Person == nil && outcome.RecordID != "" {
		outcome.Person = match.Top().Person
	}
	return outcome, nil
}

func (r *Resolver) act(ctx context.Context, match *matching.MatchResult, opts Options, create func() (*Outcome, error)) (*Outcome, error) {
	top := match.Top()

	outcome, err := matching.Visit(match.SuggestedAction, matching.ActionVisitor[*Outcome]{
		LinkExisting: func() (*Outcome, error) {
			return &Outcome{EntityType: match.EntityType, RecordID: top.ID}, nil
		},
		CreateNew: func() (*Outcome, error) {
			if !opts.CreateOnNew {
				return &Outcome{EntityType: match.EntityType}, nil
			}
			return create()
		},
		Review: func() (*Outcome, error) {
			outcome, err := create()
			if err != nil {
				return nil, err
			}
			outcome.Queued = true
			candidate, _, err := r.queue.EnqueueInTx(ctx, dupqueue.EnqueueRequest{
				EntityType: match.EntityType,
				RecordAID:  outcome.RecordID,
				RecordBID:  top.ID,
				Score:      top.Score,
				Signals:    top.Signals,
			})
			if err != nil {
				return nil, err
			}
			outcome.CandidateID = candidate.ID
			return outcome, nil
		},
	})
	if err != nil {
		return nil, err
	}

	outcome.Action = match.SuggestedAction
	if top != nil {
		outcome.MatchedID = top.ID
		outcome.Score = top.Score
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": match.EntityType,
		"action":      outcome.Action.String(),
		"record_id":   outcome.RecordID,
		"matched_id":  outcome.MatchedID,
	}).Debug("Resolved identity")

	return outcome, nil
}

// CompanyBlockKeys names the keys through which resolving req could reach a
// stored company. Requests sharing none of them never resolve to each other.
func (r *Resolver) CompanyBlockKeys(req models.CreateCompanyRequest) []string {
	return r.matcher.CompanyBlockKeys(companyProbe(req))
}

// PersonBlockKeys is CompanyBlockKeys for people.
func (r *Resolver) PersonBlockKeys(req models.CreatePersonRequest) []string {
	return r.matcher.PersonBlockKeys(personProbe(req, ""))
}

func companyProbe(req models.CreateCompanyRequest) matching.CompanyProbe {
	return matching.CompanyProbe{
		Name:      req.Name,
		Domain:    models.Deref(req.Domain),
		Website:   models.Deref(req.Website),
		SocialURL: models.Deref(req.SocialURL),
	}
}

func personProbe(req models.CreatePersonRequest, employerName string) matching.PersonProbe {
	return matching.PersonProbe{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        models.Deref(req.Email),
		SocialURL:    models.Deref(req.SocialURL),
		Title:        models.Deref(req.Title),
		EmployerID:   models.Deref(req.CompanyID),
		EmployerName: employerName,
	}
}
