// Package intake resolves free-form contact input in one call: parse it, match
// every fragment and act on each verdict.
package intake

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/internal/platform/reqctx"
	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/parser"
	"github.com/Ramsey-B/fern/pkg/resolution"
	"github.com/Ramsey-B/fern/pkg/store"
)

type IngestRequest struct {
	Input      string `json:"input" validate:"required"`
	ActorID    string `json:"actor_id,omitempty"`
	AutoCreate bool   `json:"auto_create"`
}

// Decision is the verdict for one parsed fragment. Exactly one of Outcome and
// Error is set.
type Decision struct {
	EntityType models.EntityType       `json:"entity_type"`
	Index      int                     `json:"index"`
	Company    *parser.CompanyFragment `json:"company,omitempty"`
	Person     *parser.PersonFragment  `json:"person,omitempty"`
	Outcome    *resolution.Outcome     `json:"outcome,omitempty"`
	Error      *DecisionError          `json:"error,omitempty"`
}

type DecisionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type IngestResult struct {
	Parse     *parser.ParseResult `json:"parse"`
	Decisions []Decision          `json:"decisions"`
	Linked    int                 `json:"linked"`
	Created   int                 `json:"created"`
	Queued    int                 `json:"queued"`
	Failed    int                 `json:"failed"`
}

type Service struct {
	logger    ectologger.Logger
	store     store.Store
	resolver  *resolution.Resolver
	emitter   *events.Emitter
	validator *validator.Validate
}

func NewService(logger ectologger.Logger, st store.Store, resolver *resolution.Resolver, emitter *events.Emitter) *Service {
	return &Service{
		logger:    logger,
		store:     st,
		resolver:  resolver,
		emitter:   emitter,
		validator: validator.New(),
	}
}

// Ingest resolves companies before people so a person can take the record
// its company fragment resolved to as employer. A failing fragment is
// reported in its decision and does not stop the others.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "intake.Service.Ingest")
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return nil, errors.Validation("invalid ingest request: %v", err)
	}
	if req.ActorID != "" {
		ctx = reqctx.SetUserID(ctx, req.ActorID)
	}

	parsed := parser.Parse(req.Input)
	if len(parsed.Companies) == 0 && len(parsed.People) == 0 {
		return nil, errors.Validation("no company or person found in input")
	}

	result := &IngestResult{Parse: parsed, Decisions: []Decision{}}
	opts := resolution.Options{CreateOnNew: req.AutoCreate}
	employers := map[string]string{}

	for i := range parsed.Companies {
		fragment := parsed.Companies[i]
		decision := Decision{EntityType: models.EntityTypeCompany, Index: i, Company: &fragment}
		outcome, err := s.resolveCompany(ctx, fragment, opts)
		s.settle(ctx, result, &decision, outcome, err)
		if outcome != nil && outcome.RecordID != "" {
			if name := normalizers.NormalizeCompanyName(companyName(fragment)); name != "" {
				employers[name] = outcome.RecordID
			}
		}
	}

	for i := range parsed.People {
		fragment := parsed.People[i]
		decision := Decision{EntityType: models.EntityTypePerson, Index: i, Person: &fragment}
		outcome, err := s.resolvePerson(ctx, fragment, employers, opts)
		s.settle(ctx, result, &decision, outcome, err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"format":    parsed.Format,
		"decisions": len(result.Decisions),
		"linked":    result.Linked,
		"created":   result.Created,
		"queued":    result.Queued,
		"failed":    result.Failed,
	}).Info("Ingested contact input")

	return result, nil
}

func (s *Service) resolveCompany(ctx context.Context, fragment parser.CompanyFragment, opts resolution.Options) (*resolution.Outcome, error) {
	req := models.CreateCompanyRequest{
		Name:      companyName(fragment),
		Domain:    fragment.Domain,
		Website:   fragment.Website,
		SocialURL: fragment.SocialURL,
	}

	var outcome *resolution.Outcome
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = s.resolver.Company(ctx, req, opts)
		return err
	})
	return outcome, err
}

func (s *Service) resolvePerson(ctx context.Context, fragment parser.PersonFragment, employers map[string]string, opts resolution.Options) (*resolution.Outcome, error) {
	first, last := personName(fragment)
	req := models.CreatePersonRequest{
		FirstName: first,
		LastName:  last,
		Email:     fragment.Email,
		SocialURL: fragment.SocialURL,
		Title:     fragment.Title,
		Phone:     fragment.Phone,
	}
	employerName := models.Deref(fragment.CompanyName)
	if id, ok := employers[normalizers.NormalizeCompanyName(employerName)]; ok {
		req.CompanyID = &id
	}

	var outcome *resolution.Outcome
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		outcome, err = s.resolver.Person(ctx, req, employerName, opts)
		return err
	})
	return outcome, err
}

// settle records a decision and, once its transaction has committed,
// announces any candidate it queued.
func (s *Service) settle(ctx context.Context, result *IngestResult, decision *Decision, outcome *resolution.Outcome, err error) {
	if err != nil {
		decision.Error = &DecisionError{Code: codeOf(err), Message: err.Error()}
		result.Failed++
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": decision.EntityType,
			"index":       decision.Index,
		}).Warn("Fragment failed to resolve")
		result.Decisions = append(result.Decisions, *decision)
		return
	}

	decision.Outcome = outcome
	switch {
	case outcome.Created:
		result.Created++
	case outcome.RecordID != "":
		result.Linked++
	}
	if outcome.Queued {
		result.Queued++
		if candidate, err := s.store.Candidates().Get(ctx, outcome.CandidateID); err == nil {
			s.emitter.CandidateEnqueued(ctx, candidate)
		}
	}
	result.Decisions = append(result.Decisions, *decision)
}

// companyName falls back to the domain when the parser found no name.
func companyName(fragment parser.CompanyFragment) string {
	if name := strings.TrimSpace(models.Deref(fragment.Name)); name != "" {
		return name
	}
	if domain := models.Deref(fragment.Domain); domain != "" {
		return domain
	}
	return normalizers.WebsiteHost(models.Deref(fragment.Website))
}

// personName prefers explicit first and last names and otherwise splits the
// full name on its first space.
func personName(fragment parser.PersonFragment) (string, string) {
	first, last := models.Deref(fragment.FirstName), models.Deref(fragment.LastName)
	if first != "" || last != "" {
		return first, last
	}
	parts := strings.Fields(models.Deref(fragment.FullName))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func codeOf(err error) string {
	if code := errors.CodeOf(err); code != "" {
		return code
	}
	return string(errors.KindOf(err))
}
