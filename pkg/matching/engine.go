// Package matching decides whether a partial identity matches stored canonical
// records. It is a pure query and never writes.
package matching

import (
	"context"
	"sort"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/store"
)

// Config holds the score bands. A top score at or above LinkThreshold links,
// at or above ReviewFloor goes to review, and anything lower creates.
type Config struct {
	LinkThreshold      float64 `validate:"gt=0,lte=1"`
	ReviewFloor        float64 `validate:"gt=0,ltefield=LinkThreshold"`
	NearExactThreshold float64 `validate:"gt=0,lte=1"`
	MaxCandidates      int     `validate:"gte=1"`
	PrefixLength       int     `validate:"gte=1"`
	BlockSize          int     `validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{
		LinkThreshold:      0.85,
		ReviewFloor:        0.50,
		NearExactThreshold: 0.92,
		MaxCandidates:      10,
		PrefixLength:       3,
		BlockSize:          200,
	}
}

// Candidate is one ranked match. Tier is 1 for a strong key hit and 2 for a
// fuzzy name match.
type Candidate struct {
	ID      string          `json:"id"`
	Score   float64         `json:"score"`
	Tier    int             `json:"tier"`
	Signals []string        `json:"signals"`
	Company *models.Company `json:"company,omitempty"`
	Person  *models.Person  `json:"person,omitempty"`
}

type MatchResult struct {
	EntityType      models.EntityType `json:"entity_type"`
	Candidates      []Candidate       `json:"candidates"`
	SuggestedAction SuggestedAction   `json:"suggested_action"`
}

// Top returns the best candidate, or nil.
func (r *MatchResult) Top() *Candidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

type Engine struct {
	logger   ectologger.Logger
	store    store.Store
	config   Config
	scorer   *Scorer
	validate *validator.Validate
}

func NewEngine(logger ectologger.Logger, st store.Store, config Config) (*Engine, error) {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, errors.Validation("invalid match config: %v", err)
	}
	return &Engine{
		logger:   logger,
		store:    st,
		config:   config,
		scorer:   NewScorer(config.NearExactThreshold),
		validate: validate,
	}, nil
}

// FindCompanyMatches ranks stored companies against probe.
func (e *Engine) FindCompanyMatches(ctx context.Context, probe CompanyProbe) (*MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.FindCompanyMatches")
	defer span.End()

	if err := e.checkProbe(probe, probe.empty()); err != nil {
		return nil, err
	}

	keys := probe.keys()
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": models.EntityTypeCompany,
		"domain":      keys.domain,
		"name":        keys.name,
	})

	hits := newCandidateSet(probe.ExcludeIDs)
	companies := e.store.Companies()

	if keys.domain != "" {
		found, err := companies.FindByDomain(ctx, keys.domain)
		if err != nil {
			return nil, errors.Internal(err, "failed to match company domain")
		}
		for _, c := range found {
			hits.strong(c.ID, SignalDomainExact).Company = c
		}
	}
	if keys.social != "" {
		found, err := companies.FindBySocialURL(ctx, keys.social)
		if err != nil {
			return nil, errors.Internal(err, "failed to match company social URL")
		}
		for _, c := range found {
			hits.strong(c.ID, SignalSocialURLExact).Company = c
		}
	}
	if hits.len() > 0 {
		log.Debug("Company matched on a strong key")
		return e.strongResult(models.EntityTypeCompany, hits), nil
	}

	if keys.normalizedName == "" {
		return e.decide(models.EntityTypeCompany, hits), nil
	}

	blocked, err := e.blockCompanies(ctx, keys.normalizedName)
	if err != nil {
		return nil, err
	}

	probeLabel := normalizers.DomainLabel(keys.domain)
	for _, c := range blocked {
		if hits.excluded(c.ID) || c.IsTombstoned() {
			continue
		}
		base, signal := e.scorer.CompanyName(probe.Name, c.Name)
		if base == 0 {
			continue
		}
		cand := hits.fuzzy(c.ID, base, signal)
		cand.Company = c

		if probeLabel != "" && probeLabel == normalizers.DomainLabel(companyDomain(c)) {
			cand.add(scoreDomainLabel, SignalDomainLabel)
		}
	}

	result := e.decide(models.EntityTypeCompany, hits)
	log.WithFields(map[string]any{
		"candidates": len(result.Candidates),
		"action":     result.SuggestedAction.String(),
	}).Debug("Company fuzzy match complete")
	return result, nil
}

// FindPersonMatches ranks stored people against probe.
func (e *Engine) FindPersonMatches(ctx context.Context, probe PersonProbe) (*MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.FindPersonMatches")
	defer span.End()

	probe.Email = strings.TrimSpace(probe.Email)
	if err := e.checkProbe(probe, probe.empty()); err != nil {
		return nil, err
	}

	keys := probe.keys()
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": models.EntityTypePerson,
		"email":       keys.email,
		"name":        keys.normalizedName,
	})

	hits := newCandidateSet(probe.ExcludeIDs)
	people := e.store.People()

	if keys.email != "" {
		found, err := people.FindByEmail(ctx, keys.email)
		if err != nil {
			return nil, errors.Internal(err, "failed to match person email")
		}
		for _, p := range found {
			hits.strong(p.ID, SignalEmailExact).Person = p
		}
	}
	if keys.social != "" {
		found, err := people.FindBySocialURL(ctx, keys.social)
		if err != nil {
			return nil, errors.Internal(err, "failed to match person social URL")
		}
		for _, p := range found {
			hits.strong(p.ID, SignalSocialURLExact).Person = p
		}
	}
	if hits.len() > 0 {
		log.Debug("Person matched on a strong key")
		return e.strongResult(models.EntityTypePerson, hits), nil
	}

	if keys.normalizedName == "" {
		return e.decide(models.EntityTypePerson, hits), nil
	}

	blocked, err := e.blockPeople(ctx, keys.normalizedName)
	if err != nil {
		return nil, err
	}

	employers, err := e.employerNames(ctx, blocked)
	if err != nil {
		return nil, err
	}

	for _, p := range blocked {
		if hits.excluded(p.ID) || p.IsTombstoned() {
			continue
		}
		base, signal := e.scorer.PersonName(keys.normalizedName, p.NormalizedName)
		if base == 0 {
			continue
		}
		cand := hits.fuzzy(p.ID, base, signal)
		cand.Person = p

		if sharesEmployer(probe, p, employers) {
			cand.add(scoreSharedEmployer, SignalSharedEmployer)
		}
		if keys.title != "" && keys.title == normalizers.NormalizeTitle(models.Deref(p.Title)) {
			cand.add(scoreTitleExact, SignalTitleExact)
		}
	}

	result := e.decide(models.EntityTypePerson, hits)
	log.WithFields(map[string]any{
		"candidates": len(result.Candidates),
		"action":     result.SuggestedAction.String(),
	}).Debug("Person fuzzy match complete")
	return result, nil
}

func (e *Engine) checkProbe(probe any, empty bool) error {
	if empty {
		return errors.Validation("probe carries no identifying field")
	}
	if err := e.validate.Struct(probe); err != nil {
		return errors.Validation("invalid probe: %v", err)
	}
	return nil
}

// blockCompanies loads the fuzzy candidates: exact normalized name plus a
// name prefix window.
func (e *Engine) blockCompanies(ctx context.Context, normalizedName string) ([]*models.Company, error) {
	companies := e.store.Companies()

	exact, err := companies.FindByNormalizedName(ctx, normalizedName)
	if err != nil {
		return nil, errors.Internal(err, "failed to block companies by name")
	}

	var prefixed []*models.Company
	if prefix := namePrefix(normalizedName, e.config.PrefixLength); prefix != "" {
		prefixed, err = companies.FindByNamePrefix(ctx, prefix, e.config.BlockSize)
		if err != nil {
			return nil, errors.Internal(err, "failed to block companies by prefix")
		}
	}

	return uniqueRecords(append(exact, prefixed...)), nil
}

func (e *Engine) blockPeople(ctx context.Context, normalizedName string) ([]*models.Person, error) {
	people := e.store.People()

	exact, err := people.FindByNormalizedName(ctx, normalizedName)
	if err != nil {
		return nil, errors.Internal(err, "failed to block people by name")
	}

	var prefixed []*models.Person
	if prefix := namePrefix(normalizedName, e.config.PrefixLength); prefix != "" {
		prefixed, err = people.FindByNamePrefix(ctx, prefix, e.config.BlockSize)
		if err != nil {
			return nil, errors.Internal(err, "failed to block people by prefix")
		}
	}

	return uniqueRecords(append(exact, prefixed...)), nil
}

// employerNames loads the display names of the blocked people's employers.
func (e *Engine) employerNames(ctx context.Context, people []*models.Person) (map[string]string, error) {
	var ids []string
	for _, id := range ectolinq.Map(people, func(p *models.Person) string { return models.Deref(p.CompanyID) }) {
		if id != "" && !ectolinq.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	companies, err := e.store.Companies().GetMany(ctx, ids)
	if err != nil {
		return nil, errors.Internal(err, "failed to load employers")
	}

	names := make(map[string]string, len(companies))
	for _, c := range companies {
		names[c.ID] = c.Name
	}
	return names, nil
}

func sharesEmployer(probe PersonProbe, p *models.Person, employers map[string]string) bool {
	companyID := models.Deref(p.CompanyID)
	if companyID == "" {
		return false
	}
	if probe.EmployerID != "" && probe.EmployerID == companyID {
		return true
	}
	return probe.EmployerName != "" && SameEmployer(probe.EmployerName, employers[companyID])
}

// strongResult links a unique strong-key hit and reviews several.
func (e *Engine) strongResult(entityType models.EntityType, hits *candidateSet) *MatchResult {
	candidates := hits.ranked()
	action := ActionLinkExisting
	if len(candidates) > 1 {
		action = ActionReview
	}
	return &MatchResult{EntityType: entityType, Candidates: candidates, SuggestedAction: action}
}

// decide drops candidates below the floor and applies the bands. A tie at the
// top of the link band is ambiguous and goes to review.
func (e *Engine) decide(entityType models.EntityType, hits *candidateSet) *MatchResult {
	candidates := ectolinq.Filter(hits.ranked(), func(c Candidate) bool {
		return c.Score >= e.config.ReviewFloor
	})
	if len(candidates) > e.config.MaxCandidates {
		candidates = candidates[:e.config.MaxCandidates]
	}

	result := &MatchResult{EntityType: entityType, Candidates: candidates, SuggestedAction: ActionCreateNew}
	if len(candidates) == 0 {
		return result
	}

	top := candidates[0].Score
	switch {
	case top >= e.config.LinkThreshold && (len(candidates) == 1 || candidates[1].Score < top):
		result.SuggestedAction = ActionLinkExisting
	default:
		result.SuggestedAction = ActionReview
	}
	return result
}

func companyDomain(c *models.Company) string {
	if d := normalizers.NormalizeDomain(models.Deref(c.Domain)); d != "" {
		return d
	}
	return normalizers.WebsiteHost(models.Deref(c.Website))
}

func uniqueRecords[T models.Record](records []T) []T {
	seen := make(map[string]bool, len(records))
	out := make([]T, 0, len(records))
	for _, r := range records {
		if seen[r.GetID()] {
			continue
		}
		seen[r.GetID()] = true
		out = append(out, r)
	}
	return out
}

// candidateSet accumulates candidates by id.
type candidateSet struct {
	byID    map[string]*Candidate
	exclude map[string]bool
}

func newCandidateSet(exclude []string) *candidateSet {
	set := &candidateSet{byID: map[string]*Candidate{}, exclude: map[string]bool{}}
	for _, id := range exclude {
		set.exclude[id] = true
	}
	return set
}

func (s *candidateSet) excluded(id string) bool {
	return s.exclude[id]
}

func (s *candidateSet) len() int {
	return len(s.byID)
}

func (s *candidateSet) get(id string, tier int) *Candidate {
	c, ok := s.byID[id]
	if !ok {
		c = &Candidate{ID: id, Tier: tier, Signals: []string{}}
		s.byID[id] = c
	}
	return c
}

// strong records a tier 1 hit. Excluded ids still get a throwaway candidate
// so callers can set fields without nil checks.
func (s *candidateSet) strong(id, signal string) *Candidate {
	if s.exclude[id] {
		return &Candidate{}
	}
	c := s.get(id, 1)
	c.Score = scoreStrongKey
	c.Signals = appendSignal(c.Signals, signal)
	return c
}

func (s *candidateSet) fuzzy(id string, base float64, signal string) *Candidate {
	c := s.get(id, 2)
	c.add(base, signal)
	return c
}

func (c *Candidate) add(score float64, signal string) {
	c.Score += score
	if c.Score > 1.0 {
		c.Score = 1.0
	}
	// round away float noise so equal evidence ties exactly
	c.Score = float64(int(c.Score*1000+0.5)) / 1000
	c.Signals = appendSignal(c.Signals, signal)
}

func appendSignal(signals []string, signal string) []string {
	if signal == "" || ectolinq.Contains(signals, signal) {
		return signals
	}
	return append(signals, signal)
}

// ranked orders by score desc, then id asc.
func (s *candidateSet) ranked() []Candidate {
	out := make([]Candidate, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	return out
}
