package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store/memstore"
)

// seedFile is the fixture format --seed loads into the in-memory store.
type seedFile struct {
	Companies []struct {
		ID string `json:"id"`
		models.CreateCompanyRequest
	} `json:"companies"`
	People []struct {
		ID string `json:"id"`
		models.CreatePersonRequest
	} `json:"people"`
	Relations []struct {
		Type     string            `json:"type"`
		EntityID string            `json:"entity_id"`
		Values   map[string]string `json:"values"`
	} `json:"relations"`
	Candidates     []*models.DuplicateCandidate `json:"candidates"`
	LegacyContacts []*models.LegacyContact      `json:"legacy_contacts"`
}

func loadSeed(ctx context.Context, st *memstore.Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	now := time.Now().UTC()
	err = st.WithTx(ctx, func(ctx context.Context) error {
		for _, c := range seed.Companies {
			company := c.CreateCompanyRequest.Build(now)
			if c.ID != "" {
				company.ID = c.ID
			}
			if err := st.Companies().Create(ctx, company); err != nil {
				return err
			}
		}
		for _, p := range seed.People {
			person := p.CreatePersonRequest.Build(now)
			if p.ID != "" {
				person.ID = p.ID
			}
			if err := st.People().Create(ctx, person); err != nil {
				return err
			}
		}
		for _, r := range seed.Relations {
			if _, _, err := st.Relations().Create(ctx, models.RelationInput{Type: r.Type, EntityID: r.EntityID, Values: r.Values}); err != nil {
				return err
			}
		}
		for _, c := range seed.Candidates {
			c.Status = models.CandidateStatusPending
			c.CreatedAt, c.UpdatedAt = now, now
			if _, _, err := st.Candidates().Create(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load seed file %s: %w", path, err)
	}

	st.AddLegacyContacts(seed.LegacyContacts...)
	return nil
}
