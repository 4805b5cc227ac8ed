package patientcase

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/platform/anonymize"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

type Service struct {
	pool     *pgxpool.Pool
	cases    Repository
	entities EntityRepository
	events   history.Repository
	recorder *history.Recorder
	anon     *anonymize.Anonymizer
}

func NewService(pool *pgxpool.Pool, cases Repository, entities EntityRepository, events history.Repository, anon *anonymize.Anonymizer) *Service {
	return &Service{
		pool:     pool,
		cases:    cases,
		entities: entities,
		events:   events,
		recorder: history.NewRecorder(events),
		anon:     anon,
	}
}

// GeneratePseudoidentifier produces an unused identifier of the form
// X.NNNN.NNN.NN, prefixed by the clinical center's initial.
func (s *Service) GeneratePseudoidentifier(ctx context.Context, clinicalCenter string) (string, error) {
	prefix := "X"
	if trimmed := strings.TrimSpace(clinicalCenter); trimmed != "" {
		initial := strings.ToUpper(trimmed[:1])
		if initial[0] >= 'A' && initial[0] <= 'Z' {
			prefix = initial
		}
	}
	for attempt := 0; attempt < 100; attempt++ {
		candidate := fmt.Sprintf("%s.%04d.%03d.%02d",
			prefix, rand.Intn(10000), rand.Intn(1000), rand.Intn(100))
		exists, err := s.cases.PseudoidentifierExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not generate a free pseudoidentifier")
}

func (s *Service) CreateCase(ctx context.Context, c *Case) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.ClinicalIdentifier != nil {
		taken, err := s.cases.ClinicalIdentifierExists(ctx, c.ClinicalCenter, *c.ClinicalIdentifier, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("clinical identifier already in use at %s: %w", c.ClinicalCenter, ErrConflict)
		}
	}
	if c.Pseudoidentifier == "" {
		pseudo, err := s.GeneratePseudoidentifier(ctx, c.ClinicalCenter)
		if err != nil {
			return err
		}
		c.Pseudoidentifier = pseudo
	}
	c.CreatedBy = auth.UsernameFromContext(ctx)
	c.Description = c.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.cases.Create(ctx, c); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKind, c.ID, history.LabelCreate, c, nil)
	})
}

// GetCase loads a case with its derived fields. The anonymized flag
// redacts identifying fields before returning.
func (s *Service) GetCase(ctx context.Context, id uuid.UUID, anonymized bool) (*Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.decorate(ctx, c, true); err != nil {
		return nil, err
	}
	if anonymized {
		c.Anonymize(s.anon)
	}
	return c, nil
}

func (s *Service) ListCases(ctx context.Context, filters CaseFilters, p pagination.Params) ([]*Case, int, error) {
	cases, total, err := s.cases.List(ctx, filters, p)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range cases {
		if err := s.decorate(ctx, c, false); err != nil {
			return nil, 0, err
		}
		if p.Anonymized {
			c.Anonymize(s.anon)
		}
	}
	return cases, total, nil
}

func (s *Service) UpdateCase(ctx context.Context, c *Case) error {
	previous, err := s.cases.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	c.Pseudoidentifier = previous.Pseudoidentifier
	c.CreatedBy = previous.CreatedBy
	c.CreatedAt = previous.CreatedAt
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.ClinicalIdentifier != nil {
		taken, err := s.cases.ClinicalIdentifierExists(ctx, c.ClinicalCenter, *c.ClinicalIdentifier, c.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("clinical identifier already in use at %s: %w", c.ClinicalCenter, ErrConflict)
		}
	}
	c.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	c.Description = c.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.cases.Update(ctx, c); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKind, c.ID, history.LabelUpdate, c, previous)
	})
}

func (s *Service) DeleteCase(ctx context.Context, id uuid.UUID) error {
	previous, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.cases.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKind, id, history.LabelDelete, previous, nil)
	})
}

// decorate fills the derived fields. Contributor aggregation walks all
// child entities and is only done for single reads.
func (s *Service) decorate(ctx context.Context, c *Case, full bool) error {
	now := time.Now().UTC()
	c.Age = c.AgeYears(now)
	diagnosis, err := s.cases.EarliestAssertionDate(ctx, c.ID)
	if err != nil {
		return err
	}
	if diagnosis != nil {
		c.AgeAtDiagnosis = yearsBetween(c.DateOfBirth, *diagnosis)
	}
	completion, err := s.cases.CategoryCompletion(ctx, c.ID)
	if err != nil {
		return err
	}
	complete := 0
	for _, done := range completion {
		if done {
			complete++
		}
	}
	if len(completion) > 0 {
		c.CompletionRate = float64(complete) / float64(len(completion))
	}
	if full {
		ids, err := s.cases.ChildEntityIDs(ctx, c.ID)
		if err != nil {
			return err
		}
		contributors, err := s.events.Contributors(ctx, ids)
		if err != nil {
			return err
		}
		c.Contributors = contributors
	}
	return nil
}

// -- Neoplastic entities --

func (s *Service) CreateEntity(ctx context.Context, e *NeoplasticEntity) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, e.CaseID); err != nil {
		return err
	}
	e.CreatedBy = auth.UsernameFromContext(ctx)
	e.Description = e.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.entities.Create(ctx, e); err != nil {
			return err
		}
		return s.recorder.Record(ctx, NeoplasticEntityKind, e.ID, history.LabelCreate, e, nil)
	})
}

func (s *Service) GetEntity(ctx context.Context, id uuid.UUID, anonymized bool) (*NeoplasticEntity, error) {
	e, err := s.entities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, e.CaseID)
		if err != nil {
			return nil, err
		}
		e.Anonymize(s.anon, key)
	}
	return e, nil
}

func (s *Service) ListEntities(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*NeoplasticEntity, int, error) {
	entities, total, err := s.entities.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(entities) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, e := range entities {
			e.Anonymize(s.anon, key)
		}
	}
	return entities, total, nil
}

func (s *Service) UpdateEntity(ctx context.Context, e *NeoplasticEntity) error {
	previous, err := s.entities.GetByID(ctx, e.ID)
	if err != nil {
		return err
	}
	e.CaseID = previous.CaseID
	e.CreatedBy = previous.CreatedBy
	e.CreatedAt = previous.CreatedAt
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	e.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	e.Description = e.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.entities.Update(ctx, e); err != nil {
			return err
		}
		return s.recorder.Record(ctx, NeoplasticEntityKind, e.ID, history.LabelUpdate, e, previous)
	})
}

func (s *Service) DeleteEntity(ctx context.Context, id uuid.UUID) error {
	previous, err := s.entities.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.entities.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, NeoplasticEntityKind, id, history.LabelDelete, previous, nil)
	})
}

func (s *Service) caseKey(ctx context.Context, caseID uuid.UUID) (string, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return "", err
	}
	return c.Pseudoidentifier, nil
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

// -- Reversion --

// CaseReverter restores a case row from an event snapshot.
type CaseReverter struct {
	svc *Service
}

func NewCaseReverter(svc *Service) *CaseReverter {
	return &CaseReverter{svc: svc}
}

func (r *CaseReverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot Case
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("case snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.cases.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.cases.Update(ctx, &snapshot); err != nil {
			return err
		}
		return r.svc.recorder.Record(ctx, EntityKind, snapshot.ID, history.LabelUpdate, &snapshot, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}

// EntityReverter restores a neoplastic entity from an event snapshot.
type EntityReverter struct {
	svc *Service
}

func NewEntityReverter(svc *Service) *EntityReverter {
	return &EntityReverter{svc: svc}
}

func (r *EntityReverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot NeoplasticEntity
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("entity snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.entities.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.entities.Update(ctx, &snapshot); err != nil {
			return err
		}
		return r.svc.recorder.Record(ctx, NeoplasticEntityKind, snapshot.ID, history.LabelUpdate, &snapshot, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}
