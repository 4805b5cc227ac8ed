package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

type Service struct {
	pool     *pgxpool.Pool
	projects ProjectRepository
	grants   GrantRepository
	cohorts  CohortRepository
	datasets DatasetRepository
	events   history.Repository
	recorder *history.Recorder
}

func NewService(pool *pgxpool.Pool, projects ProjectRepository, grants GrantRepository,
	cohorts CohortRepository, datasets DatasetRepository, events history.Repository) *Service {
	return &Service{
		pool:     pool,
		projects: projects,
		grants:   grants,
		cohorts:  cohorts,
		datasets: datasets,
		events:   events,
		recorder: history.NewRecorder(events),
	}
}

// HasActiveGrant reports whether the user holds a non-revoked
// data-manager grant valid today. The auth middleware consults it to
// derive the manage-cases capability.
func (s *Service) HasActiveGrant(ctx context.Context, username string) (bool, error) {
	return s.grants.HasActiveGrant(ctx, username, time.Now().UTC())
}

// -- Projects --

func (s *Service) CreateProject(ctx context.Context, p *Project) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	taken, err := s.projects.TitleExists(ctx, p.Title, uuid.Nil)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("project title %q already in use: %w", p.Title, ErrConflict)
	}
	p.CreatedBy = auth.UsernameFromContext(ctx)
	p.Description = p.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.projects.Create(ctx, p); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ProjectKind, p.ID, history.LabelCreate, p, nil)
	})
}

func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	return s.projects.GetByID(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context, p pagination.Params) ([]*Project, int, error) {
	return s.projects.List(ctx, p)
}

func (s *Service) UpdateProject(ctx context.Context, p *Project) error {
	previous, err := s.projects.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.CreatedBy = previous.CreatedBy
	p.CreatedAt = previous.CreatedAt
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	taken, err := s.projects.TitleExists(ctx, p.Title, p.ID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("project title %q already in use: %w", p.Title, ErrConflict)
	}
	p.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	p.Description = p.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.projects.Update(ctx, p); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ProjectKind, p.ID, history.LabelUpdate, p, previous)
	})
}

func (s *Service) DeleteProject(ctx context.Context, id uuid.UUID) error {
	previous, err := s.projects.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.projects.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ProjectKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Grants --

func (s *Service) CreateGrant(ctx context.Context, g *Grant) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.projects.GetByID(ctx, g.ProjectID); err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.grants.Create(ctx, g); err != nil {
			return err
		}
		g.IsValid = g.ValidAt(time.Now().UTC())
		return s.recorder.Record(ctx, GrantKind, g.ID, history.LabelCreate, g, nil)
	})
}

func (s *Service) GetGrant(ctx context.Context, id uuid.UUID) (*Grant, error) {
	g, err := s.grants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	g.IsValid = g.ValidAt(time.Now().UTC())
	return g, nil
}

func (s *Service) ListGrants(ctx context.Context, projectID uuid.UUID, p pagination.Params) ([]*Grant, int, error) {
	grants, total, err := s.grants.ListByProject(ctx, projectID, p)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now().UTC()
	for _, g := range grants {
		g.IsValid = g.ValidAt(now)
	}
	return grants, total, nil
}

func (s *Service) UpdateGrant(ctx context.Context, g *Grant) error {
	previous, err := s.grants.GetByID(ctx, g.ID)
	if err != nil {
		return err
	}
	g.ProjectID = previous.ProjectID
	g.CreatedAt = previous.CreatedAt
	if err := g.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.grants.Update(ctx, g); err != nil {
			return err
		}
		g.IsValid = g.ValidAt(time.Now().UTC())
		return s.recorder.Record(ctx, GrantKind, g.ID, history.LabelUpdate, g, previous)
	})
}

// RevokeGrant marks the grant revoked without touching its period.
func (s *Service) RevokeGrant(ctx context.Context, id uuid.UUID) (*Grant, error) {
	previous, err := s.grants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	revoked := *previous
	revoked.Revoked = true
	revoked.IsValid = false
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.grants.Update(ctx, &revoked); err != nil {
			return err
		}
		return s.recorder.Record(ctx, GrantKind, id, history.LabelUpdate, &revoked, previous)
	})
	if err != nil {
		return nil, err
	}
	return &revoked, nil
}

func (s *Service) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	previous, err := s.grants.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.grants.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, GrantKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Cohorts --

func (s *Service) CreateCohort(ctx context.Context, c *Cohort) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	c.CreatedBy = auth.UsernameFromContext(ctx)
	c.Description = c.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.cohorts.Create(ctx, c); err != nil {
			return err
		}
		return s.recorder.Record(ctx, CohortKind, c.ID, history.LabelCreate, c, nil)
	})
}

func (s *Service) GetCohort(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	c, err := s.cohorts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cases, err := s.ResolveCases(ctx, c)
	if err != nil {
		return nil, err
	}
	c.Cases = cases
	c.CaseCount = len(cases)
	return c, nil
}

func (s *Service) ListCohorts(ctx context.Context, p pagination.Params) ([]*Cohort, int, error) {
	return s.cohorts.List(ctx, p)
}

func (s *Service) UpdateCohort(ctx context.Context, c *Cohort) error {
	previous, err := s.cohorts.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	c.CreatedBy = previous.CreatedBy
	c.CreatedAt = previous.CreatedAt
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	c.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	c.Description = c.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.cohorts.Update(ctx, c); err != nil {
			return err
		}
		return s.recorder.Record(ctx, CohortKind, c.ID, history.LabelUpdate, c, previous)
	})
}

func (s *Service) DeleteCohort(ctx context.Context, id uuid.UUID) error {
	previous, err := s.cohorts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.cohorts.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, CohortKind, id, history.LabelDelete, previous, nil)
	})
}

// FreezeCohort pins the membership to the currently resolved case set.
func (s *Service) FreezeCohort(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	previous, err := s.cohorts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cases, err := s.ResolveCases(ctx, previous)
	if err != nil {
		return nil, err
	}
	frozen := *previous
	frozen.FrozenSet = cases
	frozen.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.cohorts.Update(ctx, &frozen); err != nil {
			return err
		}
		return s.recorder.Record(ctx, CohortKind, id, history.LabelUpdate, &frozen, previous)
	})
	if err != nil {
		return nil, err
	}
	frozen.Cases = cases
	frozen.CaseCount = len(cases)
	return &frozen, nil
}

// ResolveCases computes the cohort membership. A non-empty frozen set
// is returned verbatim; otherwise the include selection and manual
// additions are merged and the exclude selection subtracted.
func (s *Service) ResolveCases(ctx context.Context, c *Cohort) ([]uuid.UUID, error) {
	if c.Frozen() {
		return append([]uuid.UUID{}, c.FrozenSet...), nil
	}
	seen := map[uuid.UUID]bool{}
	var cases []uuid.UUID
	if c.IncludeRules != nil {
		selected, err := s.cohorts.SelectCaseIDs(ctx, *c.IncludeRules)
		if err != nil {
			return nil, fmt.Errorf("include rules: %w", err)
		}
		for _, id := range selected {
			if !seen[id] {
				seen[id] = true
				cases = append(cases, id)
			}
		}
	}
	for _, id := range c.ManualAdditions {
		if !seen[id] {
			seen[id] = true
			cases = append(cases, id)
		}
	}
	if c.ExcludeRules != nil && len(cases) > 0 {
		excluded, err := s.cohorts.SelectCaseIDs(ctx, *c.ExcludeRules)
		if err != nil {
			return nil, fmt.Errorf("exclude rules: %w", err)
		}
		drop := map[uuid.UUID]bool{}
		for _, id := range excluded {
			drop[id] = true
		}
		kept := cases[:0]
		for _, id := range cases {
			if !drop[id] {
				kept = append(kept, id)
			}
		}
		cases = kept
	}
	return cases, nil
}

// -- Datasets --

func (s *Service) CreateDataset(ctx context.Context, d *Dataset) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.projects.GetByID(ctx, d.ProjectID); err != nil {
		return err
	}
	d.CreatedBy = auth.UsernameFromContext(ctx)
	d.Description = d.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.datasets.Create(ctx, d); err != nil {
			return err
		}
		return s.recorder.Record(ctx, DatasetKind, d.ID, history.LabelCreate, d, nil)
	})
}

func (s *Service) GetDataset(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	d, err := s.datasets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.decorateDataset(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDatasets(ctx context.Context, projectID uuid.UUID, p pagination.Params) ([]*Dataset, int, error) {
	datasets, total, err := s.datasets.ListByProject(ctx, projectID, p)
	if err != nil {
		return nil, 0, err
	}
	for _, d := range datasets {
		if err := s.decorateDataset(ctx, d); err != nil {
			return nil, 0, err
		}
	}
	return datasets, total, nil
}

func (s *Service) UpdateDataset(ctx context.Context, d *Dataset) error {
	previous, err := s.datasets.GetByID(ctx, d.ID)
	if err != nil {
		return err
	}
	d.ProjectID = previous.ProjectID
	d.CreatedBy = previous.CreatedBy
	d.CreatedAt = previous.CreatedAt
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	d.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	d.Description = d.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.datasets.Update(ctx, d); err != nil {
			return err
		}
		return s.recorder.Record(ctx, DatasetKind, d.ID, history.LabelUpdate, d, previous)
	})
}

func (s *Service) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	previous, err := s.datasets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.datasets.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, DatasetKind, id, history.LabelDelete, previous, nil)
	})
}

// RecordDatasetExport appends an export audit event tagging the cohort
// the dataset was exported for.
func (s *Service) RecordDatasetExport(ctx context.Context, datasetID uuid.UUID, cohortID *uuid.UUID) (*Dataset, error) {
	d, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	extra := history.Context{}
	if cohortID != nil {
		if _, err := s.cohorts.GetByID(ctx, *cohortID); err != nil {
			return nil, err
		}
		extra["cohort"] = cohortID.String()
	}
	if err := s.recorder.RecordWith(ctx, DatasetKind, d.ID, history.LabelExport, d, extra); err != nil {
		return nil, err
	}
	if err := s.decorateDataset(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) decorateDataset(ctx context.Context, d *Dataset) error {
	total, err := s.events.CountByLabel(ctx, d.ID, history.LabelExport)
	if err != nil {
		return err
	}
	d.TotalExports = total
	if total == 0 {
		return nil
	}
	last, err := s.events.LastByLabel(ctx, d.ID, history.LabelExport)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return nil
		}
		return err
	}
	d.LastExport = &last.CreatedAt
	return nil
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

// Reverter restores research artifacts from event snapshots.
type Reverter struct {
	svc *Service
}

func NewReverter(svc *Service) *Reverter {
	return &Reverter{svc: svc}
}

func (r *Reverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	switch event.EntityKind {
	case ProjectKind:
		var snapshot Project
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("project snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateProject(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case GrantKind:
		var snapshot Grant
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("grant snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateGrant(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case CohortKind:
		var snapshot Cohort
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("cohort snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		snapshot.Cases = nil
		snapshot.CaseCount = 0
		if err := r.svc.UpdateCohort(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case DatasetKind:
		var snapshot Dataset
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("dataset snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		snapshot.LastExport = nil
		snapshot.TotalExports = 0
		if err := r.svc.UpdateDataset(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	}
	return uuid.Nil, "", history.ErrNotFound
}
