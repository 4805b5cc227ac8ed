package assessments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/platform/anonymize"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

// CaseSource resolves the parent case for validation and for the
// per-case anonymization key.
type CaseSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patientcase.Case, error)
}

type Service struct {
	pool          *pgxpool.Pool
	adverseEvents AdverseEventRepository
	statuses      PerformanceStatusRepository
	lifestyles    LifestyleRepository
	families      FamilyHistoryRepository
	comorbidities ComorbiditiesRepository
	vitals        VitalsRepository
	risks         RiskAssessmentRepository
	markers       TumorMarkerRepository
	cases         CaseSource
	recorder      *history.Recorder
	anon          *anonymize.Anonymizer
}

func NewService(pool *pgxpool.Pool, adverseEvents AdverseEventRepository,
	statuses PerformanceStatusRepository, lifestyles LifestyleRepository,
	families FamilyHistoryRepository, comorbidities ComorbiditiesRepository,
	vitals VitalsRepository, risks RiskAssessmentRepository,
	markers TumorMarkerRepository, cases CaseSource,
	events history.Repository, anon *anonymize.Anonymizer) *Service {
	return &Service{
		pool:          pool,
		adverseEvents: adverseEvents,
		statuses:      statuses,
		lifestyles:    lifestyles,
		families:      families,
		comorbidities: comorbidities,
		vitals:        vitals,
		risks:         risks,
		markers:       markers,
		cases:         cases,
		recorder:      history.NewRecorder(events),
		anon:          anon,
	}
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

// -- Adverse events --

func (s *Service) CreateAdverseEvent(ctx context.Context, a *AdverseEvent) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, a.CaseID); err != nil {
		return err
	}
	a.CreatedBy = auth.UsernameFromContext(ctx)
	a.Description = a.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.adverseEvents.Create(ctx, a); err != nil {
			return err
		}
		return s.recorder.Record(ctx, AdverseEventKind, a.ID, history.LabelCreate, a, nil)
	})
}

func (s *Service) GetAdverseEvent(ctx context.Context, id uuid.UUID, anonymized bool) (*AdverseEvent, error) {
	a, err := s.adverseEvents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, a.CaseID)
		if err != nil {
			return nil, err
		}
		a.Anonymize(s.anon, key)
	}
	return a, nil
}

func (s *Service) ListAdverseEvents(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*AdverseEvent, int, error) {
	events, total, err := s.adverseEvents.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(events) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, a := range events {
			a.Anonymize(s.anon, key)
		}
	}
	return events, total, nil
}

func (s *Service) UpdateAdverseEvent(ctx context.Context, a *AdverseEvent) error {
	previous, err := s.adverseEvents.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	a.CaseID = previous.CaseID
	a.CreatedBy = previous.CreatedBy
	a.CreatedAt = previous.CreatedAt
	if err := a.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	a.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	a.Description = a.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.adverseEvents.Update(ctx, a); err != nil {
			return err
		}
		return s.recorder.Record(ctx, AdverseEventKind, a.ID, history.LabelUpdate, a, previous)
	})
}

func (s *Service) DeleteAdverseEvent(ctx context.Context, id uuid.UUID) error {
	previous, err := s.adverseEvents.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.adverseEvents.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, AdverseEventKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Performance status --

func (s *Service) CreatePerformanceStatus(ctx context.Context, p *PerformanceStatus) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, p.CaseID); err != nil {
		return err
	}
	p.CreatedBy = auth.UsernameFromContext(ctx)
	p.Description = p.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.statuses.Create(ctx, p); err != nil {
			return err
		}
		return s.recorder.Record(ctx, PerformanceStatusKind, p.ID, history.LabelCreate, p, nil)
	})
}

func (s *Service) GetPerformanceStatus(ctx context.Context, id uuid.UUID, anonymized bool) (*PerformanceStatus, error) {
	p, err := s.statuses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, p.CaseID)
		if err != nil {
			return nil, err
		}
		p.Anonymize(s.anon, key)
	}
	return p, nil
}

func (s *Service) ListPerformanceStatuses(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*PerformanceStatus, int, error) {
	statuses, total, err := s.statuses.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(statuses) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, st := range statuses {
			st.Anonymize(s.anon, key)
		}
	}
	return statuses, total, nil
}

func (s *Service) UpdatePerformanceStatus(ctx context.Context, p *PerformanceStatus) error {
	previous, err := s.statuses.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	p.CaseID = previous.CaseID
	p.CreatedBy = previous.CreatedBy
	p.CreatedAt = previous.CreatedAt
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	p.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	p.Description = p.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.statuses.Update(ctx, p); err != nil {
			return err
		}
		return s.recorder.Record(ctx, PerformanceStatusKind, p.ID, history.LabelUpdate, p, previous)
	})
}

func (s *Service) DeletePerformanceStatus(ctx context.Context, id uuid.UUID) error {
	previous, err := s.statuses.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.statuses.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, PerformanceStatusKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Lifestyle --

func (s *Service) CreateLifestyle(ctx context.Context, l *Lifestyle) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, l.CaseID); err != nil {
		return err
	}
	l.CreatedBy = auth.UsernameFromContext(ctx)
	l.Description = l.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.lifestyles.Create(ctx, l); err != nil {
			return err
		}
		return s.recorder.Record(ctx, LifestyleKind, l.ID, history.LabelCreate, l, nil)
	})
}

func (s *Service) GetLifestyle(ctx context.Context, id uuid.UUID, anonymized bool) (*Lifestyle, error) {
	l, err := s.lifestyles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, l.CaseID)
		if err != nil {
			return nil, err
		}
		l.Anonymize(s.anon, key)
	}
	return l, nil
}

func (s *Service) ListLifestyles(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Lifestyle, int, error) {
	records, total, err := s.lifestyles.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(records) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, l := range records {
			l.Anonymize(s.anon, key)
		}
	}
	return records, total, nil
}

func (s *Service) UpdateLifestyle(ctx context.Context, l *Lifestyle) error {
	previous, err := s.lifestyles.GetByID(ctx, l.ID)
	if err != nil {
		return err
	}
	l.CaseID = previous.CaseID
	l.CreatedBy = previous.CreatedBy
	l.CreatedAt = previous.CreatedAt
	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	l.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	l.Description = l.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.lifestyles.Update(ctx, l); err != nil {
			return err
		}
		return s.recorder.Record(ctx, LifestyleKind, l.ID, history.LabelUpdate, l, previous)
	})
}

func (s *Service) DeleteLifestyle(ctx context.Context, id uuid.UUID) error {
	previous, err := s.lifestyles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.lifestyles.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, LifestyleKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Family history --

func (s *Service) CreateFamilyHistory(ctx context.Context, f *FamilyHistory) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, f.CaseID); err != nil {
		return err
	}
	f.CreatedBy = auth.UsernameFromContext(ctx)
	f.Description = f.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.families.Create(ctx, f); err != nil {
			return err
		}
		return s.recorder.Record(ctx, FamilyHistoryKind, f.ID, history.LabelCreate, f, nil)
	})
}

func (s *Service) GetFamilyHistory(ctx context.Context, id uuid.UUID, anonymized bool) (*FamilyHistory, error) {
	f, err := s.families.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, f.CaseID)
		if err != nil {
			return nil, err
		}
		f.Anonymize(s.anon, key)
	}
	return f, nil
}

func (s *Service) ListFamilyHistories(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*FamilyHistory, int, error) {
	records, total, err := s.families.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(records) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, f := range records {
			f.Anonymize(s.anon, key)
		}
	}
	return records, total, nil
}

func (s *Service) UpdateFamilyHistory(ctx context.Context, f *FamilyHistory) error {
	previous, err := s.families.GetByID(ctx, f.ID)
	if err != nil {
		return err
	}
	f.CaseID = previous.CaseID
	f.CreatedBy = previous.CreatedBy
	f.CreatedAt = previous.CreatedAt
	if err := f.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	f.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	f.Description = f.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.families.Update(ctx, f); err != nil {
			return err
		}
		return s.recorder.Record(ctx, FamilyHistoryKind, f.ID, history.LabelUpdate, f, previous)
	})
}

func (s *Service) DeleteFamilyHistory(ctx context.Context, id uuid.UUID) error {
	previous, err := s.families.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.families.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, FamilyHistoryKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Comorbidities --

func (s *Service) CreateComorbidities(ctx context.Context, c *Comorbidities) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, c.CaseID); err != nil {
		return err
	}
	c.CreatedBy = auth.UsernameFromContext(ctx)
	c.Description = c.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.comorbidities.Create(ctx, c); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ComorbiditiesKind, c.ID, history.LabelCreate, c, nil)
	})
}

func (s *Service) GetComorbidities(ctx context.Context, id uuid.UUID, anonymized bool) (*Comorbidities, error) {
	c, err := s.comorbidities.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, c.CaseID)
		if err != nil {
			return nil, err
		}
		c.Anonymize(s.anon, key)
	}
	return c, nil
}

func (s *Service) ListComorbidities(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Comorbidities, int, error) {
	records, total, err := s.comorbidities.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(records) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, c := range records {
			c.Anonymize(s.anon, key)
		}
	}
	return records, total, nil
}

func (s *Service) UpdateComorbidities(ctx context.Context, c *Comorbidities) error {
	previous, err := s.comorbidities.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	c.CaseID = previous.CaseID
	c.CreatedBy = previous.CreatedBy
	c.CreatedAt = previous.CreatedAt
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	c.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	c.Description = c.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.comorbidities.Update(ctx, c); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ComorbiditiesKind, c.ID, history.LabelUpdate, c, previous)
	})
}

func (s *Service) DeleteComorbidities(ctx context.Context, id uuid.UUID) error {
	previous, err := s.comorbidities.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.comorbidities.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, ComorbiditiesKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Vitals --

func (s *Service) CreateVitals(ctx context.Context, v *Vitals) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, v.CaseID); err != nil {
		return err
	}
	v.CreatedBy = auth.UsernameFromContext(ctx)
	v.Description = v.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.vitals.Create(ctx, v); err != nil {
			return err
		}
		return s.recorder.Record(ctx, VitalsKind, v.ID, history.LabelCreate, v, nil)
	})
}

func (s *Service) GetVitals(ctx context.Context, id uuid.UUID, anonymized bool) (*Vitals, error) {
	v, err := s.vitals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, v.CaseID)
		if err != nil {
			return nil, err
		}
		v.Anonymize(s.anon, key)
	}
	return v, nil
}

func (s *Service) ListVitals(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Vitals, int, error) {
	records, total, err := s.vitals.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(records) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, v := range records {
			v.Anonymize(s.anon, key)
		}
	}
	return records, total, nil
}

func (s *Service) UpdateVitals(ctx context.Context, v *Vitals) error {
	previous, err := s.vitals.GetByID(ctx, v.ID)
	if err != nil {
		return err
	}
	v.CaseID = previous.CaseID
	v.CreatedBy = previous.CreatedBy
	v.CreatedAt = previous.CreatedAt
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	v.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	v.Description = v.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.vitals.Update(ctx, v); err != nil {
			return err
		}
		return s.recorder.Record(ctx, VitalsKind, v.ID, history.LabelUpdate, v, previous)
	})
}

func (s *Service) DeleteVitals(ctx context.Context, id uuid.UUID) error {
	previous, err := s.vitals.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.vitals.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, VitalsKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Risk assessments --

func (s *Service) CreateRiskAssessment(ctx context.Context, ra *RiskAssessment) error {
	if err := ra.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, ra.CaseID); err != nil {
		return err
	}
	ra.CreatedBy = auth.UsernameFromContext(ctx)
	ra.Description = ra.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.risks.Create(ctx, ra); err != nil {
			return err
		}
		return s.recorder.Record(ctx, RiskAssessmentKind, ra.ID, history.LabelCreate, ra, nil)
	})
}

func (s *Service) GetRiskAssessment(ctx context.Context, id uuid.UUID, anonymized bool) (*RiskAssessment, error) {
	ra, err := s.risks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, ra.CaseID)
		if err != nil {
			return nil, err
		}
		ra.Anonymize(s.anon, key)
	}
	return ra, nil
}

func (s *Service) ListRiskAssessments(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*RiskAssessment, int, error) {
	records, total, err := s.risks.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(records) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, ra := range records {
			ra.Anonymize(s.anon, key)
		}
	}
	return records, total, nil
}

func (s *Service) UpdateRiskAssessment(ctx context.Context, ra *RiskAssessment) error {
	previous, err := s.risks.GetByID(ctx, ra.ID)
	if err != nil {
		return err
	}
	ra.CaseID = previous.CaseID
	ra.CreatedBy = previous.CreatedBy
	ra.CreatedAt = previous.CreatedAt
	if err := ra.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	ra.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	ra.Description = ra.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.risks.Update(ctx, ra); err != nil {
			return err
		}
		return s.recorder.Record(ctx, RiskAssessmentKind, ra.ID, history.LabelUpdate, ra, previous)
	})
}

func (s *Service) DeleteRiskAssessment(ctx context.Context, id uuid.UUID) error {
	previous, err := s.risks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.risks.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, RiskAssessmentKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Tumor markers --

func (s *Service) CreateTumorMarker(ctx context.Context, t *TumorMarker) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, t.CaseID); err != nil {
		return err
	}
	t.CreatedBy = auth.UsernameFromContext(ctx)
	t.Description = t.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.markers.Create(ctx, t); err != nil {
			return err
		}
		return s.recorder.Record(ctx, TumorMarkerKind, t.ID, history.LabelCreate, t, nil)
	})
}

func (s *Service) GetTumorMarker(ctx context.Context, id uuid.UUID, anonymized bool) (*TumorMarker, error) {
	t, err := s.markers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, t.CaseID)
		if err != nil {
			return nil, err
		}
		t.Anonymize(s.anon, key)
	}
	return t, nil
}

func (s *Service) ListTumorMarkers(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TumorMarker, int, error) {
	markers, total, err := s.markers.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(markers) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, t := range markers {
			t.Anonymize(s.anon, key)
		}
	}
	return markers, total, nil
}

func (s *Service) UpdateTumorMarker(ctx context.Context, t *TumorMarker) error {
	previous, err := s.markers.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	t.CaseID = previous.CaseID
	t.CreatedBy = previous.CreatedBy
	t.CreatedAt = previous.CreatedAt
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	t.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	t.Description = t.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.markers.Update(ctx, t); err != nil {
			return err
		}
		return s.recorder.Record(ctx, TumorMarkerKind, t.ID, history.LabelUpdate, t, previous)
	})
}

func (s *Service) DeleteTumorMarker(ctx context.Context, id uuid.UUID) error {
	previous, err := s.markers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.markers.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, TumorMarkerKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Reversion --

// Reverter restores assessment rows from event snapshots.
type Reverter struct {
	svc *Service
}

func NewReverter(svc *Service) *Reverter {
	return &Reverter{svc: svc}
}

func (r *Reverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	switch event.EntityKind {
	case AdverseEventKind:
		var snapshot AdverseEvent
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("adverse event snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateAdverseEvent(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case PerformanceStatusKind:
		var snapshot PerformanceStatus
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("performance status snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdatePerformanceStatus(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case LifestyleKind:
		var snapshot Lifestyle
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("lifestyle snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateLifestyle(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case FamilyHistoryKind:
		var snapshot FamilyHistory
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("family history snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateFamilyHistory(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case ComorbiditiesKind:
		var snapshot Comorbidities
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("comorbidities snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateComorbidities(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case VitalsKind:
		var snapshot Vitals
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("vitals snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateVitals(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case RiskAssessmentKind:
		var snapshot RiskAssessment
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("risk assessment snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateRiskAssessment(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	case TumorMarkerKind:
		var snapshot TumorMarker
		if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
			return uuid.Nil, "", fmt.Errorf("tumor marker snapshot: %w", err)
		}
		snapshot.ID = event.EntityID
		if err := r.svc.UpdateTumorMarker(ctx, &snapshot); err != nil {
			return uuid.Nil, "", err
		}
		return snapshot.ID, snapshot.Describe(), nil
	}
	return uuid.Nil, "", history.ErrNotFound
}
