package therapy

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
	pool           *pgxpool.Pool
	therapies      SystemicTherapyRepository
	surgeries      SurgeryRepository
	radiotherapies RadiotherapyRepository
	responses      ResponseRepository
	lines          LineRepository
	cases          CaseSource
	recorder       *history.Recorder
	anon           *anonymize.Anonymizer
}

func NewService(pool *pgxpool.Pool, therapies SystemicTherapyRepository, surgeries SurgeryRepository,
	radiotherapies RadiotherapyRepository, responses ResponseRepository, lines LineRepository,
	cases CaseSource, events history.Repository, anon *anonymize.Anonymizer) *Service {
	return &Service{
		pool:           pool,
		therapies:      therapies,
		surgeries:      surgeries,
		radiotherapies: radiotherapies,
		responses:      responses,
		lines:          lines,
		cases:          cases,
		recorder:       history.NewRecorder(events),
		anon:           anon,
	}
}

// AssignTherapyLines recomputes the case's therapy lines and rewrites
// the treatments' back-references. It runs inside the caller's
// transaction so a treatment write and its reassignment land together.
func (s *Service) AssignTherapyLines(ctx context.Context, caseID uuid.UUID) error {
	therapies, surgeries, radiotherapies, responses, err := s.loadTreatments(ctx, caseID)
	if err != nil {
		return err
	}
	inferred := InferLines(therapies, surgeries, radiotherapies, responses)

	existing, err := s.lines.ListAllByCase(ctx, caseID)
	if err != nil {
		return err
	}
	type lineKey struct {
		intent  Intent
		ordinal int
	}
	stored := map[lineKey]*TherapyLine{}
	for _, l := range existing {
		stored[lineKey{l.Intent, l.Ordinal}] = l
	}

	username := auth.UsernameFromContext(ctx)
	for _, inf := range inferred {
		key := lineKey{inf.Intent, inf.Ordinal}
		line, ok := stored[key]
		if ok {
			delete(stored, key)
			if err := s.lines.UpdatePeriod(ctx, line.ID, inf.PeriodStart, inf.PeriodEnd); err != nil {
				return err
			}
		} else {
			line = &TherapyLine{
				CaseID:      caseID,
				Ordinal:     inf.Ordinal,
				Intent:      inf.Intent,
				Label:       inf.Label,
				PeriodStart: inf.PeriodStart,
				PeriodEnd:   inf.PeriodEnd,
				CreatedBy:   username,
			}
			if err := s.lines.Create(ctx, line); err != nil {
				return err
			}
		}
		for _, id := range inf.SystemicTherapyIDs {
			if err := s.therapies.SetTherapyLine(ctx, id, &line.ID); err != nil {
				return err
			}
		}
		for _, id := range inf.SurgeryIDs {
			if err := s.surgeries.SetTherapyLine(ctx, id, &line.ID); err != nil {
				return err
			}
		}
		for _, id := range inf.RadiotherapyIDs {
			if err := s.radiotherapies.SetTherapyLine(ctx, id, &line.ID); err != nil {
				return err
			}
		}
	}
	// Lines no treatment maps to anymore are dropped.
	for _, l := range stored {
		if err := s.lines.Delete(ctx, l.ID); err != nil {
			return err
		}
	}
	return nil
}

// PreviewLines runs the inference without touching storage.
func (s *Service) PreviewLines(ctx context.Context, caseID uuid.UUID) ([]*InferredLine, error) {
	therapies, surgeries, radiotherapies, responses, err := s.loadTreatments(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return InferLines(therapies, surgeries, radiotherapies, responses), nil
}

func (s *Service) loadTreatments(ctx context.Context, caseID uuid.UUID) ([]*SystemicTherapy, []*Surgery, []*Radiotherapy, []*TreatmentResponse, error) {
	therapies, err := s.therapies.ListAllByCase(ctx, caseID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	surgeries, err := s.surgeries.ListAllByCase(ctx, caseID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	radiotherapies, err := s.radiotherapies.ListAllByCase(ctx, caseID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	responses, err := s.responses.ListAllByCase(ctx, caseID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return therapies, surgeries, radiotherapies, responses, nil
}

// ListLines returns the stored lines with their derived survival and
// classification fields recomputed from the current treatments.
func (s *Service) ListLines(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TherapyLine, int, error) {
	lines, total, err := s.lines.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if err := s.decorateLines(ctx, caseID, lines); err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(lines) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, l := range lines {
			l.Anonymize(s.anon, key)
		}
	}
	return lines, total, nil
}

func (s *Service) GetLine(ctx context.Context, id uuid.UUID, anonymized bool) (*TherapyLine, error) {
	line, err := s.lines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.decorateLines(ctx, line.CaseID, []*TherapyLine{line}); err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, line.CaseID)
		if err != nil {
			return nil, err
		}
		line.Anonymize(s.anon, key)
	}
	return line, nil
}

func (s *Service) decorateLines(ctx context.Context, caseID uuid.UUID, lines []*TherapyLine) error {
	if len(lines) == 0 {
		return nil
	}
	inferred, err := s.PreviewLines(ctx, caseID)
	if err != nil {
		return err
	}
	byKey := map[string]*InferredLine{}
	for _, inf := range inferred {
		byKey[inf.Label] = inf
	}
	for _, l := range lines {
		if inf, ok := byKey[l.Label]; ok {
			l.ProgressionFreeSurvival = inf.ProgressionFreeSurvival
			l.TherapyClassification = inf.TherapyClassification
			l.DrugCombinations = inf.DrugCombinations
		}
	}
	return nil
}

// -- Systemic therapies --

func (s *Service) CreateSystemicTherapy(ctx context.Context, t *SystemicTherapy) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, t.CaseID); err != nil {
		return err
	}
	t.CreatedBy = auth.UsernameFromContext(ctx)
	t.Description = t.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.therapies.Create(ctx, t); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, SystemicTherapyKind, t.ID, history.LabelCreate, t, nil); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, t.CaseID)
	})
}

func (s *Service) GetSystemicTherapy(ctx context.Context, id uuid.UUID, anonymized bool) (*SystemicTherapy, error) {
	t, err := s.therapies.GetByID(ctx, id)
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

func (s *Service) ListSystemicTherapies(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*SystemicTherapy, int, error) {
	therapies, total, err := s.therapies.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(therapies) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, t := range therapies {
			t.Anonymize(s.anon, key)
		}
	}
	return therapies, total, nil
}

func (s *Service) UpdateSystemicTherapy(ctx context.Context, t *SystemicTherapy) error {
	previous, err := s.therapies.GetByID(ctx, t.ID)
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
		if err := s.therapies.Update(ctx, t); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, SystemicTherapyKind, t.ID, history.LabelUpdate, t, previous); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, t.CaseID)
	})
}

func (s *Service) DeleteSystemicTherapy(ctx context.Context, id uuid.UUID) error {
	previous, err := s.therapies.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.therapies.Delete(ctx, id); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, SystemicTherapyKind, id, history.LabelDelete, previous, nil); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, previous.CaseID)
	})
}

// -- Surgeries --

func (s *Service) CreateSurgery(ctx context.Context, sg *Surgery) error {
	if err := sg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, sg.CaseID); err != nil {
		return err
	}
	sg.CreatedBy = auth.UsernameFromContext(ctx)
	sg.Description = sg.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.surgeries.Create(ctx, sg); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, SurgeryKind, sg.ID, history.LabelCreate, sg, nil); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, sg.CaseID)
	})
}

func (s *Service) GetSurgery(ctx context.Context, id uuid.UUID, anonymized bool) (*Surgery, error) {
	sg, err := s.surgeries.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, sg.CaseID)
		if err != nil {
			return nil, err
		}
		sg.Anonymize(s.anon, key)
	}
	return sg, nil
}

func (s *Service) ListSurgeries(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Surgery, int, error) {
	surgeries, total, err := s.surgeries.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(surgeries) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, sg := range surgeries {
			sg.Anonymize(s.anon, key)
		}
	}
	return surgeries, total, nil
}

func (s *Service) UpdateSurgery(ctx context.Context, sg *Surgery) error {
	previous, err := s.surgeries.GetByID(ctx, sg.ID)
	if err != nil {
		return err
	}
	sg.CaseID = previous.CaseID
	sg.CreatedBy = previous.CreatedBy
	sg.CreatedAt = previous.CreatedAt
	if err := sg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	sg.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	sg.Description = sg.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.surgeries.Update(ctx, sg); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, SurgeryKind, sg.ID, history.LabelUpdate, sg, previous); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, sg.CaseID)
	})
}

func (s *Service) DeleteSurgery(ctx context.Context, id uuid.UUID) error {
	previous, err := s.surgeries.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.surgeries.Delete(ctx, id); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, SurgeryKind, id, history.LabelDelete, previous, nil); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, previous.CaseID)
	})
}

// -- Radiotherapies --

func (s *Service) CreateRadiotherapy(ctx context.Context, rt *Radiotherapy) error {
	if err := rt.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, rt.CaseID); err != nil {
		return err
	}
	rt.CreatedBy = auth.UsernameFromContext(ctx)
	rt.Description = rt.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.radiotherapies.Create(ctx, rt); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, RadiotherapyKind, rt.ID, history.LabelCreate, rt, nil); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, rt.CaseID)
	})
}

func (s *Service) GetRadiotherapy(ctx context.Context, id uuid.UUID, anonymized bool) (*Radiotherapy, error) {
	rt, err := s.radiotherapies.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, rt.CaseID)
		if err != nil {
			return nil, err
		}
		rt.Anonymize(s.anon, key)
	}
	return rt, nil
}

func (s *Service) ListRadiotherapies(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Radiotherapy, int, error) {
	radiotherapies, total, err := s.radiotherapies.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(radiotherapies) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, rt := range radiotherapies {
			rt.Anonymize(s.anon, key)
		}
	}
	return radiotherapies, total, nil
}

func (s *Service) UpdateRadiotherapy(ctx context.Context, rt *Radiotherapy) error {
	previous, err := s.radiotherapies.GetByID(ctx, rt.ID)
	if err != nil {
		return err
	}
	rt.CaseID = previous.CaseID
	rt.CreatedBy = previous.CreatedBy
	rt.CreatedAt = previous.CreatedAt
	if err := rt.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	rt.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	rt.Description = rt.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.radiotherapies.Update(ctx, rt); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, RadiotherapyKind, rt.ID, history.LabelUpdate, rt, previous); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, rt.CaseID)
	})
}

func (s *Service) DeleteRadiotherapy(ctx context.Context, id uuid.UUID) error {
	previous, err := s.radiotherapies.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.radiotherapies.Delete(ctx, id); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, RadiotherapyKind, id, history.LabelDelete, previous, nil); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, previous.CaseID)
	})
}

// -- Treatment responses --

func (s *Service) CreateResponse(ctx context.Context, tr *TreatmentResponse) error {
	if err := tr.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, tr.CaseID); err != nil {
		return err
	}
	tr.CreatedBy = auth.UsernameFromContext(ctx)
	tr.Description = tr.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.responses.Create(ctx, tr); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, TreatmentResponseKind, tr.ID, history.LabelCreate, tr, nil); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, tr.CaseID)
	})
}

func (s *Service) GetResponse(ctx context.Context, id uuid.UUID, anonymized bool) (*TreatmentResponse, error) {
	tr, err := s.responses.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, tr.CaseID)
		if err != nil {
			return nil, err
		}
		tr.Anonymize(s.anon, key)
	}
	return tr, nil
}

func (s *Service) ListResponses(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TreatmentResponse, int, error) {
	responses, total, err := s.responses.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(responses) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, tr := range responses {
			tr.Anonymize(s.anon, key)
		}
	}
	return responses, total, nil
}

func (s *Service) UpdateResponse(ctx context.Context, tr *TreatmentResponse) error {
	previous, err := s.responses.GetByID(ctx, tr.ID)
	if err != nil {
		return err
	}
	tr.CaseID = previous.CaseID
	tr.CreatedBy = previous.CreatedBy
	tr.CreatedAt = previous.CreatedAt
	if err := tr.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	tr.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	tr.Description = tr.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.responses.Update(ctx, tr); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, TreatmentResponseKind, tr.ID, history.LabelUpdate, tr, previous); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, tr.CaseID)
	})
}

func (s *Service) DeleteResponse(ctx context.Context, id uuid.UUID) error {
	previous, err := s.responses.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.responses.Delete(ctx, id); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, TreatmentResponseKind, id, history.LabelDelete, previous, nil); err != nil {
			return err
		}
		return s.AssignTherapyLines(ctx, previous.CaseID)
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

// Reverter restores treatment rows from event snapshots and reassigns
// the case's therapy lines afterwards.
type Reverter struct {
	svc *Service
}

func NewReverter(svc *Service) *Reverter {
	return &Reverter{svc: svc}
}

func (r *Reverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	switch event.EntityKind {
	case SystemicTherapyKind:
		return r.revertSystemicTherapy(ctx, event)
	case SurgeryKind:
		return r.revertSurgery(ctx, event)
	case RadiotherapyKind:
		return r.revertRadiotherapy(ctx, event)
	case TreatmentResponseKind:
		return r.revertResponse(ctx, event)
	}
	return uuid.Nil, "", history.ErrNotFound
}

func (r *Reverter) revertSystemicTherapy(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot SystemicTherapy
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("therapy snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.therapies.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	snapshot.CaseID = previous.CaseID
	snapshot.CreatedBy = previous.CreatedBy
	snapshot.CreatedAt = previous.CreatedAt
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	snapshot.Description = snapshot.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.therapies.Update(ctx, &snapshot); err != nil {
			return err
		}
		if err := r.svc.recorder.Record(ctx, SystemicTherapyKind, snapshot.ID, history.LabelUpdate, &snapshot, previous); err != nil {
			return err
		}
		return r.svc.AssignTherapyLines(ctx, snapshot.CaseID)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}

func (r *Reverter) revertSurgery(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot Surgery
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("surgery snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.surgeries.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	snapshot.CaseID = previous.CaseID
	snapshot.CreatedBy = previous.CreatedBy
	snapshot.CreatedAt = previous.CreatedAt
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	snapshot.Description = snapshot.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.surgeries.Update(ctx, &snapshot); err != nil {
			return err
		}
		if err := r.svc.recorder.Record(ctx, SurgeryKind, snapshot.ID, history.LabelUpdate, &snapshot, previous); err != nil {
			return err
		}
		return r.svc.AssignTherapyLines(ctx, snapshot.CaseID)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}

func (r *Reverter) revertRadiotherapy(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot Radiotherapy
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("radiotherapy snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.radiotherapies.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	snapshot.CaseID = previous.CaseID
	snapshot.CreatedBy = previous.CreatedBy
	snapshot.CreatedAt = previous.CreatedAt
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	snapshot.Description = snapshot.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.radiotherapies.Update(ctx, &snapshot); err != nil {
			return err
		}
		if err := r.svc.recorder.Record(ctx, RadiotherapyKind, snapshot.ID, history.LabelUpdate, &snapshot, previous); err != nil {
			return err
		}
		return r.svc.AssignTherapyLines(ctx, snapshot.CaseID)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}

func (r *Reverter) revertResponse(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot TreatmentResponse
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("response snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.responses.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	snapshot.CaseID = previous.CaseID
	snapshot.CreatedBy = previous.CreatedBy
	snapshot.CreatedAt = previous.CreatedAt
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	snapshot.Description = snapshot.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.responses.Update(ctx, &snapshot); err != nil {
			return err
		}
		if err := r.svc.recorder.Record(ctx, TreatmentResponseKind, snapshot.ID, history.LabelUpdate, &snapshot, previous); err != nil {
			return err
		}
		return r.svc.AssignTherapyLines(ctx, snapshot.CaseID)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}
