package interop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/assessments"
	"github.com/onconova/onconova/internal/domain/genomics"
	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/domain/staging"
	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/domain/therapy"
	"github.com/onconova/onconova/internal/domain/tumorboard"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/pagination"
)

// -- in-memory repositories --

type memCaseRepo struct {
	cases map[uuid.UUID]*patientcase.Case
}

func newMemCaseRepo() *memCaseRepo {
	return &memCaseRepo{cases: map[uuid.UUID]*patientcase.Case{}}
}

func (m *memCaseRepo) Create(ctx context.Context, c *patientcase.Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	stored := *c
	m.cases[c.ID] = &stored
	return nil
}

func (m *memCaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*patientcase.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, patientcase.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (m *memCaseRepo) GetByPseudoidentifier(ctx context.Context, pseudo string) (*patientcase.Case, error) {
	for _, c := range m.cases {
		if c.Pseudoidentifier == pseudo {
			clone := *c
			return &clone, nil
		}
	}
	return nil, patientcase.ErrNotFound
}

func (m *memCaseRepo) Update(ctx context.Context, c *patientcase.Case) error {
	if _, ok := m.cases[c.ID]; !ok {
		return patientcase.ErrNotFound
	}
	stored := *c
	m.cases[c.ID] = &stored
	return nil
}

func (m *memCaseRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.cases[id]; !ok {
		return patientcase.ErrNotFound
	}
	delete(m.cases, id)
	return nil
}

func (m *memCaseRepo) List(ctx context.Context, f patientcase.CaseFilters, p pagination.Params) ([]*patientcase.Case, int, error) {
	var out []*patientcase.Case
	for _, c := range m.cases {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *memCaseRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*patientcase.Case, error) {
	var out []*patientcase.Case
	for _, id := range ids {
		if c, ok := m.cases[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCaseRepo) PseudoidentifierExists(ctx context.Context, pseudo string) (bool, error) {
	_, err := m.GetByPseudoidentifier(ctx, pseudo)
	return err == nil, nil
}

func (m *memCaseRepo) ClinicalIdentifierExists(ctx context.Context, center, identifier string, excludeID uuid.UUID) (bool, error) {
	for _, c := range m.cases {
		if c.ID == excludeID || c.ClinicalIdentifier == nil {
			continue
		}
		if c.ClinicalCenter == center && *c.ClinicalIdentifier == identifier {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCaseRepo) CategoryCompletion(ctx context.Context, caseID uuid.UUID) (map[string]bool, error) {
	return map[string]bool{"neoplasticEntities": true}, nil
}

func (m *memCaseRepo) ChildEntityIDs(ctx context.Context, caseID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

func (m *memCaseRepo) EarliestAssertionDate(ctx context.Context, caseID uuid.UUID) (*time.Time, error) {
	return nil, nil
}

type memEntityRepo struct {
	entities map[uuid.UUID]*patientcase.NeoplasticEntity
}

func newMemEntityRepo() *memEntityRepo {
	return &memEntityRepo{entities: map[uuid.UUID]*patientcase.NeoplasticEntity{}}
}

func (m *memEntityRepo) Create(ctx context.Context, e *patientcase.NeoplasticEntity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	stored := *e
	m.entities[e.ID] = &stored
	return nil
}

func (m *memEntityRepo) GetByID(ctx context.Context, id uuid.UUID) (*patientcase.NeoplasticEntity, error) {
	e, ok := m.entities[id]
	if !ok {
		return nil, patientcase.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (m *memEntityRepo) Update(ctx context.Context, e *patientcase.NeoplasticEntity) error {
	if _, ok := m.entities[e.ID]; !ok {
		return patientcase.ErrNotFound
	}
	stored := *e
	m.entities[e.ID] = &stored
	return nil
}

func (m *memEntityRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.entities, id)
	return nil
}

func (m *memEntityRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*patientcase.NeoplasticEntity, int, error) {
	var out []*patientcase.NeoplasticEntity
	for _, e := range m.entities {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

type memTherapyRepo struct {
	therapies map[uuid.UUID]*therapy.SystemicTherapy
}

func newMemTherapyRepo() *memTherapyRepo {
	return &memTherapyRepo{therapies: map[uuid.UUID]*therapy.SystemicTherapy{}}
}

func (m *memTherapyRepo) Create(ctx context.Context, t *therapy.SystemicTherapy) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	for i := range t.Medications {
		if t.Medications[i].ID == uuid.Nil {
			t.Medications[i].ID = uuid.New()
		}
	}
	stored := *t
	m.therapies[t.ID] = &stored
	return nil
}

func (m *memTherapyRepo) GetByID(ctx context.Context, id uuid.UUID) (*therapy.SystemicTherapy, error) {
	t, ok := m.therapies[id]
	if !ok {
		return nil, therapy.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (m *memTherapyRepo) Update(ctx context.Context, t *therapy.SystemicTherapy) error {
	stored := *t
	m.therapies[t.ID] = &stored
	return nil
}

func (m *memTherapyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.therapies, id)
	return nil
}

func (m *memTherapyRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*therapy.SystemicTherapy, int, error) {
	out, err := m.ListAllByCase(ctx, caseID)
	return out, len(out), err
}

func (m *memTherapyRepo) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*therapy.SystemicTherapy, error) {
	var out []*therapy.SystemicTherapy
	for _, t := range m.therapies {
		if t.CaseID == caseID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTherapyRepo) SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error {
	t, ok := m.therapies[id]
	if !ok {
		return therapy.ErrNotFound
	}
	t.TherapyLineID = lineID
	return nil
}

type memResponseRepo struct {
	responses map[uuid.UUID]*therapy.TreatmentResponse
}

func newMemResponseRepo() *memResponseRepo {
	return &memResponseRepo{responses: map[uuid.UUID]*therapy.TreatmentResponse{}}
}

func (m *memResponseRepo) Create(ctx context.Context, r *therapy.TreatmentResponse) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	stored := *r
	m.responses[r.ID] = &stored
	return nil
}

func (m *memResponseRepo) GetByID(ctx context.Context, id uuid.UUID) (*therapy.TreatmentResponse, error) {
	r, ok := m.responses[id]
	if !ok {
		return nil, therapy.ErrNotFound
	}
	clone := *r
	return &clone, nil
}

func (m *memResponseRepo) Update(ctx context.Context, r *therapy.TreatmentResponse) error {
	stored := *r
	m.responses[r.ID] = &stored
	return nil
}

func (m *memResponseRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(m.responses, id)
	return nil
}

func (m *memResponseRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*therapy.TreatmentResponse, int, error) {
	out, err := m.ListAllByCase(ctx, caseID)
	return out, len(out), err
}

func (m *memResponseRepo) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*therapy.TreatmentResponse, error) {
	var out []*therapy.TreatmentResponse
	for _, r := range m.responses {
		if r.CaseID == caseID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Empty stubs for the bundle sections the fixtures never populate.

type emptyStagingRepo struct{}

func (emptyStagingRepo) Create(ctx context.Context, s *staging.Staging) error { return nil }
func (emptyStagingRepo) GetByID(ctx context.Context, id uuid.UUID) (*staging.Staging, error) {
	return nil, staging.ErrNotFound
}
func (emptyStagingRepo) Update(ctx context.Context, s *staging.Staging) error { return nil }
func (emptyStagingRepo) UpdateChild(ctx context.Context, id uuid.UUID, domain staging.Domain, child any) error {
	return nil
}
func (emptyStagingRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptyStagingRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*staging.Staging, int, error) {
	return nil, 0, nil
}

type emptyVariantRepo struct{}

func (emptyVariantRepo) Create(ctx context.Context, v *genomics.Variant) error { return nil }
func (emptyVariantRepo) GetByID(ctx context.Context, id uuid.UUID) (*genomics.Variant, error) {
	return nil, genomics.ErrNotFound
}
func (emptyVariantRepo) Update(ctx context.Context, v *genomics.Variant) error { return nil }
func (emptyVariantRepo) Delete(ctx context.Context, id uuid.UUID) error        { return nil }
func (emptyVariantRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*genomics.Variant, int, error) {
	return nil, 0, nil
}
func (emptyVariantRepo) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*genomics.Variant, error) {
	return nil, nil
}

type emptySignatureRepo struct{}

func (emptySignatureRepo) Create(ctx context.Context, s *genomics.Signature) error { return nil }
func (emptySignatureRepo) GetByID(ctx context.Context, id uuid.UUID) (*genomics.Signature, error) {
	return nil, genomics.ErrNotFound
}
func (emptySignatureRepo) Update(ctx context.Context, s *genomics.Signature) error { return nil }
func (emptySignatureRepo) UpdateResult(ctx context.Context, id uuid.UUID, result *genomics.SignatureValue) error {
	return nil
}
func (emptySignatureRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptySignatureRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*genomics.Signature, int, error) {
	return nil, 0, nil
}

type emptySurgeryRepo struct{}

func (emptySurgeryRepo) Create(ctx context.Context, s *therapy.Surgery) error { return nil }
func (emptySurgeryRepo) GetByID(ctx context.Context, id uuid.UUID) (*therapy.Surgery, error) {
	return nil, therapy.ErrNotFound
}
func (emptySurgeryRepo) Update(ctx context.Context, s *therapy.Surgery) error { return nil }
func (emptySurgeryRepo) Delete(ctx context.Context, id uuid.UUID) error       { return nil }
func (emptySurgeryRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*therapy.Surgery, int, error) {
	return nil, 0, nil
}
func (emptySurgeryRepo) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*therapy.Surgery, error) {
	return nil, nil
}
func (emptySurgeryRepo) SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error {
	return nil
}

type emptyRadiotherapyRepo struct{}

func (emptyRadiotherapyRepo) Create(ctx context.Context, r *therapy.Radiotherapy) error { return nil }
func (emptyRadiotherapyRepo) GetByID(ctx context.Context, id uuid.UUID) (*therapy.Radiotherapy, error) {
	return nil, therapy.ErrNotFound
}
func (emptyRadiotherapyRepo) Update(ctx context.Context, r *therapy.Radiotherapy) error { return nil }
func (emptyRadiotherapyRepo) Delete(ctx context.Context, id uuid.UUID) error            { return nil }
func (emptyRadiotherapyRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*therapy.Radiotherapy, int, error) {
	return nil, 0, nil
}
func (emptyRadiotherapyRepo) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*therapy.Radiotherapy, error) {
	return nil, nil
}
func (emptyRadiotherapyRepo) SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error {
	return nil
}

type emptyAdverseEventRepo struct{}

func (emptyAdverseEventRepo) Create(ctx context.Context, a *assessments.AdverseEvent) error {
	return nil
}
func (emptyAdverseEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*assessments.AdverseEvent, error) {
	return nil, assessments.ErrNotFound
}
func (emptyAdverseEventRepo) Update(ctx context.Context, a *assessments.AdverseEvent) error {
	return nil
}
func (emptyAdverseEventRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptyAdverseEventRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*assessments.AdverseEvent, int, error) {
	return nil, 0, nil
}

type emptyPerformanceStatusRepo struct{}

func (emptyPerformanceStatusRepo) Create(ctx context.Context, p *assessments.PerformanceStatus) error {
	return nil
}
func (emptyPerformanceStatusRepo) GetByID(ctx context.Context, id uuid.UUID) (*assessments.PerformanceStatus, error) {
	return nil, assessments.ErrNotFound
}
func (emptyPerformanceStatusRepo) Update(ctx context.Context, p *assessments.PerformanceStatus) error {
	return nil
}
func (emptyPerformanceStatusRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptyPerformanceStatusRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*assessments.PerformanceStatus, int, error) {
	return nil, 0, nil
}

type emptyLifestyleRepo struct{}

func (emptyLifestyleRepo) Create(ctx context.Context, l *assessments.Lifestyle) error { return nil }
func (emptyLifestyleRepo) GetByID(ctx context.Context, id uuid.UUID) (*assessments.Lifestyle, error) {
	return nil, assessments.ErrNotFound
}
func (emptyLifestyleRepo) Update(ctx context.Context, l *assessments.Lifestyle) error { return nil }
func (emptyLifestyleRepo) Delete(ctx context.Context, id uuid.UUID) error             { return nil }
func (emptyLifestyleRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*assessments.Lifestyle, int, error) {
	return nil, 0, nil
}

type emptyFamilyHistoryRepo struct{}

func (emptyFamilyHistoryRepo) Create(ctx context.Context, f *assessments.FamilyHistory) error {
	return nil
}
func (emptyFamilyHistoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*assessments.FamilyHistory, error) {
	return nil, assessments.ErrNotFound
}
func (emptyFamilyHistoryRepo) Update(ctx context.Context, f *assessments.FamilyHistory) error {
	return nil
}
func (emptyFamilyHistoryRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptyFamilyHistoryRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*assessments.FamilyHistory, int, error) {
	return nil, 0, nil
}

type emptyComorbiditiesRepo struct{}

func (emptyComorbiditiesRepo) Create(ctx context.Context, c *assessments.Comorbidities) error {
	return nil
}
func (emptyComorbiditiesRepo) GetByID(ctx context.Context, id uuid.UUID) (*assessments.Comorbidities, error) {
	return nil, assessments.ErrNotFound
}
func (emptyComorbiditiesRepo) Update(ctx context.Context, c *assessments.Comorbidities) error {
	return nil
}
func (emptyComorbiditiesRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptyComorbiditiesRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*assessments.Comorbidities, int, error) {
	return nil, 0, nil
}

type emptyVitalsRepo struct{}

func (emptyVitalsRepo) Create(ctx context.Context, v *assessments.Vitals) error { return nil }
func (emptyVitalsRepo) GetByID(ctx context.Context, id uuid.UUID) (*assessments.Vitals, error) {
	return nil, assessments.ErrNotFound
}
func (emptyVitalsRepo) Update(ctx context.Context, v *assessments.Vitals) error { return nil }
func (emptyVitalsRepo) Delete(ctx context.Context, id uuid.UUID) error          { return nil }
func (emptyVitalsRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*assessments.Vitals, int, error) {
	return nil, 0, nil
}

type emptyRiskAssessmentRepo struct{}

func (emptyRiskAssessmentRepo) Create(ctx context.Context, r *assessments.RiskAssessment) error {
	return nil
}
func (emptyRiskAssessmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*assessments.RiskAssessment, error) {
	return nil, assessments.ErrNotFound
}
func (emptyRiskAssessmentRepo) Update(ctx context.Context, r *assessments.RiskAssessment) error {
	return nil
}
func (emptyRiskAssessmentRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptyRiskAssessmentRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*assessments.RiskAssessment, int, error) {
	return nil, 0, nil
}

type emptyTumorMarkerRepo struct{}

func (emptyTumorMarkerRepo) Create(ctx context.Context, t *assessments.TumorMarker) error {
	return nil
}
func (emptyTumorMarkerRepo) GetByID(ctx context.Context, id uuid.UUID) (*assessments.TumorMarker, error) {
	return nil, assessments.ErrNotFound
}
func (emptyTumorMarkerRepo) Update(ctx context.Context, t *assessments.TumorMarker) error {
	return nil
}
func (emptyTumorMarkerRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptyTumorMarkerRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*assessments.TumorMarker, int, error) {
	return nil, 0, nil
}

type emptyBoardRepo struct{}

func (emptyBoardRepo) Create(ctx context.Context, b *tumorboard.TumorBoard) error { return nil }
func (emptyBoardRepo) GetByID(ctx context.Context, id uuid.UUID) (*tumorboard.TumorBoard, error) {
	return nil, tumorboard.ErrNotFound
}
func (emptyBoardRepo) Update(ctx context.Context, b *tumorboard.TumorBoard) error { return nil }
func (emptyBoardRepo) UpdateMolecular(ctx context.Context, id uuid.UUID, details *tumorboard.MolecularDetails) error {
	return nil
}
func (emptyBoardRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (emptyBoardRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*tumorboard.TumorBoard, int, error) {
	return nil, 0, nil
}

type memEventRepo struct {
	events []*history.Event
	nextID int64
}

func (m *memEventRepo) Insert(ctx context.Context, e *history.Event) error {
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Now()
	stored := *e
	m.events = append(m.events, &stored)
	return nil
}

func (m *memEventRepo) Get(ctx context.Context, id int64) (*history.Event, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, history.ErrNotFound
}

func (m *memEventRepo) ListByEntity(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*history.Event, int, error) {
	var out []*history.Event
	for _, e := range m.events {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *memEventRepo) List(ctx context.Context, limit, offset int) ([]*history.Event, int, error) {
	return m.events, len(m.events), nil
}

func (m *memEventRepo) Contributors(ctx context.Context, entityIDs []uuid.UUID) ([]string, error) {
	return nil, nil
}

func (m *memEventRepo) CountByLabel(ctx context.Context, entityID uuid.UUID, label history.Label) (int, error) {
	n := 0
	for _, e := range m.events {
		if e.EntityID == entityID && e.Label == label {
			n++
		}
	}
	return n, nil
}

func (m *memEventRepo) LastByLabel(ctx context.Context, entityID uuid.UUID, label history.Label) (*history.Event, error) {
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].EntityID == entityID && m.events[i].Label == label {
			return m.events[i], nil
		}
	}
	return nil, history.ErrNotFound
}

type stubPseudoGenerator struct {
	next  string
	calls int
}

func (s *stubPseudoGenerator) GeneratePseudoidentifier(ctx context.Context, clinicalCenter string) (string, error) {
	s.calls++
	return s.next, nil
}

type stubLineAssigner struct {
	assigned []uuid.UUID
}

func (s *stubLineAssigner) AssignTherapyLines(ctx context.Context, caseID uuid.UUID) error {
	s.assigned = append(s.assigned, caseID)
	return nil
}

// -- fixtures --

type testEnv struct {
	svc       *Service
	cases     *memCaseRepo
	entities  *memEntityRepo
	therapies *memTherapyRepo
	responses *memResponseRepo
	events    *memEventRepo
	pseudo    *stubPseudoGenerator
	lines     *stubLineAssigner
}

func newTestEnv() *testEnv {
	env := &testEnv{
		cases:     newMemCaseRepo(),
		entities:  newMemEntityRepo(),
		therapies: newMemTherapyRepo(),
		responses: newMemResponseRepo(),
		events:    &memEventRepo{},
		pseudo:    &stubPseudoGenerator{next: "E.9999.000.01"},
		lines:     &stubLineAssigner{},
	}
	repos := Repos{
		Cases:             env.cases,
		Entities:          env.entities,
		Stagings:          emptyStagingRepo{},
		Variants:          emptyVariantRepo{},
		Signatures:        emptySignatureRepo{},
		Therapies:         env.therapies,
		Surgeries:         emptySurgeryRepo{},
		Radiotherapies:    emptyRadiotherapyRepo{},
		Responses:         env.responses,
		AdverseEvents:     emptyAdverseEventRepo{},
		PerformanceStatus: emptyPerformanceStatusRepo{},
		Lifestyles:        emptyLifestyleRepo{},
		FamilyHistories:   emptyFamilyHistoryRepo{},
		Comorbidities:     emptyComorbiditiesRepo{},
		Vitals:            emptyVitalsRepo{},
		RiskAssessments:   emptyRiskAssessmentRepo{},
		TumorMarkers:      emptyTumorMarkerRepo{},
		Boards:            emptyBoardRepo{},
	}
	env.svc = NewService(nil, repos, env.pseudo, env.lines, env.events)
	return env
}

func authedContext(username string, level int) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{Username: username, AccessLevel: level})
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func sampleCase(pseudo string) *patientcase.Case {
	return &patientcase.Case{
		ID:               uuid.New(),
		Pseudoidentifier: pseudo,
		ClinicalCenter:   "University Hospital Essen",
		DateOfBirth:      date(1958, 4, 12),
		VitalStatus:      patientcase.StatusAlive,
	}
}

func sampleBundle(pseudo string) *Bundle {
	return &Bundle{Version: BundleVersion, Case: sampleCase(pseudo)}
}

// -- tests --

func TestExportBundleRecordsEventWithChecksum(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("curator", 3)
	c := sampleCase("K.2345.678.90")
	if err := env.cases.Create(ctx, c); err != nil {
		t.Fatal(err)
	}
	entity := &patientcase.NeoplasticEntity{
		CaseID:        c.ID,
		Relationship:  patientcase.RelationshipPrimary,
		AssertionDate: date(2020, 5, 1),
	}
	if err := env.entities.Create(ctx, entity); err != nil {
		t.Fatal(err)
	}

	bundle, err := env.svc.ExportBundle(ctx, c.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bundle.Version != BundleVersion {
		t.Errorf("version = %q, want %q", bundle.Version, BundleVersion)
	}
	if len(bundle.NeoplasticEntities) != 1 {
		t.Fatalf("entities in bundle = %d, want 1", len(bundle.NeoplasticEntities))
	}
	if !bundle.Completion["neoplasticEntities"] {
		t.Error("completion map not populated")
	}

	event, err := env.events.LastByLabel(ctx, c.ID, history.LabelExport)
	if err != nil {
		t.Fatalf("no export event recorded: %v", err)
	}
	checksum, err := bundle.Checksum()
	if err != nil {
		t.Fatal(err)
	}
	if event.Context["checksum"] != checksum {
		t.Errorf("event checksum = %v, want %s", event.Context["checksum"], checksum)
	}
	if event.Context["exporter"] != "curator" {
		t.Errorf("event exporter = %v, want curator", event.Context["exporter"])
	}
}

func TestImportDuplicatePseudoidentifierConflicts(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("importer", 3)
	existing := sampleCase("K.2345.678.90")
	if err := env.cases.Create(ctx, existing); err != nil {
		t.Fatal(err)
	}

	_, err := env.svc.ImportBundle(ctx, sampleBundle("K.2345.678.90"), "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if _, getErr := env.cases.GetByID(ctx, existing.ID); getErr != nil {
		t.Error("existing case was touched by a rejected import")
	}
	if len(env.cases.cases) != 1 {
		t.Errorf("case count = %d, want 1", len(env.cases.cases))
	}
}

func TestImportReassignGeneratesNewPseudoidentifier(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("importer", 3)
	existing := sampleCase("K.2345.678.90")
	if err := env.cases.Create(ctx, existing); err != nil {
		t.Fatal(err)
	}

	created, err := env.svc.ImportBundle(ctx, sampleBundle("K.2345.678.90"), ConflictReassign)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if created.Pseudoidentifier != "E.9999.000.01" {
		t.Errorf("pseudoidentifier = %q, want the freshly generated one", created.Pseudoidentifier)
	}
	if env.pseudo.calls != 1 {
		t.Errorf("generator calls = %d, want 1", env.pseudo.calls)
	}
	if _, getErr := env.cases.GetByID(ctx, existing.ID); getErr != nil {
		t.Error("original case must be retained under reassign")
	}
	if len(env.cases.cases) != 2 {
		t.Errorf("case count = %d, want 2", len(env.cases.cases))
	}
}

func TestImportOverwriteReplacesExistingCase(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("importer", 3)
	existing := sampleCase("K.2345.678.90")
	if err := env.cases.Create(ctx, existing); err != nil {
		t.Fatal(err)
	}

	created, err := env.svc.ImportBundle(ctx, sampleBundle("K.2345.678.90"), ConflictOverwrite)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, getErr := env.cases.GetByID(ctx, existing.ID); !errors.Is(getErr, patientcase.ErrNotFound) {
		t.Error("original case must be deleted under overwrite")
	}
	if created.Pseudoidentifier != "K.2345.678.90" {
		t.Errorf("pseudoidentifier = %q, want the bundle's own", created.Pseudoidentifier)
	}
	if _, err := env.events.LastByLabel(ctx, existing.ID, history.LabelDelete); err != nil {
		t.Error("overwrite must record a delete event for the replaced case")
	}
	if _, err := env.events.LastByLabel(ctx, created.ID, history.LabelImport); err != nil {
		t.Error("import event missing")
	}
}

func TestImportClinicalIdentifierCollision(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("importer", 3)
	identifier := "MRN-100200"
	other := sampleCase("U.1111.222.33")
	other.ClinicalIdentifier = &identifier
	if err := env.cases.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	bundle := sampleBundle("K.2345.678.90")
	bundle.Case.ClinicalIdentifier = &identifier

	for _, policy := range []string{"", ConflictOverwrite} {
		if _, err := env.svc.ImportBundle(ctx, bundle, policy); !errors.Is(err, ErrConflict) {
			t.Errorf("policy %q: err = %v, want conflict", policy, err)
		}
	}
}

func TestImportRejectsUnknownConflictPolicy(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("importer", 3)
	if _, err := env.svc.ImportBundle(ctx, sampleBundle("K.2345.678.90"), "merge"); err == nil {
		t.Fatal("expected an error for an unknown conflict policy")
	}
}

func TestImportRemapsReferencesAndRecomputesLines(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("importer", 3)

	bundle := sampleBundle("K.2345.678.90")
	primaryID := uuid.New()
	metastasisID := uuid.New()
	staleLineID := uuid.New()
	bundle.NeoplasticEntities = []*patientcase.NeoplasticEntity{
		{
			ID:            metastasisID,
			Relationship:  patientcase.RelationshipMetastatic,
			AssertionDate: date(2021, 8, 2),
			RelatedPrimaryID: &primaryID,
		},
		{
			ID:            primaryID,
			Relationship:  patientcase.RelationshipPrimary,
			AssertionDate: date(2020, 5, 1),
		},
	}
	end := date(2021, 6, 30)
	bundle.SystemicTherapies = []*therapy.SystemicTherapy{
		{
			ID:                uuid.New(),
			Intent:            therapy.IntentPalliative,
			Period:            therapy.Period{Start: date(2021, 1, 10), End: &end},
			TherapyLineID:     &staleLineID,
			TargetedEntityIDs: []uuid.UUID{primaryID, uuid.New()},
			Medications: []therapy.Medication{
				{ID: uuid.New(), Drug: terminology.Ref{Code: "L01FF02", Display: "Pembrolizumab"}},
			},
		},
	}
	bundle.TreatmentResponses = []*therapy.TreatmentResponse{
		{
			ID:                uuid.New(),
			Date:              date(2021, 4, 15),
			Recist:            terminology.Ref{Code: "PR", Display: "Partial response"},
			AssessedEntityIDs: []uuid.UUID{metastasisID},
		},
	}

	created, err := env.svc.ImportBundle(ctx, bundle, "")
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	stored, _, err := env.entities.ListByCase(ctx, created.ID, pagination.Params{})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Fatalf("entities = %d, want 2", len(stored))
	}
	var newPrimary, newMetastasis *patientcase.NeoplasticEntity
	for _, e := range stored {
		if e.ID == primaryID || e.ID == metastasisID {
			t.Fatalf("entity kept its bundle id %s", e.ID)
		}
		switch e.Relationship {
		case patientcase.RelationshipPrimary:
			newPrimary = e
		case patientcase.RelationshipMetastatic:
			newMetastasis = e
		}
	}
	if newMetastasis.RelatedPrimaryID == nil || *newMetastasis.RelatedPrimaryID != newPrimary.ID {
		t.Error("metastasis relation was not remapped to the inserted primary")
	}

	therapies, err := env.therapies.ListAllByCase(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(therapies) != 1 {
		t.Fatalf("therapies = %d, want 1", len(therapies))
	}
	if therapies[0].TherapyLineID != nil {
		t.Error("therapy line assignment must not be imported")
	}
	if len(therapies[0].TargetedEntityIDs) != 1 || therapies[0].TargetedEntityIDs[0] != newPrimary.ID {
		t.Errorf("targeted entities = %v, want only the remapped primary", therapies[0].TargetedEntityIDs)
	}

	responses, err := env.responses.ListAllByCase(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 || len(responses[0].AssessedEntityIDs) != 1 ||
		responses[0].AssessedEntityIDs[0] != newMetastasis.ID {
		t.Error("assessed entities were not remapped")
	}

	if len(env.lines.assigned) != 1 || env.lines.assigned[0] != created.ID {
		t.Errorf("lines assigned for %v, want exactly the imported case", env.lines.assigned)
	}
	if created.CreatedBy != "importer" {
		t.Errorf("createdBy = %q, want importer", created.CreatedBy)
	}
}

func TestBundleValidate(t *testing.T) {
	var b Bundle
	if err := b.Validate(); !errors.Is(err, ErrInvalidBundle) {
		t.Errorf("empty bundle: err = %v, want invalid", err)
	}
	b.Case = &patientcase.Case{}
	if err := b.Validate(); !errors.Is(err, ErrInvalidBundle) {
		t.Errorf("missing pseudoidentifier: err = %v, want invalid", err)
	}
	b.Case.Pseudoidentifier = "K.2345.678.90"
	if err := b.Validate(); err != nil {
		t.Errorf("valid bundle rejected: %v", err)
	}
}
