package assessments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/anonymize"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/pagination"
)

// -- in-memory repositories --

type memAdverseEventRepo struct {
	records map[uuid.UUID]*AdverseEvent
}

func (m *memAdverseEventRepo) Create(ctx context.Context, a *AdverseEvent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	copied := *a
	m.records[a.ID] = &copied
	return nil
}

func (m *memAdverseEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*AdverseEvent, error) {
	a, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *memAdverseEventRepo) Update(ctx context.Context, a *AdverseEvent) error {
	if _, ok := m.records[a.ID]; !ok {
		return ErrNotFound
	}
	copied := *a
	m.records[a.ID] = &copied
	return nil
}

func (m *memAdverseEventRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memAdverseEventRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*AdverseEvent, int, error) {
	var out []*AdverseEvent
	for _, a := range m.records {
		if a.CaseID == caseID {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memPerformanceStatusRepo struct {
	records map[uuid.UUID]*PerformanceStatus
}

func (m *memPerformanceStatusRepo) Create(ctx context.Context, p *PerformanceStatus) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	copied := *p
	m.records[p.ID] = &copied
	return nil
}

func (m *memPerformanceStatusRepo) GetByID(ctx context.Context, id uuid.UUID) (*PerformanceStatus, error) {
	p, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memPerformanceStatusRepo) Update(ctx context.Context, p *PerformanceStatus) error {
	if _, ok := m.records[p.ID]; !ok {
		return ErrNotFound
	}
	copied := *p
	m.records[p.ID] = &copied
	return nil
}

func (m *memPerformanceStatusRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memPerformanceStatusRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*PerformanceStatus, int, error) {
	var out []*PerformanceStatus
	for _, st := range m.records {
		if st.CaseID == caseID {
			copied := *st
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memLifestyleRepo struct {
	records map[uuid.UUID]*Lifestyle
}

func (m *memLifestyleRepo) Create(ctx context.Context, l *Lifestyle) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	copied := *l
	m.records[l.ID] = &copied
	return nil
}

func (m *memLifestyleRepo) GetByID(ctx context.Context, id uuid.UUID) (*Lifestyle, error) {
	l, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *l
	return &copied, nil
}

func (m *memLifestyleRepo) Update(ctx context.Context, l *Lifestyle) error {
	if _, ok := m.records[l.ID]; !ok {
		return ErrNotFound
	}
	copied := *l
	m.records[l.ID] = &copied
	return nil
}

func (m *memLifestyleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memLifestyleRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Lifestyle, int, error) {
	var out []*Lifestyle
	for _, l := range m.records {
		if l.CaseID == caseID {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memFamilyHistoryRepo struct {
	records map[uuid.UUID]*FamilyHistory
}

func (m *memFamilyHistoryRepo) Create(ctx context.Context, f *FamilyHistory) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	copied := *f
	m.records[f.ID] = &copied
	return nil
}

func (m *memFamilyHistoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*FamilyHistory, error) {
	f, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (m *memFamilyHistoryRepo) Update(ctx context.Context, f *FamilyHistory) error {
	if _, ok := m.records[f.ID]; !ok {
		return ErrNotFound
	}
	copied := *f
	m.records[f.ID] = &copied
	return nil
}

func (m *memFamilyHistoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memFamilyHistoryRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*FamilyHistory, int, error) {
	var out []*FamilyHistory
	for _, f := range m.records {
		if f.CaseID == caseID {
			copied := *f
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memComorbiditiesRepo struct {
	records map[uuid.UUID]*Comorbidities
}

func (m *memComorbiditiesRepo) Create(ctx context.Context, c *Comorbidities) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	copied := *c
	m.records[c.ID] = &copied
	return nil
}

func (m *memComorbiditiesRepo) GetByID(ctx context.Context, id uuid.UUID) (*Comorbidities, error) {
	c, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (m *memComorbiditiesRepo) Update(ctx context.Context, c *Comorbidities) error {
	if _, ok := m.records[c.ID]; !ok {
		return ErrNotFound
	}
	copied := *c
	m.records[c.ID] = &copied
	return nil
}

func (m *memComorbiditiesRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memComorbiditiesRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Comorbidities, int, error) {
	var out []*Comorbidities
	for _, c := range m.records {
		if c.CaseID == caseID {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memVitalsRepo struct {
	records map[uuid.UUID]*Vitals
}

func (m *memVitalsRepo) Create(ctx context.Context, v *Vitals) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	copied := *v
	m.records[v.ID] = &copied
	return nil
}

func (m *memVitalsRepo) GetByID(ctx context.Context, id uuid.UUID) (*Vitals, error) {
	v, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (m *memVitalsRepo) Update(ctx context.Context, v *Vitals) error {
	if _, ok := m.records[v.ID]; !ok {
		return ErrNotFound
	}
	copied := *v
	m.records[v.ID] = &copied
	return nil
}

func (m *memVitalsRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memVitalsRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Vitals, int, error) {
	var out []*Vitals
	for _, v := range m.records {
		if v.CaseID == caseID {
			copied := *v
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memRiskAssessmentRepo struct {
	records map[uuid.UUID]*RiskAssessment
}

func (m *memRiskAssessmentRepo) Create(ctx context.Context, r *RiskAssessment) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	copied := *r
	m.records[r.ID] = &copied
	return nil
}

func (m *memRiskAssessmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*RiskAssessment, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *memRiskAssessmentRepo) Update(ctx context.Context, r *RiskAssessment) error {
	if _, ok := m.records[r.ID]; !ok {
		return ErrNotFound
	}
	copied := *r
	m.records[r.ID] = &copied
	return nil
}

func (m *memRiskAssessmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memRiskAssessmentRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*RiskAssessment, int, error) {
	var out []*RiskAssessment
	for _, r := range m.records {
		if r.CaseID == caseID {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memTumorMarkerRepo struct {
	records map[uuid.UUID]*TumorMarker
}

func (m *memTumorMarkerRepo) Create(ctx context.Context, t *TumorMarker) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	copied := *t
	m.records[t.ID] = &copied
	return nil
}

func (m *memTumorMarkerRepo) GetByID(ctx context.Context, id uuid.UUID) (*TumorMarker, error) {
	t, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (m *memTumorMarkerRepo) Update(ctx context.Context, t *TumorMarker) error {
	if _, ok := m.records[t.ID]; !ok {
		return ErrNotFound
	}
	copied := *t
	m.records[t.ID] = &copied
	return nil
}

func (m *memTumorMarkerRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memTumorMarkerRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TumorMarker, int, error) {
	var out []*TumorMarker
	for _, t := range m.records {
		if t.CaseID == caseID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, len(out), nil
}

type memCaseSource struct {
	cases map[uuid.UUID]*patientcase.Case
}

func (m *memCaseSource) GetByID(ctx context.Context, id uuid.UUID) (*patientcase.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return nil, patientcase.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

type memEventRepo struct {
	events []*history.Event
	nextID int64
}

func (m *memEventRepo) Insert(ctx context.Context, e *history.Event) error {
	m.nextID++
	e.ID = m.nextID
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

func newTestService() (*Service, *memEventRepo, uuid.UUID) {
	events := &memEventRepo{}
	caseID := uuid.New()
	cases := &memCaseSource{cases: map[uuid.UUID]*patientcase.Case{
		caseID: {ID: caseID, Pseudoidentifier: "U.1234.567.89"},
	}}
	svc := NewService(nil,
		&memAdverseEventRepo{records: map[uuid.UUID]*AdverseEvent{}},
		&memPerformanceStatusRepo{records: map[uuid.UUID]*PerformanceStatus{}},
		&memLifestyleRepo{records: map[uuid.UUID]*Lifestyle{}},
		&memFamilyHistoryRepo{records: map[uuid.UUID]*FamilyHistory{}},
		&memComorbiditiesRepo{records: map[uuid.UUID]*Comorbidities{}},
		&memVitalsRepo{records: map[uuid.UUID]*Vitals{}},
		&memRiskAssessmentRepo{records: map[uuid.UUID]*RiskAssessment{}},
		&memTumorMarkerRepo{records: map[uuid.UUID]*TumorMarker{}},
		cases, events, anonymize.New("test-secret-key-0123456789abcdef"))
	return svc, events, caseID
}

func authedContext(username string, level int) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{Username: username, AccessLevel: level})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func intPtr(v int) *int         { return &v }
func f64Ptr(v float64) *float64 { return &v }

// -- tests --

func TestCreateAdverseEventRecordsEvent(t *testing.T) {
	svc, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	a := &AdverseEvent{
		CaseID: caseID,
		Date:   date(2023, time.April, 2),
		Event:  &terminology.Ref{Code: "E10023", Display: "Nausea", System: terminology.SystemCTCAE},
		Grade:  intPtr(2),
	}
	if err := svc.CreateAdverseEvent(ctx, a); err != nil {
		t.Fatal(err)
	}
	if a.CreatedBy != "curator" {
		t.Errorf("created by = %q, want curator", a.CreatedBy)
	}
	if a.Description != "Nausea (grade 2)" {
		t.Errorf("description = %q, want Nausea (grade 2)", a.Description)
	}
	if len(events.events) != 1 {
		t.Fatalf("got %d events, want 1", len(events.events))
	}
	ev := events.events[0]
	if ev.EntityKind != AdverseEventKind || ev.Label != history.LabelCreate {
		t.Errorf("event = %s/%s, want %s/%s", ev.EntityKind, ev.Label, AdverseEventKind, history.LabelCreate)
	}
}

func TestAdverseEventGradeRange(t *testing.T) {
	svc, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	a := &AdverseEvent{CaseID: caseID, Date: date(2023, time.April, 2), Grade: intPtr(6)}
	if err := svc.CreateAdverseEvent(ctx, a); err == nil {
		t.Fatal("grade 6 accepted")
	}
}

func TestPerformanceStatusValidation(t *testing.T) {
	tests := []struct {
		name    string
		status  PerformanceStatus
		wantErr bool
	}{
		{"valid ecog", PerformanceStatus{Date: date(2023, 1, 1), ECOGScore: intPtr(2)}, false},
		{"valid karnofsky", PerformanceStatus{Date: date(2023, 1, 1), Karnofsky: intPtr(80)}, false},
		{"no scores", PerformanceStatus{Date: date(2023, 1, 1)}, true},
		{"ecog out of range", PerformanceStatus{Date: date(2023, 1, 1), ECOGScore: intPtr(7)}, true},
		{"karnofsky out of range", PerformanceStatus{Date: date(2023, 1, 1), Karnofsky: intPtr(110)}, true},
		{"missing date", PerformanceStatus{ECOGScore: intPtr(1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.status.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTumorMarkerRequiresUnitWithValue(t *testing.T) {
	svc, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	marker := &TumorMarker{
		CaseID:  caseID,
		Date:    date(2023, time.June, 5),
		Analyte: terminology.Ref{Code: "2857-1", Display: "PSA", System: terminology.SystemLOINC},
		Value:   f64Ptr(4.2),
	}
	if err := svc.CreateTumorMarker(ctx, marker); err == nil {
		t.Fatal("value without unit accepted")
	}
	marker.Unit = "ng/mL"
	if err := svc.CreateTumorMarker(ctx, marker); err != nil {
		t.Fatal(err)
	}
	if marker.Description != "PSA 4.2 ng/mL" {
		t.Errorf("description = %q, want PSA 4.2 ng/mL", marker.Description)
	}
}

func TestCreateRejectsUnknownCase(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := authedContext("curator", 3)

	v := &Vitals{CaseID: uuid.New(), Date: date(2023, 1, 1), WeightKg: f64Ptr(72)}
	if err := svc.CreateVitals(ctx, v); err != patientcase.ErrNotFound {
		t.Fatalf("got %v, want %v", err, patientcase.ErrNotFound)
	}
}

func TestUpdatePreservesProvenance(t *testing.T) {
	svc, _, caseID := newTestService()

	f := &FamilyHistory{
		CaseID:       caseID,
		Date:         date(2022, time.March, 1),
		Relationship: "mother",
		Condition:    &terminology.Ref{Code: "C50", Display: "Breast cancer", System: terminology.SystemICD10},
	}
	if err := svc.CreateFamilyHistory(authedContext("curator", 3), f); err != nil {
		t.Fatal(err)
	}

	changed := *f
	changed.OnsetAge = intPtr(54)
	if err := svc.UpdateFamilyHistory(authedContext("editor", 3), &changed); err != nil {
		t.Fatal(err)
	}
	if changed.CreatedBy != "curator" {
		t.Errorf("created by = %q, want curator", changed.CreatedBy)
	}
	if len(changed.UpdatedBy) != 1 || changed.UpdatedBy[0] != "editor" {
		t.Errorf("updated by = %v, want [editor]", changed.UpdatedBy)
	}
}

func TestRevertRestoresSnapshot(t *testing.T) {
	svc, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	v := &Vitals{CaseID: caseID, Date: date(2023, 1, 1), WeightKg: f64Ptr(72), HeightCm: f64Ptr(180)}
	if err := svc.CreateVitals(ctx, v); err != nil {
		t.Fatal(err)
	}
	createEvent := events.events[0]

	changed := *v
	changed.WeightKg = f64Ptr(68)
	if err := svc.UpdateVitals(ctx, &changed); err != nil {
		t.Fatal(err)
	}

	reverter := NewReverter(svc)
	id, _, err := reverter.Revert(authedContext("reviewer", 3), createEvent)
	if err != nil {
		t.Fatal(err)
	}
	if id != v.ID {
		t.Errorf("reverted id = %v, want %v", id, v.ID)
	}
	restored, err := svc.GetVitals(ctx, v.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if restored.WeightKg == nil || *restored.WeightKg != 72 {
		t.Errorf("weight = %v, want 72", restored.WeightKg)
	}
}

func TestRevertUnknownKind(t *testing.T) {
	svc, _, _ := newTestService()
	reverter := NewReverter(svc)
	_, _, err := reverter.Revert(context.Background(), &history.Event{EntityKind: "staging"})
	if err != history.ErrNotFound {
		t.Fatalf("got %v, want %v", err, history.ErrNotFound)
	}
}

func TestListLifestylesAnonymizesDates(t *testing.T) {
	svc, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	recorded := date(2022, time.July, 15)
	l := &Lifestyle{CaseID: caseID, Date: recorded, SmokingStatus: "former"}
	if err := svc.CreateLifestyle(ctx, l); err != nil {
		t.Fatal(err)
	}

	records, _, err := svc.ListLifestyles(ctx, caseID, pagination.Params{Limit: 20, Anonymized: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Date.Equal(recorded) {
		t.Error("anonymized date equals the recorded date")
	}
	if records[0].SmokingStatus != "former" {
		t.Errorf("smoking status = %q, want former", records[0].SmokingStatus)
	}
}
