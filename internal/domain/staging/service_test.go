package staging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/platform/anonymize"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/pagination"
)

// -- in-memory repositories --

type memStagingRepo struct {
	stagings map[uuid.UUID]*Staging
}

func newMemStagingRepo() *memStagingRepo {
	return &memStagingRepo{stagings: map[uuid.UUID]*Staging{}}
}

func clone(s *Staging) *Staging {
	copied := *s
	if s.TNM != nil {
		d := *s.TNM
		copied.TNM = &d
	}
	if s.FIGO != nil {
		d := *s.FIGO
		copied.FIGO = &d
	}
	if s.Gleason != nil {
		d := *s.Gleason
		copied.Gleason = &d
	}
	if s.Breslow != nil {
		d := *s.Breslow
		copied.Breslow = &d
	}
	if s.Generic != nil {
		d := *s.Generic
		copied.Generic = &d
	}
	return &copied
}

func (m *memStagingRepo) Create(ctx context.Context, s *Staging) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	m.stagings[s.ID] = clone(s)
	return nil
}

func (m *memStagingRepo) GetByID(ctx context.Context, id uuid.UUID) (*Staging, error) {
	s, ok := m.stagings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *memStagingRepo) Update(ctx context.Context, s *Staging) error {
	if _, ok := m.stagings[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = time.Now()
	m.stagings[s.ID] = clone(s)
	return nil
}

func (m *memStagingRepo) UpdateChild(ctx context.Context, id uuid.UUID, domain Domain, child any) error {
	s, ok := m.stagings[id]
	if !ok {
		return ErrNotFound
	}
	switch domain {
	case DomainTNM:
		d := *child.(*TNMDetails)
		s.TNM = &d
	case DomainFIGO:
		d := *child.(*FIGODetails)
		s.FIGO = &d
	default:
		d := *child.(*GenericDetails)
		s.Generic = &d
	}
	return nil
}

func (m *memStagingRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.stagings[id]; !ok {
		return ErrNotFound
	}
	delete(m.stagings, id)
	return nil
}

func (m *memStagingRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Staging, int, error) {
	var out []*Staging
	for _, s := range m.stagings {
		if s.CaseID == caseID {
			out = append(out, clone(s))
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

func newTestService() (*Service, *memStagingRepo, *memEventRepo, uuid.UUID) {
	stagings := newMemStagingRepo()
	events := &memEventRepo{}
	caseID := uuid.New()
	cases := &memCaseSource{cases: map[uuid.UUID]*patientcase.Case{
		caseID: {ID: caseID, Pseudoidentifier: "U.1234.567.89"},
	}}
	svc := NewService(nil, stagings, cases, events, anonymize.New("test-secret-key-0123456789abcdef"))
	return svc, stagings, events, caseID
}

func authedContext(username string, level int) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{Username: username, AccessLevel: level})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -- tests --

func TestCreateStagingRecordsParentAndVariantEvents(t *testing.T) {
	svc, _, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	st := &Staging{
		CaseID: caseID,
		Date:   date(2023, time.May, 10),
		Domain: DomainTNM,
		TNM:    &TNMDetails{T: "T1", N: "N0", M: "M0"},
	}
	if err := svc.CreateStaging(ctx, st); err != nil {
		t.Fatalf("CreateStaging error: %v", err)
	}
	if len(events.events) != 2 {
		t.Fatalf("got %d events, want 2", len(events.events))
	}
	kinds := map[string]bool{}
	for _, e := range events.events {
		if e.EntityID != st.ID {
			t.Errorf("event entity id = %v, want %v", e.EntityID, st.ID)
		}
		if e.Label != history.LabelCreate {
			t.Errorf("event label = %v, want create", e.Label)
		}
		kinds[e.EntityKind] = true
	}
	if !kinds["staging"] || !kinds["staging/tnm"] {
		t.Errorf("event kinds = %v, want staging and staging/tnm", kinds)
	}
}

func TestCreateStagingValidatesVariant(t *testing.T) {
	svc, _, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	tests := []struct {
		name string
		st   Staging
	}{
		{"no variant", Staging{CaseID: caseID, Date: date(2023, time.May, 10), Domain: DomainTNM}},
		{"two variants", Staging{CaseID: caseID, Date: date(2023, time.May, 10), Domain: DomainTNM,
			TNM: &TNMDetails{T: "T1"}, FIGO: &FIGODetails{Stage: "II"}}},
		{"wrong variant", Staging{CaseID: caseID, Date: date(2023, time.May, 10), Domain: DomainFIGO,
			TNM: &TNMDetails{T: "T1"}}},
		{"unknown domain", Staging{CaseID: caseID, Date: date(2023, time.May, 10), Domain: "ann-arbor",
			Generic: &GenericDetails{Stage: "III"}}},
		{"missing date", Staging{CaseID: caseID, Domain: DomainTNM, TNM: &TNMDetails{T: "T1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.st
			if err := svc.CreateStaging(ctx, &st); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateGleasonStaging(t *testing.T) {
	svc, stagings, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	st := &Staging{
		CaseID:  caseID,
		Date:    date(2023, time.May, 10),
		Domain:  DomainGleason,
		Gleason: &GleasonDetails{PrimaryPattern: 3, SecondaryPattern: 4},
	}
	if err := svc.CreateStaging(ctx, st); err != nil {
		t.Fatalf("CreateStaging error: %v", err)
	}
	if st.Description != "Gleason score 7 (3+4)" {
		t.Errorf("description = %q, want Gleason score 7 (3+4)", st.Description)
	}
	stored := stagings.stagings[st.ID]
	if stored.Gleason == nil || stored.Gleason.Score() != 7 {
		t.Errorf("stored gleason = %+v, want patterns 3+4", stored.Gleason)
	}
	kinds := map[string]bool{}
	for _, e := range events.events {
		kinds[e.EntityKind] = true
	}
	if !kinds["staging/gleason"] {
		t.Errorf("event kinds = %v, want staging/gleason", kinds)
	}
}

func TestCreateBreslowStaging(t *testing.T) {
	svc, stagings, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	st := &Staging{
		CaseID:  caseID,
		Date:    date(2023, time.May, 10),
		Domain:  DomainBreslow,
		Breslow: &BreslowDetails{ThicknessMM: 1.2, Ulceration: true},
	}
	if err := svc.CreateStaging(ctx, st); err != nil {
		t.Fatalf("CreateStaging error: %v", err)
	}
	if st.Description != "Breslow thickness 1.2 mm" {
		t.Errorf("description = %q, want Breslow thickness 1.2 mm", st.Description)
	}
	stored := stagings.stagings[st.ID]
	if stored.Breslow == nil || !stored.Breslow.Ulceration {
		t.Errorf("stored breslow = %+v, want ulcerated 1.2 mm", stored.Breslow)
	}
}

func TestCreateStagingRejectsBadMeasuredVariants(t *testing.T) {
	svc, _, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	tests := []struct {
		name string
		st   Staging
	}{
		{"gleason pattern too high", Staging{CaseID: caseID, Date: date(2023, time.May, 10),
			Domain: DomainGleason, Gleason: &GleasonDetails{PrimaryPattern: 6, SecondaryPattern: 4}}},
		{"gleason pattern too low", Staging{CaseID: caseID, Date: date(2023, time.May, 10),
			Domain: DomainGleason, Gleason: &GleasonDetails{PrimaryPattern: 3}}},
		{"gleason as generic stage", Staging{CaseID: caseID, Date: date(2023, time.May, 10),
			Domain: DomainGleason, Generic: &GenericDetails{Stage: "7"}}},
		{"breslow zero thickness", Staging{CaseID: caseID, Date: date(2023, time.May, 10),
			Domain: DomainBreslow, Breslow: &BreslowDetails{}}},
		{"breslow as generic stage", Staging{CaseID: caseID, Date: date(2023, time.May, 10),
			Domain: DomainBreslow, Generic: &GenericDetails{Stage: "1.2"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.st
			if err := svc.CreateStaging(ctx, &st); !errors.Is(err, ErrInvalid) {
				t.Errorf("got %v, want a validation failure", err)
			}
		})
	}
}

func TestUpdateStagingRejectsDomainChange(t *testing.T) {
	svc, _, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	st := &Staging{
		CaseID: caseID,
		Date:   date(2023, time.May, 10),
		Domain: DomainBinet,
		Generic: &GenericDetails{Stage: "B"},
	}
	if err := svc.CreateStaging(ctx, st); err != nil {
		t.Fatalf("CreateStaging error: %v", err)
	}

	update := &Staging{
		ID:     st.ID,
		Date:   st.Date,
		Domain: DomainRai,
		Generic: &GenericDetails{Stage: "II"},
	}
	if err := svc.UpdateStaging(ctx, update); !errors.Is(err, ErrDomainMismatch) {
		t.Errorf("err = %v, want ErrDomainMismatch", err)
	}
}

func TestRevertToCreateSnapshotRestoresAggregate(t *testing.T) {
	svc, stagings, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	st := &Staging{
		CaseID: caseID,
		Date:   date(2023, time.May, 10),
		Domain: DomainTNM,
		TNM:    &TNMDetails{T: "T1", N: "N0", M: "M0"},
	}
	if err := svc.CreateStaging(ctx, st); err != nil {
		t.Fatalf("CreateStaging error: %v", err)
	}

	update := &Staging{
		ID:     st.ID,
		Date:   st.Date,
		Domain: DomainTNM,
		TNM:    &TNMDetails{T: "T2", N: "N0", M: "M0"},
	}
	if err := svc.UpdateStaging(authedContext("editor", 3), update); err != nil {
		t.Fatalf("UpdateStaging error: %v", err)
	}

	var createEvent *history.Event
	for _, e := range events.events {
		if e.EntityKind == "staging" && e.Label == history.LabelCreate {
			createEvent = e
		}
	}
	if createEvent == nil {
		t.Fatal("no parent create event recorded")
	}

	reverter := NewReverter(svc)
	id, desc, err := reverter.Revert(authedContext("reviewer", 3), createEvent)
	if err != nil {
		t.Fatalf("Revert error: %v", err)
	}
	if id != st.ID {
		t.Errorf("reverted id = %v, want %v", id, st.ID)
	}
	if desc == "" {
		t.Error("empty revert description")
	}

	restored, err := stagings.GetByID(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if restored.TNM == nil || restored.TNM.T != "T1" {
		t.Errorf("restored T = %+v, want T1", restored.TNM)
	}
	if restored.Domain != DomainTNM {
		t.Errorf("domain = %s, want tnm", restored.Domain)
	}

	updates := 0
	for _, e := range events.events {
		if e.EntityKind == "staging" && e.Label == history.LabelUpdate {
			updates++
		}
	}
	if updates != 2 {
		t.Errorf("got %d parent update events, want 2 (original update plus reversion)", updates)
	}
}

func TestRevertVariantEventTouchesOnlyChildColumns(t *testing.T) {
	svc, stagings, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	st := &Staging{
		CaseID: caseID,
		Date:   date(2023, time.May, 10),
		Domain: DomainTNM,
		TNM:    &TNMDetails{T: "T1", N: "N0", M: "M0"},
	}
	if err := svc.CreateStaging(ctx, st); err != nil {
		t.Fatalf("CreateStaging error: %v", err)
	}

	// The update moves the date and the T stage together.
	update := &Staging{
		ID:     st.ID,
		Date:   date(2023, time.August, 2),
		Domain: DomainTNM,
		TNM:    &TNMDetails{T: "T2", N: "N0", M: "M0"},
	}
	if err := svc.UpdateStaging(ctx, update); err != nil {
		t.Fatalf("UpdateStaging error: %v", err)
	}

	var childCreate *history.Event
	for _, e := range events.events {
		if e.EntityKind == "staging/tnm" && e.Label == history.LabelCreate {
			childCreate = e
		}
	}
	if childCreate == nil {
		t.Fatal("no variant create event recorded")
	}

	reverter := NewReverter(svc)
	if _, _, err := reverter.Revert(ctx, childCreate); err != nil {
		t.Fatalf("Revert error: %v", err)
	}

	restored, err := stagings.GetByID(context.Background(), st.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if restored.TNM == nil || restored.TNM.T != "T1" {
		t.Errorf("restored T = %+v, want T1", restored.TNM)
	}
	if !restored.Date.Equal(date(2023, time.August, 2)) {
		t.Errorf("date = %v, want the updated date untouched", restored.Date)
	}
}

func TestRevertVariantEventRejectsForeignDomain(t *testing.T) {
	svc, _, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	st := &Staging{
		CaseID:  caseID,
		Date:    date(2023, time.May, 10),
		Domain:  DomainFIGO,
		FIGO:    &FIGODetails{Stage: "IIB"},
	}
	if err := svc.CreateStaging(ctx, st); err != nil {
		t.Fatalf("CreateStaging error: %v", err)
	}

	foreign := &history.Event{
		EntityKind: "staging/tnm",
		EntityID:   st.ID,
		Label:      history.LabelCreate,
		Snapshot:   []byte(`{"t":"T1"}`),
	}
	reverter := NewReverter(svc)
	if _, _, err := reverter.Revert(ctx, foreign); !errors.Is(err, history.ErrNotFound) {
		t.Errorf("err = %v, want history.ErrNotFound", err)
	}
}

func TestGetStagingAnonymizesDate(t *testing.T) {
	svc, _, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	original := date(2023, time.May, 10)
	st := &Staging{
		CaseID: caseID,
		Date:   original,
		Domain: DomainTNM,
		TNM:    &TNMDetails{T: "T1"},
	}
	if err := svc.CreateStaging(ctx, st); err != nil {
		t.Fatalf("CreateStaging error: %v", err)
	}

	anon := anonymize.New("test-secret-key-0123456789abcdef")
	want := anon.Date("U.1234.567.89", original)

	got, err := svc.GetStaging(ctx, st.ID, true)
	if err != nil {
		t.Fatalf("GetStaging error: %v", err)
	}
	if !got.Date.Equal(want) {
		t.Errorf("anonymized date = %v, want %v", got.Date, want)
	}

	clear, err := svc.GetStaging(ctx, st.ID, false)
	if err != nil {
		t.Fatalf("GetStaging error: %v", err)
	}
	if !clear.Date.Equal(original) {
		t.Errorf("clear date = %v, want %v", clear.Date, original)
	}
}
