package tumorboard

import (
	"context"
	"encoding/json"
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

type memBoardRepo struct {
	boards map[uuid.UUID]*TumorBoard
}

func cloneBoard(b *TumorBoard) *TumorBoard {
	copied := *b
	if b.Molecular != nil {
		d := MolecularDetails{
			ReviewedVariantIDs: append([]uuid.UUID(nil), b.Molecular.ReviewedVariantIDs...),
			Recommendations:    append(json.RawMessage(nil), b.Molecular.Recommendations...),
		}
		copied.Molecular = &d
	}
	return &copied
}

func (m *memBoardRepo) Create(ctx context.Context, b *TumorBoard) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.boards[b.ID] = cloneBoard(b)
	return nil
}

func (m *memBoardRepo) GetByID(ctx context.Context, id uuid.UUID) (*TumorBoard, error) {
	b, ok := m.boards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBoard(b), nil
}

func (m *memBoardRepo) Update(ctx context.Context, b *TumorBoard) error {
	if _, ok := m.boards[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = time.Now()
	m.boards[b.ID] = cloneBoard(b)
	return nil
}

func (m *memBoardRepo) UpdateMolecular(ctx context.Context, id uuid.UUID, details *MolecularDetails) error {
	b, ok := m.boards[id]
	if !ok {
		return ErrNotFound
	}
	d := *details
	b.Molecular = &d
	return nil
}

func (m *memBoardRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.boards[id]; !ok {
		return ErrNotFound
	}
	delete(m.boards, id)
	return nil
}

func (m *memBoardRepo) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TumorBoard, int, error) {
	var out []*TumorBoard
	for _, b := range m.boards {
		if b.CaseID == caseID {
			out = append(out, cloneBoard(b))
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

func newTestService() (*Service, *memBoardRepo, *memEventRepo, uuid.UUID) {
	boards := &memBoardRepo{boards: map[uuid.UUID]*TumorBoard{}}
	events := &memEventRepo{}
	caseID := uuid.New()
	cases := &memCaseSource{cases: map[uuid.UUID]*patientcase.Case{
		caseID: {ID: caseID, Pseudoidentifier: "U.1234.567.89"},
	}}
	svc := NewService(nil, boards, cases, events, anonymize.New("test-secret-key-0123456789abcdef"))
	return svc, boards, events, caseID
}

func authedContext(username string, level int) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{Username: username, AccessLevel: level})
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -- tests --

func TestCreateMolecularBoardRecordsParentAndChildEvents(t *testing.T) {
	svc, _, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	b := &TumorBoard{
		CaseID:   caseID,
		Date:     date(2023, time.September, 14),
		Category: CategoryMolecular,
		Molecular: &MolecularDetails{
			ReviewedVariantIDs: []uuid.UUID{uuid.New(), uuid.New()},
			Recommendations:    json.RawMessage(`[{"drug":"Dabrafenib"}]`),
		},
	}
	if err := svc.CreateTumorBoard(ctx, b); err != nil {
		t.Fatal(err)
	}
	if len(events.events) != 2 {
		t.Fatalf("got %d events, want 2", len(events.events))
	}
	if events.events[0].EntityKind != EntityKind {
		t.Errorf("first event kind = %q, want %q", events.events[0].EntityKind, EntityKind)
	}
	if events.events[1].EntityKind != MolecularChildKind {
		t.Errorf("second event kind = %q, want %q", events.events[1].EntityKind, MolecularChildKind)
	}
	if events.events[1].EntityID != b.ID {
		t.Error("child event does not share the parent entity id")
	}
}

func TestCreateUnspecifiedBoardRecordsSingleEvent(t *testing.T) {
	svc, _, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	b := &TumorBoard{CaseID: caseID, Date: date(2023, time.May, 2), Category: CategoryUnspecified}
	if err := svc.CreateTumorBoard(ctx, b); err != nil {
		t.Fatal(err)
	}
	if len(events.events) != 1 {
		t.Fatalf("got %d events, want 1", len(events.events))
	}
}

func TestValidateCategoryDiscriminator(t *testing.T) {
	tests := []struct {
		name    string
		board   TumorBoard
		wantErr bool
	}{
		{"molecular with child", TumorBoard{Date: date(2023, 1, 1), Category: CategoryMolecular,
			Molecular: &MolecularDetails{}}, false},
		{"molecular without child", TumorBoard{Date: date(2023, 1, 1), Category: CategoryMolecular}, true},
		{"unspecified with child", TumorBoard{Date: date(2023, 1, 1), Category: CategoryUnspecified,
			Molecular: &MolecularDetails{}}, true},
		{"unknown category", TumorBoard{Date: date(2023, 1, 1), Category: "surgical"}, true},
		{"missing date", TumorBoard{Category: CategoryUnspecified}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.board.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateRejectsCategoryChange(t *testing.T) {
	svc, _, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	b := &TumorBoard{CaseID: caseID, Date: date(2023, time.May, 2), Category: CategoryUnspecified}
	if err := svc.CreateTumorBoard(ctx, b); err != nil {
		t.Fatal(err)
	}
	changed := *b
	changed.Category = CategoryMolecular
	changed.Molecular = &MolecularDetails{}
	err := svc.UpdateTumorBoard(ctx, &changed)
	if !errors.Is(err, ErrCategoryMismatch) {
		t.Fatalf("got %v, want ErrCategoryMismatch", err)
	}
}

func TestRevertMolecularEventRestoresChildOnly(t *testing.T) {
	svc, boards, events, caseID := newTestService()
	ctx := authedContext("curator", 3)

	variant := uuid.New()
	b := &TumorBoard{
		CaseID:   caseID,
		Date:     date(2023, time.September, 14),
		Category: CategoryMolecular,
		Molecular: &MolecularDetails{
			ReviewedVariantIDs: []uuid.UUID{variant},
			Recommendations:    json.RawMessage(`[{"drug":"Dabrafenib"}]`),
		},
	}
	if err := svc.CreateTumorBoard(ctx, b); err != nil {
		t.Fatal(err)
	}
	childEvent := events.events[1]

	changed := cloneBoard(boards.boards[b.ID])
	changed.Date = date(2023, time.October, 1)
	changed.Molecular.Recommendations = json.RawMessage(`[]`)
	if err := svc.UpdateTumorBoard(ctx, changed); err != nil {
		t.Fatal(err)
	}

	reverter := NewReverter(svc)
	if _, _, err := reverter.Revert(authedContext("reviewer", 3), childEvent); err != nil {
		t.Fatal(err)
	}

	restored := boards.boards[b.ID]
	if string(restored.Molecular.Recommendations) != `[{"drug":"Dabrafenib"}]` {
		t.Errorf("recommendations = %s, want original payload", restored.Molecular.Recommendations)
	}
	// The parent columns keep the later update.
	if !restored.Date.Equal(date(2023, time.October, 1)) {
		t.Errorf("board date = %v, want 2023-10-01", restored.Date)
	}
}

func TestRevertMolecularEventRejectsUnspecifiedParent(t *testing.T) {
	svc, _, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	b := &TumorBoard{CaseID: caseID, Date: date(2023, time.May, 2), Category: CategoryUnspecified}
	if err := svc.CreateTumorBoard(ctx, b); err != nil {
		t.Fatal(err)
	}
	reverter := NewReverter(svc)
	_, _, err := reverter.Revert(ctx, &history.Event{
		EntityKind: MolecularChildKind,
		EntityID:   b.ID,
		Snapshot:   json.RawMessage(`{"reviewedVariantIds":[]}`),
	})
	if err != history.ErrNotFound {
		t.Fatalf("got %v, want %v", err, history.ErrNotFound)
	}
}

func TestGetTumorBoardAnonymizesDate(t *testing.T) {
	svc, _, _, caseID := newTestService()
	ctx := authedContext("curator", 3)

	held := date(2023, time.September, 14)
	b := &TumorBoard{CaseID: caseID, Date: held, Category: CategoryUnspecified}
	if err := svc.CreateTumorBoard(ctx, b); err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetTumorBoard(ctx, b.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Date.Equal(held) {
		t.Error("anonymized date equals the held date")
	}
}
