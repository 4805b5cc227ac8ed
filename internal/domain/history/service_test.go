package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository for tests.
type memRepo struct {
	events []*Event
	nextID int64
}

func (m *memRepo) Insert(ctx context.Context, event *Event) error {
	m.nextID++
	event.ID = m.nextID
	stored := *event
	m.events = append(m.events, &stored)
	return nil
}

func (m *memRepo) Get(ctx context.Context, id int64) (*Event, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ListByEntity(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*Event, int, error) {
	var matched []*Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].EntityID == entityID {
			matched = append(matched, m.events[i])
		}
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *memRepo) List(ctx context.Context, limit, offset int) ([]*Event, int, error) {
	total := len(m.events)
	var out []*Event
	for i := len(m.events) - 1; i >= 0; i-- {
		out = append(out, m.events[i])
	}
	if offset > total {
		offset = total
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memRepo) Contributors(ctx context.Context, entityIDs []uuid.UUID) ([]string, error) {
	counts := map[string]int{}
	for _, e := range m.events {
		for _, id := range entityIDs {
			if e.EntityID == id {
				if username, ok := e.Context["username"].(string); ok && username != "" {
					counts[username]++
				}
			}
		}
	}
	var usernames []string
	for username := range counts {
		usernames = append(usernames, username)
	}
	return usernames, nil
}

func (m *memRepo) CountByLabel(ctx context.Context, entityID uuid.UUID, label Label) (int, error) {
	n := 0
	for _, e := range m.events {
		if e.EntityID == entityID && e.Label == label {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) LastByLabel(ctx context.Context, entityID uuid.UUID, label Label) (*Event, error) {
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].EntityID == entityID && m.events[i].Label == label {
			return m.events[i], nil
		}
	}
	return nil, ErrNotFound
}

type fakeReverter struct {
	called *Event
	id     uuid.UUID
}

func (f *fakeReverter) Revert(ctx context.Context, event *Event) (uuid.UUID, string, error) {
	f.called = event
	return f.id, "reverted entity", nil
}

func TestRecorderRecordWithDiff(t *testing.T) {
	repo := &memRepo{}
	rec := NewRecorder(repo)
	entityID := uuid.New()

	type row struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	ctx := WithContext(context.Background(), Context{"username": "curator"})

	if err := rec.Record(ctx, "widget", entityID, LabelCreate, row{"a", 1}, nil); err != nil {
		t.Fatalf("Record create: %v", err)
	}
	if err := rec.Record(ctx, "widget", entityID, LabelUpdate, row{"a", 2}, row{"a", 1}); err != nil {
		t.Fatalf("Record update: %v", err)
	}

	if len(repo.events) != 2 {
		t.Fatalf("got %d events, want 2", len(repo.events))
	}
	create, update := repo.events[0], repo.events[1]
	if create.Diff != nil {
		t.Errorf("create event must carry no diff")
	}
	if create.Context["username"] != "curator" {
		t.Errorf("context not propagated: %v", create.Context)
	}
	var diff map[string][2]any
	if err := json.Unmarshal(update.Diff, &diff); err != nil {
		t.Fatalf("diff unmarshal: %v", err)
	}
	if len(diff) != 1 {
		t.Errorf("diff = %v, want only the changed field", diff)
	}
	if change, ok := diff["count"]; !ok || change[0] != float64(1) || change[1] != float64(2) {
		t.Errorf("diff[count] = %v, want [1 2]", change)
	}
}

func TestServiceRevertDispatch(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)
	entityID := uuid.New()
	reverter := &fakeReverter{id: entityID}
	svc.RegisterReverter("staging", reverter)

	repo.Insert(context.Background(), &Event{
		EntityKind: "staging/tnm", EntityID: entityID, Label: LabelUpdate,
	})

	result, err := svc.Revert(context.Background(), entityID, 1)
	if err != nil {
		t.Fatalf("Revert error: %v", err)
	}
	if reverter.called == nil || reverter.called.EntityKind != "staging/tnm" {
		t.Errorf("reverter not dispatched via parent kind fallback")
	}
	if result.ID != entityID || result.Description != "reverted entity" {
		t.Errorf("result = %+v", result)
	}
}

func TestServiceRevertWrongEntity(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)
	svc.RegisterReverter("widget", &fakeReverter{})

	owner := uuid.New()
	repo.Insert(context.Background(), &Event{EntityKind: "widget", EntityID: owner, Label: LabelCreate})

	if _, err := svc.Revert(context.Background(), uuid.New(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign entity, got %v", err)
	}
}

func TestServiceRevertUnknownKind(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)
	entityID := uuid.New()
	repo.Insert(context.Background(), &Event{EntityKind: "ghost", EntityID: entityID, Label: LabelCreate})

	if _, err := svc.Revert(context.Background(), entityID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unregistered kind, got %v", err)
	}
}
