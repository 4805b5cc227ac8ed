package history

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Recorder appends history events. Callers invoke it inside the same
// transaction as the mutation so the write and its event are atomic.
type Recorder struct {
	repo Repository
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Record appends one event for the given entity. The snapshot is the
// entity state after the mutation; previous may be nil (create,
// delete) and otherwise yields a field-level diff.
func (r *Recorder) Record(ctx context.Context, kind string, entityID uuid.UUID, label Label, snapshot, previous any) error {
	event := &Event{
		EntityKind: kind,
		EntityID:   entityID,
		Label:      label,
		Context:    FromContext(ctx),
	}
	if snapshot != nil {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("history snapshot: %w", err)
		}
		event.Snapshot = data
	}
	if previous != nil && snapshot != nil {
		diff, err := Diff(previous, snapshot)
		if err != nil {
			return fmt.Errorf("history diff: %w", err)
		}
		event.Diff = diff
	}
	return r.repo.Insert(ctx, event)
}

// RecordWith appends an event whose context carries extra keys on top
// of the request context; export and import use it to tag cohort,
// version and checksum.
func (r *Recorder) RecordWith(ctx context.Context, kind string, entityID uuid.UUID, label Label, snapshot any, extra Context) error {
	merged := Context{}
	for k, v := range FromContext(ctx) {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	event := &Event{
		EntityKind: kind,
		EntityID:   entityID,
		Label:      label,
		Context:    merged,
	}
	if snapshot != nil {
		data, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("history snapshot: %w", err)
		}
		event.Snapshot = data
	}
	return r.repo.Insert(ctx, event)
}

// Diff computes a shallow field diff between two entity states as
// {field: [old, new]} over their JSON forms.
func Diff(previous, current any) (json.RawMessage, error) {
	prev, err := toMap(previous)
	if err != nil {
		return nil, err
	}
	curr, err := toMap(current)
	if err != nil {
		return nil, err
	}
	changes := map[string][2]any{}
	for key, newVal := range curr {
		oldVal, ok := prev[key]
		if !ok || !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = [2]any{oldVal, newVal}
		}
	}
	for key, oldVal := range prev {
		if _, ok := curr[key]; !ok {
			changes[key] = [2]any{oldVal, nil}
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return json.Marshal(changes)
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
