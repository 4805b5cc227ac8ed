package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Reverter restores an entity to the state captured by an event and
// emits the resulting update event. It returns the entity id and its
// human-readable description after reversion.
type Reverter interface {
	Revert(ctx context.Context, event *Event) (uuid.UUID, string, error)
}

// Service answers history queries and dispatches reversions to the
// reverter registered for the event's entity kind.
type Service struct {
	repo      Repository
	reverters map[string]Reverter
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, reverters: map[string]Reverter{}}
}

// RegisterReverter binds a reverter to an entity kind. Polymorphic
// kinds register their parent kind once; child events ("staging/tnm")
// fall back to the parent's reverter ("staging").
func (s *Service) RegisterReverter(kind string, reverter Reverter) {
	s.reverters[kind] = reverter
}

func (s *Service) ListByEntity(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*Event, int, error) {
	return s.repo.ListByEntity(ctx, entityID, limit, offset)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Event, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// GetForEntity loads one event and checks it belongs to the entity.
func (s *Service) GetForEntity(ctx context.Context, entityID uuid.UUID, eventID int64) (*Event, error) {
	event, err := s.repo.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.EntityID != entityID {
		return nil, ErrNotFound
	}
	return event, nil
}

// RevertResult is the response of a reversion.
type RevertResult struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
}

// Revert restores the entity addressed by the event. The reverter is
// resolved by the event's exact kind first, then by its parent kind.
func (s *Service) Revert(ctx context.Context, entityID uuid.UUID, eventID int64) (*RevertResult, error) {
	event, err := s.GetForEntity(ctx, entityID, eventID)
	if err != nil {
		return nil, err
	}
	reverter, ok := s.reverters[event.EntityKind]
	if !ok {
		if parent, _, found := strings.Cut(event.EntityKind, "/"); found {
			reverter, ok = s.reverters[parent]
		}
	}
	if !ok {
		return nil, fmt.Errorf("no reverter for entity kind %q: %w", event.EntityKind, ErrNotFound)
	}
	id, description, err := reverter.Revert(ctx, event)
	if err != nil {
		return nil, err
	}
	return &RevertResult{ID: id, Description: description}, nil
}
