package history

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for history events.
type Repository interface {
	Insert(ctx context.Context, event *Event) error
	Get(ctx context.Context, id int64) (*Event, error)
	ListByEntity(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*Event, int, error)
	List(ctx context.Context, limit, offset int) ([]*Event, int, error)
	Contributors(ctx context.Context, entityIDs []uuid.UUID) ([]string, error)
	CountByLabel(ctx context.Context, entityID uuid.UUID, label Label) (int, error)
	LastByLabel(ctx context.Context, entityID uuid.UUID, label Label) (*Event, error)
}
