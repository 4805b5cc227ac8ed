package staging

import (
	"context"

	"github.com/google/uuid"

	"github.com/onconova/onconova/pkg/pagination"
)

// Repository defines the persistence interface for stagings. Child
// rows live in per-variant tables keyed by the parent id; the
// repository resolves the concrete variant on read.
type Repository interface {
	Create(ctx context.Context, s *Staging) error
	GetByID(ctx context.Context, id uuid.UUID) (*Staging, error)
	Update(ctx context.Context, s *Staging) error
	UpdateChild(ctx context.Context, id uuid.UUID, domain Domain, child any) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Staging, int, error)
}
