package tumorboard

import (
	"context"

	"github.com/google/uuid"

	"github.com/onconova/onconova/pkg/pagination"
)

// Repository persists tumor boards with their molecular child rows.
type Repository interface {
	Create(ctx context.Context, b *TumorBoard) error
	GetByID(ctx context.Context, id uuid.UUID) (*TumorBoard, error)
	Update(ctx context.Context, b *TumorBoard) error
	// UpdateMolecular rewrites only the molecular child columns.
	UpdateMolecular(ctx context.Context, id uuid.UUID, details *MolecularDetails) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TumorBoard, int, error)
}
