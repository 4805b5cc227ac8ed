package genomics

import (
	"context"

	"github.com/google/uuid"

	"github.com/onconova/onconova/pkg/pagination"
)

// VariantRepository defines the persistence interface for genomic
// variants.
type VariantRepository interface {
	Create(ctx context.Context, v *Variant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Variant, error)
	Update(ctx context.Context, v *Variant) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Variant, int, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Variant, error)
}

// SignatureRepository defines the persistence interface for genomic
// signatures. The measured result lives in a child table keyed by the
// parent id.
type SignatureRepository interface {
	Create(ctx context.Context, s *Signature) error
	GetByID(ctx context.Context, id uuid.UUID) (*Signature, error)
	Update(ctx context.Context, s *Signature) error
	UpdateResult(ctx context.Context, id uuid.UUID, result *SignatureValue) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Signature, int, error)
}
