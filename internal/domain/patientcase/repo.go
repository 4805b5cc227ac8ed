package patientcase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/pkg/pagination"
)

// CaseFilters narrow case listings.
type CaseFilters struct {
	Pseudoidentifier string
	ClinicalCenter   string
	VitalStatus      string
}

// Repository defines the persistence interface for patient cases.
type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	GetByPseudoidentifier(ctx context.Context, pseudoidentifier string) (*Case, error)
	Update(ctx context.Context, c *Case) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filters CaseFilters, p pagination.Params) ([]*Case, int, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Case, error)
	PseudoidentifierExists(ctx context.Context, pseudoidentifier string) (bool, error)
	ClinicalIdentifierExists(ctx context.Context, center, identifier string, excludeID uuid.UUID) (bool, error)
	CategoryCompletion(ctx context.Context, caseID uuid.UUID) (map[string]bool, error)
	ChildEntityIDs(ctx context.Context, caseID uuid.UUID) ([]uuid.UUID, error)
	EarliestAssertionDate(ctx context.Context, caseID uuid.UUID) (*time.Time, error)
}

// EntityRepository defines the persistence interface for neoplastic
// entities.
type EntityRepository interface {
	Create(ctx context.Context, e *NeoplasticEntity) error
	GetByID(ctx context.Context, id uuid.UUID) (*NeoplasticEntity, error)
	Update(ctx context.Context, e *NeoplasticEntity) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*NeoplasticEntity, int, error)
}
