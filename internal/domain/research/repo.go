package research

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/rules"
	"github.com/onconova/onconova/pkg/pagination"
)

// ProjectRepository defines the persistence interface for projects.
type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, p pagination.Params) ([]*Project, int, error)
	TitleExists(ctx context.Context, title string, excludeID uuid.UUID) (bool, error)
}

// GrantRepository defines the persistence interface for data-manager
// grants.
type GrantRepository interface {
	Create(ctx context.Context, g *Grant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)
	Update(ctx context.Context, g *Grant) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProject(ctx context.Context, projectID uuid.UUID, p pagination.Params) ([]*Grant, int, error)
	HasActiveGrant(ctx context.Context, member string, at time.Time) (bool, error)
}

// CohortRepository defines the persistence interface for cohorts.
// SelectCaseIDs evaluates one compiled rule tree against the case
// graph.
type CohortRepository interface {
	Create(ctx context.Context, c *Cohort) error
	GetByID(ctx context.Context, id uuid.UUID) (*Cohort, error)
	Update(ctx context.Context, c *Cohort) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, p pagination.Params) ([]*Cohort, int, error)
	SelectCaseIDs(ctx context.Context, rule rules.Rule) ([]uuid.UUID, error)
}

// DatasetRepository defines the persistence interface for datasets.
type DatasetRepository interface {
	Create(ctx context.Context, d *Dataset) error
	GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error)
	Update(ctx context.Context, d *Dataset) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByProject(ctx context.Context, projectID uuid.UUID, p pagination.Params) ([]*Dataset, int, error)
}
