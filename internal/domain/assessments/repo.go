package assessments

import (
	"context"

	"github.com/google/uuid"

	"github.com/onconova/onconova/pkg/pagination"
)

type AdverseEventRepository interface {
	Create(ctx context.Context, a *AdverseEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*AdverseEvent, error)
	Update(ctx context.Context, a *AdverseEvent) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*AdverseEvent, int, error)
}

type PerformanceStatusRepository interface {
	Create(ctx context.Context, p *PerformanceStatus) error
	GetByID(ctx context.Context, id uuid.UUID) (*PerformanceStatus, error)
	Update(ctx context.Context, p *PerformanceStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*PerformanceStatus, int, error)
}

type LifestyleRepository interface {
	Create(ctx context.Context, l *Lifestyle) error
	GetByID(ctx context.Context, id uuid.UUID) (*Lifestyle, error)
	Update(ctx context.Context, l *Lifestyle) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Lifestyle, int, error)
}

type FamilyHistoryRepository interface {
	Create(ctx context.Context, f *FamilyHistory) error
	GetByID(ctx context.Context, id uuid.UUID) (*FamilyHistory, error)
	Update(ctx context.Context, f *FamilyHistory) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*FamilyHistory, int, error)
}

type ComorbiditiesRepository interface {
	Create(ctx context.Context, c *Comorbidities) error
	GetByID(ctx context.Context, id uuid.UUID) (*Comorbidities, error)
	Update(ctx context.Context, c *Comorbidities) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Comorbidities, int, error)
}

type VitalsRepository interface {
	Create(ctx context.Context, v *Vitals) error
	GetByID(ctx context.Context, id uuid.UUID) (*Vitals, error)
	Update(ctx context.Context, v *Vitals) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Vitals, int, error)
}

type RiskAssessmentRepository interface {
	Create(ctx context.Context, r *RiskAssessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*RiskAssessment, error)
	Update(ctx context.Context, r *RiskAssessment) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*RiskAssessment, int, error)
}

type TumorMarkerRepository interface {
	Create(ctx context.Context, t *TumorMarker) error
	GetByID(ctx context.Context, id uuid.UUID) (*TumorMarker, error)
	Update(ctx context.Context, t *TumorMarker) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TumorMarker, int, error)
}
