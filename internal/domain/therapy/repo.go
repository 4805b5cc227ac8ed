package therapy

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/pkg/pagination"
)

// SystemicTherapyRepository persists systemic therapies with their
// medication child rows.
type SystemicTherapyRepository interface {
	Create(ctx context.Context, t *SystemicTherapy) error
	GetByID(ctx context.Context, id uuid.UUID) (*SystemicTherapy, error)
	Update(ctx context.Context, t *SystemicTherapy) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*SystemicTherapy, int, error)
	ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*SystemicTherapy, error)
	SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error
}

type SurgeryRepository interface {
	Create(ctx context.Context, s *Surgery) error
	GetByID(ctx context.Context, id uuid.UUID) (*Surgery, error)
	Update(ctx context.Context, s *Surgery) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Surgery, int, error)
	ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*Surgery, error)
	SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error
}

type RadiotherapyRepository interface {
	Create(ctx context.Context, r *Radiotherapy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Radiotherapy, error)
	Update(ctx context.Context, r *Radiotherapy) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Radiotherapy, int, error)
	ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*Radiotherapy, error)
	SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error
}

type ResponseRepository interface {
	Create(ctx context.Context, r *TreatmentResponse) error
	GetByID(ctx context.Context, id uuid.UUID) (*TreatmentResponse, error)
	Update(ctx context.Context, r *TreatmentResponse) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TreatmentResponse, int, error)
	ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*TreatmentResponse, error)
}

// LineRepository persists derived therapy lines. Lines are keyed by
// (case, intent, ordinal) during reassignment.
type LineRepository interface {
	Create(ctx context.Context, l *TherapyLine) error
	GetByID(ctx context.Context, id uuid.UUID) (*TherapyLine, error)
	UpdatePeriod(ctx context.Context, id uuid.UUID, start, end *time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TherapyLine, int, error)
	ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*TherapyLine, error)
}
