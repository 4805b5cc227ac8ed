package interop

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/assessments"
	"github.com/onconova/onconova/internal/domain/genomics"
	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/domain/staging"
	"github.com/onconova/onconova/internal/domain/therapy"
	"github.com/onconova/onconova/internal/domain/tumorboard"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

// exportPageSize bounds the per-entity listing during export. Bundles
// are whole-case reads, not paginated views.
const exportPageSize = 10000

// Repos collects the per-entity repositories a bundle spans.
type Repos struct {
	Cases              patientcase.Repository
	Entities           patientcase.EntityRepository
	Stagings           staging.Repository
	Variants           genomics.VariantRepository
	Signatures         genomics.SignatureRepository
	Therapies          therapy.SystemicTherapyRepository
	Surgeries          therapy.SurgeryRepository
	Radiotherapies     therapy.RadiotherapyRepository
	Responses          therapy.ResponseRepository
	AdverseEvents      assessments.AdverseEventRepository
	PerformanceStatus  assessments.PerformanceStatusRepository
	Lifestyles         assessments.LifestyleRepository
	FamilyHistories    assessments.FamilyHistoryRepository
	Comorbidities      assessments.ComorbiditiesRepository
	Vitals             assessments.VitalsRepository
	RiskAssessments    assessments.RiskAssessmentRepository
	TumorMarkers       assessments.TumorMarkerRepository
	Boards             tumorboard.Repository
}

// PseudoGenerator mints unused pseudoidentifiers; the patient-case
// service provides it.
type PseudoGenerator interface {
	GeneratePseudoidentifier(ctx context.Context, clinicalCenter string) (string, error)
}

// LineAssigner recomputes the derived therapy lines of a case; the
// therapy service provides it.
type LineAssigner interface {
	AssignTherapyLines(ctx context.Context, caseID uuid.UUID) error
}

type Service struct {
	pool     *pgxpool.Pool
	repos    Repos
	pseudo   PseudoGenerator
	lines    LineAssigner
	recorder *history.Recorder
}

func NewService(pool *pgxpool.Pool, repos Repos, pseudo PseudoGenerator,
	lines LineAssigner, events history.Repository) *Service {
	return &Service{
		pool:     pool,
		repos:    repos,
		pseudo:   pseudo,
		lines:    lines,
		recorder: history.NewRecorder(events),
	}
}

// ExportBundle builds the full bundle of a case and records an export
// event carrying the exporter, bundle version and content checksum.
func (s *Service) ExportBundle(ctx context.Context, caseID uuid.UUID) (*Bundle, error) {
	c, err := s.repos.Cases.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Version: BundleVersion, Case: c}

	p := pagination.Params{Limit: exportPageSize}
	if bundle.NeoplasticEntities, _, err = s.repos.Entities.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.Stagings, _, err = s.repos.Stagings.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.GenomicVariants, _, err = s.repos.Variants.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.GenomicSignatures, _, err = s.repos.Signatures.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.SystemicTherapies, err = s.repos.Therapies.ListAllByCase(ctx, caseID); err != nil {
		return nil, err
	}
	if bundle.Surgeries, err = s.repos.Surgeries.ListAllByCase(ctx, caseID); err != nil {
		return nil, err
	}
	if bundle.Radiotherapies, err = s.repos.Radiotherapies.ListAllByCase(ctx, caseID); err != nil {
		return nil, err
	}
	if bundle.TreatmentResponses, err = s.repos.Responses.ListAllByCase(ctx, caseID); err != nil {
		return nil, err
	}
	if bundle.AdverseEvents, _, err = s.repos.AdverseEvents.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.PerformanceStatus, _, err = s.repos.PerformanceStatus.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.Lifestyles, _, err = s.repos.Lifestyles.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.FamilyHistories, _, err = s.repos.FamilyHistories.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.Comorbidities, _, err = s.repos.Comorbidities.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.Vitals, _, err = s.repos.Vitals.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.RiskAssessments, _, err = s.repos.RiskAssessments.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.TumorMarkers, _, err = s.repos.TumorMarkers.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.TumorBoards, _, err = s.repos.Boards.ListByCase(ctx, caseID, p); err != nil {
		return nil, err
	}
	if bundle.Completion, err = s.repos.Cases.CategoryCompletion(ctx, caseID); err != nil {
		return nil, err
	}

	checksum, err := bundle.Checksum()
	if err != nil {
		return nil, err
	}
	extra := history.Context{
		"exporter": auth.UsernameFromContext(ctx),
		"version":  BundleVersion,
		"checksum": checksum,
	}
	if err := s.recorder.RecordWith(ctx, patientcase.EntityKind, caseID, history.LabelExport, c, extra); err != nil {
		return nil, err
	}
	return bundle, nil
}

// ImportBundle inserts the bundle's case and children in dependency
// order. Ids are never reused; every inserted row gets a fresh one and
// references inside the bundle are remapped. Therapy lines are
// recomputed from the imported treatments, never taken from the
// bundle.
func (s *Service) ImportBundle(ctx context.Context, b *Bundle, conflict string) (*patientcase.Case, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}
	switch conflict {
	case "", ConflictOverwrite, ConflictReassign:
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", conflict)
	}

	imported := *b.Case
	imported.ID = uuid.Nil
	imported.Age = nil
	imported.AgeAtDiagnosis = nil
	imported.Contributors = nil
	imported.CompletionRate = 0
	imported.CreatedBy = auth.UsernameFromContext(ctx)
	imported.UpdatedBy = []string{}

	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		existing, err := s.repos.Cases.GetByPseudoidentifier(ctx, imported.Pseudoidentifier)
		if err != nil && !errors.Is(err, patientcase.ErrNotFound) {
			return err
		}
		if existing != nil {
			switch conflict {
			case ConflictOverwrite:
				if err := s.repos.Cases.Delete(ctx, existing.ID); err != nil {
					return err
				}
				if err := s.recorder.Record(ctx, patientcase.EntityKind, existing.ID, history.LabelDelete, existing, nil); err != nil {
					return err
				}
			case ConflictReassign:
				pseudo, err := s.pseudo.GeneratePseudoidentifier(ctx, imported.ClinicalCenter)
				if err != nil {
					return err
				}
				imported.Pseudoidentifier = pseudo
				// The retained original keeps the clinical identifier.
				imported.ClinicalIdentifier = nil
			default:
				return fmt.Errorf("case %s already exists: %w", imported.Pseudoidentifier, ErrConflict)
			}
		}
		if imported.ClinicalIdentifier != nil {
			taken, err := s.repos.Cases.ClinicalIdentifierExists(ctx,
				imported.ClinicalCenter, *imported.ClinicalIdentifier, uuid.Nil)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("clinical identifier %s already in use at %s: %w",
					*imported.ClinicalIdentifier, imported.ClinicalCenter, ErrConflict)
			}
		}
		imported.Description = imported.Describe()
		if err := imported.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidBundle, err)
		}
		if err := s.repos.Cases.Create(ctx, &imported); err != nil {
			return err
		}

		entityIDs, err := s.importEntities(ctx, b, imported.ID)
		if err != nil {
			return err
		}
		variantIDs, err := s.importGenomics(ctx, b, imported.ID)
		if err != nil {
			return err
		}
		if err := s.importTreatments(ctx, b, imported.ID, entityIDs); err != nil {
			return err
		}
		if err := s.importAssessments(ctx, b, imported.ID); err != nil {
			return err
		}
		if err := s.importBoards(ctx, b, imported.ID, variantIDs); err != nil {
			return err
		}
		if err := s.lines.AssignTherapyLines(ctx, imported.ID); err != nil {
			return err
		}
		extra := history.Context{"version": b.Version}
		return s.recorder.RecordWith(ctx, patientcase.EntityKind, imported.ID, history.LabelImport, &imported, extra)
	})
	if err != nil {
		return nil, err
	}
	return &imported, nil
}

// importEntities inserts the neoplastic entities and returns the
// old-to-new id map. Relations between entities are rewired in a
// second pass so ordering inside the bundle does not matter.
func (s *Service) importEntities(ctx context.Context, b *Bundle, caseID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	username := auth.UsernameFromContext(ctx)
	ids := make(map[uuid.UUID]uuid.UUID, len(b.NeoplasticEntities))
	inserted := make([]*patientcase.NeoplasticEntity, 0, len(b.NeoplasticEntities))
	for _, src := range b.NeoplasticEntities {
		e := *src
		oldID := e.ID
		e.ID = uuid.Nil
		e.CaseID = caseID
		e.CreatedBy = username
		e.UpdatedBy = []string{}
		related := e.RelatedPrimaryID
		e.RelatedPrimaryID = nil
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: entity %s: %v", ErrInvalidBundle, oldID, err)
		}
		e.Description = e.Describe()
		if err := s.repos.Entities.Create(ctx, &e); err != nil {
			return nil, err
		}
		ids[oldID] = e.ID
		if related != nil {
			e.RelatedPrimaryID = related
			inserted = append(inserted, &e)
		}
	}
	for _, e := range inserted {
		mapped, ok := ids[*e.RelatedPrimaryID]
		if !ok {
			return nil, fmt.Errorf("%w: entity relation targets an id outside the bundle", ErrInvalidBundle)
		}
		e.RelatedPrimaryID = &mapped
		if err := s.repos.Entities.Update(ctx, e); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *Service) importGenomics(ctx context.Context, b *Bundle, caseID uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	username := auth.UsernameFromContext(ctx)
	for _, src := range b.Stagings {
		st := *src
		st.ID = uuid.Nil
		st.CaseID = caseID
		st.CreatedBy = username
		st.UpdatedBy = []string{}
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("%w: staging: %v", ErrInvalidBundle, err)
		}
		st.Description = st.Describe()
		if err := s.repos.Stagings.Create(ctx, &st); err != nil {
			return nil, err
		}
	}
	ids := make(map[uuid.UUID]uuid.UUID, len(b.GenomicVariants))
	for _, src := range b.GenomicVariants {
		v := *src
		oldID := v.ID
		v.ID = uuid.Nil
		v.CaseID = caseID
		v.CreatedBy = username
		v.UpdatedBy = []string{}
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: variant %s: %v", ErrInvalidBundle, oldID, err)
		}
		v.Description = v.Describe()
		if err := s.repos.Variants.Create(ctx, &v); err != nil {
			return nil, err
		}
		ids[oldID] = v.ID
	}
	for _, src := range b.GenomicSignatures {
		sig := *src
		sig.ID = uuid.Nil
		sig.CaseID = caseID
		sig.CreatedBy = username
		sig.UpdatedBy = []string{}
		if err := sig.Validate(); err != nil {
			return nil, fmt.Errorf("%w: signature: %v", ErrInvalidBundle, err)
		}
		sig.Description = sig.Describe()
		if err := s.repos.Signatures.Create(ctx, &sig); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *Service) importTreatments(ctx context.Context, b *Bundle, caseID uuid.UUID, entityIDs map[uuid.UUID]uuid.UUID) error {
	username := auth.UsernameFromContext(ctx)
	for _, src := range b.SystemicTherapies {
		t := *src
		t.ID = uuid.Nil
		t.CaseID = caseID
		t.TherapyLineID = nil
		t.TargetedEntityIDs = remapIDs(t.TargetedEntityIDs, entityIDs)
		meds := make([]therapy.Medication, len(t.Medications))
		copy(meds, t.Medications)
		for i := range meds {
			meds[i].ID = uuid.Nil
		}
		t.Medications = meds
		t.CreatedBy = username
		t.UpdatedBy = []string{}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: systemic therapy: %v", ErrInvalidBundle, err)
		}
		t.Description = t.Describe()
		if err := s.repos.Therapies.Create(ctx, &t); err != nil {
			return err
		}
	}
	for _, src := range b.Surgeries {
		sg := *src
		sg.ID = uuid.Nil
		sg.CaseID = caseID
		sg.TherapyLineID = nil
		sg.CreatedBy = username
		sg.UpdatedBy = []string{}
		if err := sg.Validate(); err != nil {
			return fmt.Errorf("%w: surgery: %v", ErrInvalidBundle, err)
		}
		sg.Description = sg.Describe()
		if err := s.repos.Surgeries.Create(ctx, &sg); err != nil {
			return err
		}
	}
	for _, src := range b.Radiotherapies {
		rt := *src
		rt.ID = uuid.Nil
		rt.CaseID = caseID
		rt.TherapyLineID = nil
		rt.TargetedEntityIDs = remapIDs(rt.TargetedEntityIDs, entityIDs)
		rt.CreatedBy = username
		rt.UpdatedBy = []string{}
		if err := rt.Validate(); err != nil {
			return fmt.Errorf("%w: radiotherapy: %v", ErrInvalidBundle, err)
		}
		rt.Description = rt.Describe()
		if err := s.repos.Radiotherapies.Create(ctx, &rt); err != nil {
			return err
		}
	}
	for _, src := range b.TreatmentResponses {
		r := *src
		r.ID = uuid.Nil
		r.CaseID = caseID
		r.AssessedEntityIDs = remapIDs(r.AssessedEntityIDs, entityIDs)
		r.CreatedBy = username
		r.UpdatedBy = []string{}
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%w: treatment response: %v", ErrInvalidBundle, err)
		}
		r.Description = r.Describe()
		if err := s.repos.Responses.Create(ctx, &r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) importAssessments(ctx context.Context, b *Bundle, caseID uuid.UUID) error {
	username := auth.UsernameFromContext(ctx)
	for _, src := range b.AdverseEvents {
		a := *src
		a.ID = uuid.Nil
		a.CaseID = caseID
		a.CreatedBy = username
		a.UpdatedBy = []string{}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: adverse event: %v", ErrInvalidBundle, err)
		}
		a.Description = a.Describe()
		if err := s.repos.AdverseEvents.Create(ctx, &a); err != nil {
			return err
		}
	}
	for _, src := range b.PerformanceStatus {
		ps := *src
		ps.ID = uuid.Nil
		ps.CaseID = caseID
		ps.CreatedBy = username
		ps.UpdatedBy = []string{}
		if err := ps.Validate(); err != nil {
			return fmt.Errorf("%w: performance status: %v", ErrInvalidBundle, err)
		}
		ps.Description = ps.Describe()
		if err := s.repos.PerformanceStatus.Create(ctx, &ps); err != nil {
			return err
		}
	}
	for _, src := range b.Lifestyles {
		l := *src
		l.ID = uuid.Nil
		l.CaseID = caseID
		l.CreatedBy = username
		l.UpdatedBy = []string{}
		if err := l.Validate(); err != nil {
			return fmt.Errorf("%w: lifestyle: %v", ErrInvalidBundle, err)
		}
		l.Description = l.Describe()
		if err := s.repos.Lifestyles.Create(ctx, &l); err != nil {
			return err
		}
	}
	for _, src := range b.FamilyHistories {
		f := *src
		f.ID = uuid.Nil
		f.CaseID = caseID
		f.CreatedBy = username
		f.UpdatedBy = []string{}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%w: family history: %v", ErrInvalidBundle, err)
		}
		f.Description = f.Describe()
		if err := s.repos.FamilyHistories.Create(ctx, &f); err != nil {
			return err
		}
	}
	for _, src := range b.Comorbidities {
		cm := *src
		cm.ID = uuid.Nil
		cm.CaseID = caseID
		cm.CreatedBy = username
		cm.UpdatedBy = []string{}
		if err := cm.Validate(); err != nil {
			return fmt.Errorf("%w: comorbidities: %v", ErrInvalidBundle, err)
		}
		cm.Description = cm.Describe()
		if err := s.repos.Comorbidities.Create(ctx, &cm); err != nil {
			return err
		}
	}
	for _, src := range b.Vitals {
		v := *src
		v.ID = uuid.Nil
		v.CaseID = caseID
		v.CreatedBy = username
		v.UpdatedBy = []string{}
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: vitals: %v", ErrInvalidBundle, err)
		}
		v.Description = v.Describe()
		if err := s.repos.Vitals.Create(ctx, &v); err != nil {
			return err
		}
	}
	for _, src := range b.RiskAssessments {
		ra := *src
		ra.ID = uuid.Nil
		ra.CaseID = caseID
		ra.CreatedBy = username
		ra.UpdatedBy = []string{}
		if err := ra.Validate(); err != nil {
			return fmt.Errorf("%w: risk assessment: %v", ErrInvalidBundle, err)
		}
		ra.Description = ra.Describe()
		if err := s.repos.RiskAssessments.Create(ctx, &ra); err != nil {
			return err
		}
	}
	for _, src := range b.TumorMarkers {
		tm := *src
		tm.ID = uuid.Nil
		tm.CaseID = caseID
		tm.CreatedBy = username
		tm.UpdatedBy = []string{}
		if err := tm.Validate(); err != nil {
			return fmt.Errorf("%w: tumor marker: %v", ErrInvalidBundle, err)
		}
		tm.Description = tm.Describe()
		if err := s.repos.TumorMarkers.Create(ctx, &tm); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) importBoards(ctx context.Context, b *Bundle, caseID uuid.UUID, variantIDs map[uuid.UUID]uuid.UUID) error {
	username := auth.UsernameFromContext(ctx)
	for _, src := range b.TumorBoards {
		board := *src
		board.ID = uuid.Nil
		board.CaseID = caseID
		board.CreatedBy = username
		board.UpdatedBy = []string{}
		if board.Molecular != nil {
			molecular := *board.Molecular
			molecular.ReviewedVariantIDs = remapIDs(molecular.ReviewedVariantIDs, variantIDs)
			board.Molecular = &molecular
		}
		if err := board.Validate(); err != nil {
			return fmt.Errorf("%w: tumor board: %v", ErrInvalidBundle, err)
		}
		board.Description = board.Describe()
		if err := s.repos.Boards.Create(ctx, &board); err != nil {
			return err
		}
	}
	return nil
}

// remapIDs translates bundle-local ids and drops references that do
// not resolve inside the bundle.
func remapIDs(ids []uuid.UUID, mapping map[uuid.UUID]uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return ids
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if mapped, ok := mapping[id]; ok {
			out = append(out, mapped)
		}
	}
	return out
}
