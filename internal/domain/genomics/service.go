package genomics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/history"
	"github.com/onconova/onconova/internal/domain/patientcase"
	"github.com/onconova/onconova/internal/platform/anonymize"
	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

// CaseSource resolves the parent case for validation and for the
// per-case anonymization key.
type CaseSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*patientcase.Case, error)
}

type Service struct {
	pool       *pgxpool.Pool
	variants   VariantRepository
	signatures SignatureRepository
	cases      CaseSource
	recorder   *history.Recorder
	anon       *anonymize.Anonymizer
}

func NewService(pool *pgxpool.Pool, variants VariantRepository, signatures SignatureRepository, cases CaseSource, events history.Repository, anon *anonymize.Anonymizer) *Service {
	return &Service{
		pool:       pool,
		variants:   variants,
		signatures: signatures,
		cases:      cases,
		recorder:   history.NewRecorder(events),
		anon:       anon,
	}
}

// -- Variants --

func (s *Service) CreateVariant(ctx context.Context, v *Variant) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, v.CaseID); err != nil {
		return err
	}
	v.CreatedBy = auth.UsernameFromContext(ctx)
	v.Description = v.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.variants.Create(ctx, v); err != nil {
			return err
		}
		return s.recorder.Record(ctx, VariantKind, v.ID, history.LabelCreate, v, nil)
	})
}

func (s *Service) GetVariant(ctx context.Context, id uuid.UUID, anonymized bool) (*Variant, error) {
	v, err := s.variants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, v.CaseID)
		if err != nil {
			return nil, err
		}
		v.Anonymize(s.anon, key)
	}
	return v, nil
}

func (s *Service) ListVariants(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Variant, int, error) {
	variants, total, err := s.variants.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(variants) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, v := range variants {
			v.Anonymize(s.anon, key)
		}
	}
	return variants, total, nil
}

func (s *Service) UpdateVariant(ctx context.Context, v *Variant) error {
	previous, err := s.variants.GetByID(ctx, v.ID)
	if err != nil {
		return err
	}
	v.CaseID = previous.CaseID
	v.CreatedBy = previous.CreatedBy
	v.CreatedAt = previous.CreatedAt
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	v.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	v.Description = v.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.variants.Update(ctx, v); err != nil {
			return err
		}
		return s.recorder.Record(ctx, VariantKind, v.ID, history.LabelUpdate, v, previous)
	})
}

func (s *Service) DeleteVariant(ctx context.Context, id uuid.UUID) error {
	previous, err := s.variants.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.variants.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, VariantKind, id, history.LabelDelete, previous, nil)
	})
}

// -- Signatures --

// recordSignature writes the parent event and the result event for a
// mutation. Both share the parent entity id.
func (s *Service) recordSignature(ctx context.Context, label history.Label, current, previous *Signature) error {
	if err := s.recorder.Record(ctx, SignatureKind, current.ID, label, current, previous); err != nil {
		return err
	}
	var prevResult any
	if previous != nil {
		prevResult = previous.Result
	}
	return s.recorder.Record(ctx, SignatureValueKind, current.ID, label, current.Result, prevResult)
}

func (s *Service) CreateSignature(ctx context.Context, sig *Signature) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, sig.CaseID); err != nil {
		return err
	}
	sig.CreatedBy = auth.UsernameFromContext(ctx)
	sig.Description = sig.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.signatures.Create(ctx, sig); err != nil {
			return err
		}
		return s.recordSignature(ctx, history.LabelCreate, sig, nil)
	})
}

func (s *Service) GetSignature(ctx context.Context, id uuid.UUID, anonymized bool) (*Signature, error) {
	sig, err := s.signatures.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, sig.CaseID)
		if err != nil {
			return nil, err
		}
		sig.Anonymize(s.anon, key)
	}
	return sig, nil
}

func (s *Service) ListSignatures(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Signature, int, error) {
	signatures, total, err := s.signatures.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(signatures) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, sig := range signatures {
			sig.Anonymize(s.anon, key)
		}
	}
	return signatures, total, nil
}

// UpdateSignature rewrites a signature in place. The category is
// immutable after creation.
func (s *Service) UpdateSignature(ctx context.Context, sig *Signature) error {
	previous, err := s.signatures.GetByID(ctx, sig.ID)
	if err != nil {
		return err
	}
	if sig.Category != previous.Category {
		return fmt.Errorf("%w: stored category is %s", ErrCategoryMismatch, previous.Category)
	}
	sig.CaseID = previous.CaseID
	sig.CreatedBy = previous.CreatedBy
	sig.CreatedAt = previous.CreatedAt
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	sig.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	sig.Description = sig.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.signatures.Update(ctx, sig); err != nil {
			return err
		}
		return s.recordSignature(ctx, history.LabelUpdate, sig, previous)
	})
}

func (s *Service) DeleteSignature(ctx context.Context, id uuid.UUID) error {
	previous, err := s.signatures.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.signatures.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, SignatureKind, id, history.LabelDelete, previous, nil)
	})
}

func (s *Service) caseKey(ctx context.Context, caseID uuid.UUID) (string, error) {
	c, err := s.cases.GetByID(ctx, caseID)
	if err != nil {
		return "", err
	}
	return c.Pseudoidentifier, nil
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

// -- Reversion --

// VariantReverter restores a variant from an event snapshot.
type VariantReverter struct {
	svc *Service
}

func NewVariantReverter(svc *Service) *VariantReverter {
	return &VariantReverter{svc: svc}
}

func (r *VariantReverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot Variant
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("variant snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.variants.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	snapshot.Description = snapshot.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.variants.Update(ctx, &snapshot); err != nil {
			return err
		}
		return r.svc.recorder.Record(ctx, VariantKind, snapshot.ID, history.LabelUpdate, &snapshot, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}

// SignatureReverter restores signatures from event snapshots. Parent
// events carry the whole aggregate; value events restore only the
// result columns.
type SignatureReverter struct {
	svc *Service
}

func NewSignatureReverter(svc *Service) *SignatureReverter {
	return &SignatureReverter{svc: svc}
}

func (r *SignatureReverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	if event.EntityKind == SignatureValueKind {
		return r.revertResult(ctx, event)
	}
	var snapshot Signature
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("signature snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.signatures.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	if snapshot.Category != previous.Category {
		return uuid.Nil, "", fmt.Errorf("%w: stored category is %s", ErrCategoryMismatch, previous.Category)
	}
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	snapshot.Description = snapshot.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.signatures.Update(ctx, &snapshot); err != nil {
			return err
		}
		return r.svc.recordSignature(ctx, history.LabelUpdate, &snapshot, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}

func (r *SignatureReverter) revertResult(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	previous, err := r.svc.signatures.GetByID(ctx, event.EntityID)
	if err != nil {
		return uuid.Nil, "", err
	}
	var result SignatureValue
	if err := json.Unmarshal(event.Snapshot, &result); err != nil {
		return uuid.Nil, "", fmt.Errorf("signature snapshot: %w", err)
	}
	current := *previous
	current.Result = &result
	current.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	current.Description = current.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.signatures.UpdateResult(ctx, current.ID, current.Result); err != nil {
			return err
		}
		return r.svc.recordSignature(ctx, history.LabelUpdate, &current, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return current.ID, current.Describe(), nil
}
