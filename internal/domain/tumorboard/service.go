package tumorboard

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
	pool     *pgxpool.Pool
	boards   Repository
	cases    CaseSource
	recorder *history.Recorder
	anon     *anonymize.Anonymizer
}

func NewService(pool *pgxpool.Pool, boards Repository, cases CaseSource, events history.Repository, anon *anonymize.Anonymizer) *Service {
	return &Service{
		pool:     pool,
		boards:   boards,
		cases:    cases,
		recorder: history.NewRecorder(events),
		anon:     anon,
	}
}

// record writes the parent event, plus the molecular child event when
// the board carries one. Both share the parent entity id.
func (s *Service) record(ctx context.Context, label history.Label, current, previous *TumorBoard) error {
	if err := s.recorder.Record(ctx, EntityKind, current.ID, label, current, previous); err != nil {
		return err
	}
	if current.Category != CategoryMolecular {
		return nil
	}
	var prevChild any
	if previous != nil && previous.Molecular != nil {
		prevChild = previous.Molecular
	}
	return s.recorder.Record(ctx, MolecularChildKind, current.ID, label, current.Molecular, prevChild)
}

func (s *Service) CreateTumorBoard(ctx context.Context, b *TumorBoard) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, b.CaseID); err != nil {
		return err
	}
	b.CreatedBy = auth.UsernameFromContext(ctx)
	b.Description = b.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.boards.Create(ctx, b); err != nil {
			return err
		}
		return s.record(ctx, history.LabelCreate, b, nil)
	})
}

func (s *Service) GetTumorBoard(ctx context.Context, id uuid.UUID, anonymized bool) (*TumorBoard, error) {
	b, err := s.boards.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, b.CaseID)
		if err != nil {
			return nil, err
		}
		b.Anonymize(s.anon, key)
	}
	return b, nil
}

func (s *Service) ListTumorBoards(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TumorBoard, int, error) {
	boards, total, err := s.boards.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(boards) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, b := range boards {
			b.Anonymize(s.anon, key)
		}
	}
	return boards, total, nil
}

// UpdateTumorBoard rewrites a board in place. The discriminator is
// immutable after creation.
func (s *Service) UpdateTumorBoard(ctx context.Context, b *TumorBoard) error {
	previous, err := s.boards.GetByID(ctx, b.ID)
	if err != nil {
		return err
	}
	if b.Category != previous.Category {
		return fmt.Errorf("%w: stored category is %s", ErrCategoryMismatch, previous.Category)
	}
	b.CaseID = previous.CaseID
	b.CreatedBy = previous.CreatedBy
	b.CreatedAt = previous.CreatedAt
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	b.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	b.Description = b.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.boards.Update(ctx, b); err != nil {
			return err
		}
		return s.record(ctx, history.LabelUpdate, b, previous)
	})
}

func (s *Service) DeleteTumorBoard(ctx context.Context, id uuid.UUID) error {
	previous, err := s.boards.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.boards.Delete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, EntityKind, id, history.LabelDelete, previous, nil)
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

// Reverter restores tumor boards from event snapshots. Parent events
// carry the whole aggregate; molecular events restore only the child
// columns of a still-molecular parent.
type Reverter struct {
	svc *Service
}

func NewReverter(svc *Service) *Reverter {
	return &Reverter{svc: svc}
}

func (r *Reverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	switch event.EntityKind {
	case EntityKind:
		return r.revertAggregate(ctx, event)
	case MolecularChildKind:
		return r.revertMolecular(ctx, event)
	}
	return uuid.Nil, "", history.ErrNotFound
}

func (r *Reverter) revertAggregate(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot TumorBoard
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("tumor board snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.boards.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	if snapshot.Category != previous.Category {
		return uuid.Nil, "", fmt.Errorf("%w: stored category is %s", ErrCategoryMismatch, previous.Category)
	}
	snapshot.CaseID = previous.CaseID
	snapshot.CreatedBy = previous.CreatedBy
	snapshot.CreatedAt = previous.CreatedAt
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	snapshot.Description = snapshot.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.boards.Update(ctx, &snapshot); err != nil {
			return err
		}
		return r.svc.record(ctx, history.LabelUpdate, &snapshot, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}

func (r *Reverter) revertMolecular(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	previous, err := r.svc.boards.GetByID(ctx, event.EntityID)
	if err != nil {
		return uuid.Nil, "", err
	}
	if previous.Category != CategoryMolecular {
		return uuid.Nil, "", history.ErrNotFound
	}
	var details MolecularDetails
	if err := json.Unmarshal(event.Snapshot, &details); err != nil {
		return uuid.Nil, "", fmt.Errorf("tumor board snapshot: %w", err)
	}
	current := *previous
	current.Molecular = &details
	current.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	current.Description = current.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.boards.UpdateMolecular(ctx, current.ID, current.Molecular); err != nil {
			return err
		}
		return r.svc.record(ctx, history.LabelUpdate, &current, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return current.ID, current.Describe(), nil
}
