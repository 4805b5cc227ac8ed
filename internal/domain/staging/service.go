package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

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
	stagings Repository
	cases    CaseSource
	recorder *history.Recorder
	anon     *anonymize.Anonymizer
}

func NewService(pool *pgxpool.Pool, stagings Repository, cases CaseSource, events history.Repository, anon *anonymize.Anonymizer) *Service {
	return &Service{
		pool:     pool,
		stagings: stagings,
		cases:    cases,
		recorder: history.NewRecorder(events),
		anon:     anon,
	}
}

// record writes the parent event and the variant event for a mutation.
// Both share the parent entity id; the kind tells the streams apart.
func (s *Service) record(ctx context.Context, label history.Label, current, previous *Staging) error {
	if err := s.recorder.Record(ctx, EntityKind, current.ID, label, current, previous); err != nil {
		return err
	}
	var prevChild any
	if previous != nil && previous.Domain == current.Domain {
		prevChild = previous.ChildSnapshot()
	}
	return s.recorder.Record(ctx, ChildKind(current.Domain), current.ID, label, current.ChildSnapshot(), prevChild)
}

func (s *Service) CreateStaging(ctx context.Context, st *Staging) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := s.cases.GetByID(ctx, st.CaseID); err != nil {
		return err
	}
	st.CreatedBy = auth.UsernameFromContext(ctx)
	st.Description = st.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.stagings.Create(ctx, st); err != nil {
			return err
		}
		return s.record(ctx, history.LabelCreate, st, nil)
	})
}

func (s *Service) GetStaging(ctx context.Context, id uuid.UUID, anonymized bool) (*Staging, error) {
	st, err := s.stagings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if anonymized {
		key, err := s.caseKey(ctx, st.CaseID)
		if err != nil {
			return nil, err
		}
		st.Anonymize(s.anon, key)
	}
	return st, nil
}

func (s *Service) ListStagings(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Staging, int, error) {
	stagings, total, err := s.stagings.ListByCase(ctx, caseID, p)
	if err != nil {
		return nil, 0, err
	}
	if p.Anonymized && len(stagings) > 0 {
		key, err := s.caseKey(ctx, caseID)
		if err != nil {
			return nil, 0, err
		}
		for _, st := range stagings {
			st.Anonymize(s.anon, key)
		}
	}
	return stagings, total, nil
}

// UpdateStaging rewrites a staging in place. The discriminator is
// immutable after creation.
func (s *Service) UpdateStaging(ctx context.Context, st *Staging) error {
	previous, err := s.stagings.GetByID(ctx, st.ID)
	if err != nil {
		return err
	}
	if st.Domain != previous.Domain {
		return fmt.Errorf("%w: stored domain is %s", ErrDomainMismatch, previous.Domain)
	}
	st.CaseID = previous.CaseID
	st.CreatedBy = previous.CreatedBy
	st.CreatedAt = previous.CreatedAt
	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	st.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	st.Description = st.Describe()
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.stagings.Update(ctx, st); err != nil {
			return err
		}
		return s.record(ctx, history.LabelUpdate, st, previous)
	})
}

func (s *Service) DeleteStaging(ctx context.Context, id uuid.UUID) error {
	previous, err := s.stagings.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		if err := s.stagings.Delete(ctx, id); err != nil {
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

// Reverter restores staging rows from event snapshots. Parent events
// carry the whole aggregate; variant events restore only the child
// columns of a still-matching parent.
type Reverter struct {
	svc *Service
}

func NewReverter(svc *Service) *Reverter {
	return &Reverter{svc: svc}
}

func (r *Reverter) Revert(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	if event.EntityKind == EntityKind {
		return r.revertAggregate(ctx, event)
	}
	return r.revertChild(ctx, event)
}

func (r *Reverter) revertAggregate(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	var snapshot Staging
	if err := json.Unmarshal(event.Snapshot, &snapshot); err != nil {
		return uuid.Nil, "", fmt.Errorf("staging snapshot: %w", err)
	}
	snapshot.ID = event.EntityID
	previous, err := r.svc.stagings.GetByID(ctx, snapshot.ID)
	if err != nil {
		return uuid.Nil, "", err
	}
	if snapshot.Domain != previous.Domain {
		return uuid.Nil, "", fmt.Errorf("%w: stored domain is %s", ErrDomainMismatch, previous.Domain)
	}
	snapshot.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	snapshot.Description = snapshot.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.stagings.Update(ctx, &snapshot); err != nil {
			return err
		}
		return r.svc.record(ctx, history.LabelUpdate, &snapshot, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return snapshot.ID, snapshot.Describe(), nil
}

func (r *Reverter) revertChild(ctx context.Context, event *history.Event) (uuid.UUID, string, error) {
	previous, err := r.svc.stagings.GetByID(ctx, event.EntityID)
	if err != nil {
		return uuid.Nil, "", err
	}
	if ChildKind(previous.Domain) != event.EntityKind {
		return uuid.Nil, "", history.ErrNotFound
	}
	current := *previous
	_, variant, _ := strings.Cut(event.EntityKind, "/")
	switch variant {
	case "tnm":
		var d TNMDetails
		if err := json.Unmarshal(event.Snapshot, &d); err != nil {
			return uuid.Nil, "", fmt.Errorf("staging snapshot: %w", err)
		}
		current.TNM = &d
	case "figo":
		var d FIGODetails
		if err := json.Unmarshal(event.Snapshot, &d); err != nil {
			return uuid.Nil, "", fmt.Errorf("staging snapshot: %w", err)
		}
		current.FIGO = &d
	case "gleason":
		var d GleasonDetails
		if err := json.Unmarshal(event.Snapshot, &d); err != nil {
			return uuid.Nil, "", fmt.Errorf("staging snapshot: %w", err)
		}
		current.Gleason = &d
	case "breslow":
		var d BreslowDetails
		if err := json.Unmarshal(event.Snapshot, &d); err != nil {
			return uuid.Nil, "", fmt.Errorf("staging snapshot: %w", err)
		}
		current.Breslow = &d
	default:
		var d GenericDetails
		if err := json.Unmarshal(event.Snapshot, &d); err != nil {
			return uuid.Nil, "", fmt.Errorf("staging snapshot: %w", err)
		}
		current.Generic = &d
	}
	current.UpdatedBy = appendUnique(previous.UpdatedBy, auth.UsernameFromContext(ctx))
	current.Description = current.Describe()
	err = db.WithTx(ctx, r.svc.pool, func(ctx context.Context) error {
		if err := r.svc.stagings.UpdateChild(ctx, current.ID, current.Domain, current.ChildSnapshot()); err != nil {
			return err
		}
		return r.svc.record(ctx, history.LabelUpdate, &current, previous)
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return current.ID, current.Describe(), nil
}
