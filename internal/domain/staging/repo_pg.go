package staging

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the postgres-backed staging repository.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const parentColumns = `id, case_id, staging_date, staging_domain, created_by, updated_by, created_at, updated_at`

var orderFields = map[string]bool{
	"staging_date":   true,
	"staging_domain": true,
	"created_at":     true,
}

func (r *repoPG) scanParent(row pgx.Row) (*Staging, error) {
	var s Staging
	err := row.Scan(&s.ID, &s.CaseID, &s.Date, &s.Domain,
		&s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) loadChild(ctx context.Context, s *Staging) error {
	switch s.Domain {
	case DomainTNM:
		var d TNMDetails
		var t, n, m, group, edition *string
		var pathologic *bool
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT t_stage, n_stage, m_stage, stage_group, edition, is_pathologic
			 FROM staging_tnm WHERE staging_id = $1`, s.ID,
		).Scan(&t, &n, &m, &group, &edition, &pathologic)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		d.T, d.N, d.M = str(t), str(n), str(m)
		d.StageGroup, d.Edition = str(group), str(edition)
		if pathologic != nil {
			d.IsPathologic = *pathologic
		}
		s.TNM = &d
	case DomainFIGO:
		var d FIGODetails
		var stage, methodology *string
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT figo_stage, methodology FROM staging_figo WHERE staging_id = $1`, s.ID,
		).Scan(&stage, &methodology)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		d.Stage, d.Methodology = str(stage), str(methodology)
		s.FIGO = &d
	case DomainGleason:
		var d GleasonDetails
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT primary_pattern, secondary_pattern FROM staging_gleason WHERE staging_id = $1`, s.ID,
		).Scan(&d.PrimaryPattern, &d.SecondaryPattern)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		s.Gleason = &d
	case DomainBreslow:
		var d BreslowDetails
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT thickness_mm, ulceration FROM staging_breslow WHERE staging_id = $1`, s.ID,
		).Scan(&d.ThicknessMM, &d.Ulceration)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		s.Breslow = &d
	default:
		var d GenericDetails
		var stage, methodology, notes *string
		err := r.conn(ctx).QueryRow(ctx,
			`SELECT stage_value, methodology, notes FROM staging_generic WHERE staging_id = $1`, s.ID,
		).Scan(&stage, &methodology, &notes)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		d.Stage, d.Methodology, d.Notes = str(stage), str(methodology), str(notes)
		s.Generic = &d
	}
	s.Description = s.Describe()
	return nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *repoPG) Create(ctx context.Context, s *Staging) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.UpdatedBy == nil {
		s.UpdatedBy = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO staging (id, case_id, staging_date, staging_domain, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		s.ID, s.CaseID, s.Date, s.Domain, s.CreatedBy, s.UpdatedBy,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return err
	}
	return r.insertChild(ctx, s)
}

func (r *repoPG) insertChild(ctx context.Context, s *Staging) error {
	switch s.Domain {
	case DomainTNM:
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO staging_tnm (staging_id, t_stage, n_stage, m_stage, stage_group, edition, is_pathologic)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.ID, s.TNM.T, s.TNM.N, s.TNM.M, s.TNM.StageGroup, s.TNM.Edition, s.TNM.IsPathologic)
		return err
	case DomainFIGO:
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO staging_figo (staging_id, figo_stage, methodology)
			VALUES ($1, $2, $3)`,
			s.ID, s.FIGO.Stage, s.FIGO.Methodology)
		return err
	case DomainGleason:
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO staging_gleason (staging_id, primary_pattern, secondary_pattern)
			VALUES ($1, $2, $3)`,
			s.ID, s.Gleason.PrimaryPattern, s.Gleason.SecondaryPattern)
		return err
	case DomainBreslow:
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO staging_breslow (staging_id, thickness_mm, ulceration)
			VALUES ($1, $2, $3)`,
			s.ID, s.Breslow.ThicknessMM, s.Breslow.Ulceration)
		return err
	default:
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO staging_generic (staging_id, stage_value, methodology, notes)
			VALUES ($1, $2, $3, $4)`,
			s.ID, s.Generic.Stage, s.Generic.Methodology, s.Generic.Notes)
		return err
	}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Staging, error) {
	s, err := r.scanParent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+parentColumns+` FROM staging WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadChild(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repoPG) Update(ctx context.Context, s *Staging) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE staging SET staging_date = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Date, s.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.UpdateChild(ctx, s.ID, s.Domain, s.ChildSnapshot())
}

// UpdateChild rewrites the child columns in place. The caller has
// already checked the domain against the stored parent.
func (r *repoPG) UpdateChild(ctx context.Context, id uuid.UUID, domain Domain, child any) error {
	switch domain {
	case DomainTNM:
		d, ok := child.(*TNMDetails)
		if !ok {
			return fmt.Errorf("%w: expected tnm details", ErrDomainMismatch)
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE staging_tnm SET t_stage = $2, n_stage = $3, m_stage = $4,
				stage_group = $5, edition = $6, is_pathologic = $7
			WHERE staging_id = $1`,
			id, d.T, d.N, d.M, d.StageGroup, d.Edition, d.IsPathologic)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	case DomainFIGO:
		d, ok := child.(*FIGODetails)
		if !ok {
			return fmt.Errorf("%w: expected figo details", ErrDomainMismatch)
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE staging_figo SET figo_stage = $2, methodology = $3 WHERE staging_id = $1`,
			id, d.Stage, d.Methodology)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	case DomainGleason:
		d, ok := child.(*GleasonDetails)
		if !ok {
			return fmt.Errorf("%w: expected gleason details", ErrDomainMismatch)
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE staging_gleason SET primary_pattern = $2, secondary_pattern = $3
			WHERE staging_id = $1`,
			id, d.PrimaryPattern, d.SecondaryPattern)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	case DomainBreslow:
		d, ok := child.(*BreslowDetails)
		if !ok {
			return fmt.Errorf("%w: expected breslow details", ErrDomainMismatch)
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE staging_breslow SET thickness_mm = $2, ulceration = $3
			WHERE staging_id = $1`,
			id, d.ThicknessMM, d.Ulceration)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	default:
		d, ok := child.(*GenericDetails)
		if !ok {
			return fmt.Errorf("%w: expected generic details", ErrDomainMismatch)
		}
		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE staging_generic SET stage_value = $2, methodology = $3, notes = $4
			WHERE staging_id = $1`,
			id, d.Stage, d.Methodology, d.Notes)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM staging WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Staging, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM staging WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+parentColumns+` FROM staging WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(orderFields, "staging_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	var stagings []*Staging
	for rows.Next() {
		s, err := r.scanParent(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		stagings = append(stagings, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, s := range stagings {
		if err := r.loadChild(ctx, s); err != nil {
			return nil, 0, err
		}
	}
	return stagings, total, nil
}
