package patientcase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

type entityRepoPG struct {
	pool *pgxpool.Pool
}

// NewEntityRepo returns the postgres-backed neoplastic entity repository.
func NewEntityRepo(pool *pgxpool.Pool) EntityRepository {
	return &entityRepoPG{pool: pool}
}

func (r *entityRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const entityColumns = `id, case_id, relationship, topography_code, topography_system,
	morphology_code, morphology_system, assertion_date, related_primary_id,
	created_by, updated_by, created_at, updated_at`

var entityOrderFields = map[string]bool{
	"relationship":   true,
	"assertion_date": true,
	"created_at":     true,
}

func scanEntity(row pgx.Row) (*NeoplasticEntity, error) {
	var e NeoplasticEntity
	var topoCode, topoSystem, morphCode, morphSystem *string
	err := row.Scan(&e.ID, &e.CaseID, &e.Relationship, &topoCode, &topoSystem,
		&morphCode, &morphSystem, &e.AssertionDate, &e.RelatedPrimaryID,
		&e.CreatedBy, &e.UpdatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if topoCode != nil {
		e.Topography = &terminology.Ref{Code: *topoCode, System: deref(topoSystem)}
	}
	if morphCode != nil {
		e.Morphology = &terminology.Ref{Code: *morphCode, System: deref(morphSystem)}
	}
	e.Description = e.Describe()
	return &e, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func refParts(ref *terminology.Ref) (*string, *string) {
	if ref == nil {
		return nil, nil
	}
	return &ref.Code, &ref.System
}

func (r *entityRepoPG) Create(ctx context.Context, e *NeoplasticEntity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.UpdatedBy == nil {
		e.UpdatedBy = []string{}
	}
	topoCode, topoSystem := refParts(e.Topography)
	morphCode, morphSystem := refParts(e.Morphology)
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO neoplastic_entity (
			id, case_id, relationship, topography_code, topography_system,
			morphology_code, morphology_system, assertion_date, related_primary_id,
			created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		e.ID, e.CaseID, e.Relationship, topoCode, topoSystem,
		morphCode, morphSystem, e.AssertionDate, e.RelatedPrimaryID,
		e.CreatedBy, e.UpdatedBy,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
}

func (r *entityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*NeoplasticEntity, error) {
	return scanEntity(r.conn(ctx).QueryRow(ctx,
		`SELECT `+entityColumns+` FROM neoplastic_entity WHERE id = $1`, id))
}

func (r *entityRepoPG) Update(ctx context.Context, e *NeoplasticEntity) error {
	topoCode, topoSystem := refParts(e.Topography)
	morphCode, morphSystem := refParts(e.Morphology)
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE neoplastic_entity SET
			relationship = $2, topography_code = $3, topography_system = $4,
			morphology_code = $5, morphology_system = $6, assertion_date = $7,
			related_primary_id = $8, updated_by = $9, updated_at = NOW()
		WHERE id = $1`,
		e.ID, e.Relationship, topoCode, topoSystem, morphCode, morphSystem,
		e.AssertionDate, e.RelatedPrimaryID, e.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *entityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM neoplastic_entity WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *entityRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*NeoplasticEntity, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM neoplastic_entity WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+entityColumns+` FROM neoplastic_entity WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(entityOrderFields, "assertion_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entities []*NeoplasticEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, 0, err
		}
		entities = append(entities, e)
	}
	return entities, total, rows.Err()
}
