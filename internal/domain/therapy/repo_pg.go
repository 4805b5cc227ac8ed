package therapy

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/measures"
	"github.com/onconova/onconova/pkg/pagination"
)

type systemicRepoPG struct {
	pool *pgxpool.Pool
}

// NewSystemicTherapyRepo returns the postgres-backed systemic therapy
// repository.
func NewSystemicTherapyRepo(pool *pgxpool.Pool) SystemicTherapyRepository {
	return &systemicRepoPG{pool: pool}
}

func (r *systemicRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const systemicColumns = `id, case_id, period_start, period_end, cycles, intent,
	role_code, termination_reason_code, therapy_line_id, targeted_entity_ids,
	created_by, updated_by, created_at, updated_at`

var systemicOrderFields = map[string]bool{
	"period_start": true,
	"created_at":   true,
}

func scanSystemic(row pgx.Row) (*SystemicTherapy, error) {
	var t SystemicTherapy
	var roleCode, terminationCode *string
	err := row.Scan(&t.ID, &t.CaseID, &t.Period.Start, &t.Period.End, &t.Cycles, &t.Intent,
		&roleCode, &terminationCode, &t.TherapyLineID, &t.TargetedEntityIDs,
		&t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if roleCode != nil {
		t.Role = &terminology.Ref{Code: *roleCode, System: terminology.SystemSNOMED}
	}
	if terminationCode != nil {
		t.TerminationReason = &terminology.Ref{Code: *terminationCode, System: terminology.SystemSNOMED}
	}
	return &t, nil
}

func refCode(ref *terminology.Ref) *string {
	if ref == nil || ref.Code == "" {
		return nil
	}
	return &ref.Code
}

func (r *systemicRepoPG) loadMedications(ctx context.Context, t *SystemicTherapy) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, drug_code, drug_display, therapy_category, route_code,
			off_label, within_soc, dosages
		FROM systemic_therapy_medication WHERE therapy_id = $1 ORDER BY drug_code`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	t.Medications = nil
	for rows.Next() {
		var m Medication
		var display, routeCode *string
		if err := rows.Scan(&m.ID, &m.Drug.Code, &display, &m.Category, &routeCode,
			&m.OffLabel, &m.WithinSOC, &m.Dosages); err != nil {
			return err
		}
		m.Drug.System = terminology.SystemATC
		if display != nil {
			m.Drug.Display = *display
		}
		if routeCode != nil {
			m.Route = &terminology.Ref{Code: *routeCode, System: terminology.SystemSNOMED}
		}
		t.Medications = append(t.Medications, m)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	t.DrugCombination = t.Combination()
	t.Description = t.Describe()
	return nil
}

func (r *systemicRepoPG) Create(ctx context.Context, t *SystemicTherapy) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.UpdatedBy == nil {
		t.UpdatedBy = []string{}
	}
	if t.TargetedEntityIDs == nil {
		t.TargetedEntityIDs = []uuid.UUID{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO systemic_therapy
			(id, case_id, period_start, period_end, cycles, intent,
			 role_code, termination_reason_code, targeted_entity_ids, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		t.ID, t.CaseID, t.Period.Start, t.Period.End, t.Cycles, t.Intent,
		refCode(t.Role), refCode(t.TerminationReason), t.TargetedEntityIDs,
		t.CreatedBy, t.UpdatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return err
	}
	return r.insertMedications(ctx, t)
}

func (r *systemicRepoPG) insertMedications(ctx context.Context, t *SystemicTherapy) error {
	for i := range t.Medications {
		m := &t.Medications[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		dosages := m.Dosages
		if dosages == nil {
			dosages = []measures.Quantity{}
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO systemic_therapy_medication
				(id, therapy_id, drug_code, drug_display, therapy_category,
				 route_code, off_label, within_soc, dosages)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, t.ID, m.Drug.Code, nilIfEmpty(m.Drug.Display), m.Category,
			refCode(m.Route), m.OffLabel, m.WithinSOC, dosages)
		if err != nil {
			return err
		}
	}
	t.DrugCombination = t.Combination()
	return nil
}

func (r *systemicRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*SystemicTherapy, error) {
	t, err := scanSystemic(r.conn(ctx).QueryRow(ctx,
		`SELECT `+systemicColumns+` FROM systemic_therapy WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadMedications(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *systemicRepoPG) Update(ctx context.Context, t *SystemicTherapy) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE systemic_therapy SET period_start = $2, period_end = $3, cycles = $4,
			intent = $5, role_code = $6, termination_reason_code = $7,
			targeted_entity_ids = $8, updated_by = $9, updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.Period.Start, t.Period.End, t.Cycles, t.Intent,
		refCode(t.Role), refCode(t.TerminationReason), t.TargetedEntityIDs, t.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	// Medications are replaced wholesale.
	if _, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM systemic_therapy_medication WHERE therapy_id = $1`, t.ID); err != nil {
		return err
	}
	return r.insertMedications(ctx, t)
}

func (r *systemicRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM systemic_therapy WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *systemicRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*SystemicTherapy, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM systemic_therapy WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	therapies, err := r.list(ctx, `WHERE case_id = $1 ORDER BY `+
		p.OrderSQL(systemicOrderFields, "period_start ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	return therapies, total, nil
}

func (r *systemicRepoPG) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*SystemicTherapy, error) {
	return r.list(ctx, `WHERE case_id = $1 ORDER BY period_start ASC`, caseID)
}

func (r *systemicRepoPG) list(ctx context.Context, clause string, args ...any) ([]*SystemicTherapy, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+systemicColumns+` FROM systemic_therapy `+clause, args...)
	if err != nil {
		return nil, err
	}
	var therapies []*SystemicTherapy
	for rows.Next() {
		t, err := scanSystemic(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		therapies = append(therapies, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, t := range therapies {
		if err := r.loadMedications(ctx, t); err != nil {
			return nil, err
		}
	}
	return therapies, nil
}

func (r *systemicRepoPG) SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE systemic_therapy SET therapy_line_id = $2 WHERE id = $1`, id, lineID)
	return err
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
