package patientcase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

type caseRepoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the postgres-backed case repository.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &caseRepoPG{pool: pool}
}

func (r *caseRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const caseColumns = `id, pseudoidentifier, clinical_center, clinical_identifier, date_of_birth,
	vital_status, date_of_death, cause_of_death, end_of_records,
	created_by, updated_by, created_at, updated_at`

var caseOrderFields = map[string]bool{
	"pseudoidentifier": true,
	"clinical_center":  true,
	"date_of_birth":    true,
	"vital_status":     true,
	"created_at":       true,
	"updated_at":       true,
}

func scanCase(row pgx.Row) (*Case, error) {
	var c Case
	var causeOfDeath *string
	err := row.Scan(&c.ID, &c.Pseudoidentifier, &c.ClinicalCenter, &c.ClinicalIdentifier,
		&c.DateOfBirth, &c.VitalStatus, &c.DateOfDeath, &causeOfDeath, &c.EndOfRecords,
		&c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if causeOfDeath != nil {
		c.CauseOfDeath = &terminology.Ref{Code: *causeOfDeath, System: terminology.SystemICD10}
	}
	c.Description = c.Describe()
	return &c, nil
}

func causeCode(c *Case) *string {
	if c.CauseOfDeath == nil {
		return nil
	}
	return &c.CauseOfDeath.Code
}

func (r *caseRepoPG) Create(ctx context.Context, c *Case) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.UpdatedBy == nil {
		c.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_case (
			id, pseudoidentifier, clinical_center, clinical_identifier, date_of_birth,
			vital_status, date_of_death, cause_of_death, end_of_records,
			created_by, updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		c.ID, c.Pseudoidentifier, c.ClinicalCenter, c.ClinicalIdentifier, c.DateOfBirth,
		c.VitalStatus, c.DateOfDeath, causeCode(c), c.EndOfRecords,
		c.CreatedBy, c.UpdatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *caseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseColumns+` FROM patient_case WHERE id = $1`, id))
}

func (r *caseRepoPG) GetByPseudoidentifier(ctx context.Context, pseudoidentifier string) (*Case, error) {
	return scanCase(r.conn(ctx).QueryRow(ctx,
		`SELECT `+caseColumns+` FROM patient_case WHERE pseudoidentifier = $1`, pseudoidentifier))
}

func (r *caseRepoPG) Update(ctx context.Context, c *Case) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_case SET
			pseudoidentifier = $2, clinical_center = $3, clinical_identifier = $4,
			date_of_birth = $5, vital_status = $6, date_of_death = $7,
			cause_of_death = $8, end_of_records = $9, updated_by = $10, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.Pseudoidentifier, c.ClinicalCenter, c.ClinicalIdentifier,
		c.DateOfBirth, c.VitalStatus, c.DateOfDeath, causeCode(c), c.EndOfRecords, c.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *caseRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_case WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *caseRepoPG) List(ctx context.Context, filters CaseFilters, p pagination.Params) ([]*Case, int, error) {
	where := `TRUE`
	var args []any
	if filters.Pseudoidentifier != "" {
		args = append(args, filters.Pseudoidentifier)
		where += fmt.Sprintf(` AND pseudoidentifier ILIKE '%%' || $%d || '%%'`, len(args))
	}
	if filters.ClinicalCenter != "" {
		args = append(args, filters.ClinicalCenter)
		where += fmt.Sprintf(` AND clinical_center = $%d`, len(args))
	}
	if filters.VitalStatus != "" {
		args = append(args, filters.VitalStatus)
		where += fmt.Sprintf(` AND vital_status = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_case WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, p.Limit, p.Offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+caseColumns+` FROM patient_case WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		where, p.OrderSQL(caseOrderFields, "created_at DESC"), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	cases, err := collectCases(rows)
	return cases, total, err
}

func (r *caseRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Case, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+caseColumns+` FROM patient_case WHERE id = ANY($1) ORDER BY pseudoidentifier`, ids)
	if err != nil {
		return nil, err
	}
	return collectCases(rows)
}

func (r *caseRepoPG) PseudoidentifierExists(ctx context.Context, pseudoidentifier string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM patient_case WHERE pseudoidentifier = $1)`,
		pseudoidentifier).Scan(&exists)
	return exists, err
}

func (r *caseRepoPG) ClinicalIdentifierExists(ctx context.Context, center, identifier string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM patient_case
			WHERE clinical_center = $1 AND clinical_identifier = $2 AND id <> $3
		)`, center, identifier, excludeID).Scan(&exists)
	return exists, err
}

// dataCategories drive the completion rate; each maps to an EXISTS
// probe on the category's table.
var dataCategories = []struct {
	name  string
	table string
}{
	{"neoplasticEntities", "neoplastic_entity"},
	{"stagings", "staging"},
	{"genomicVariants", "genomic_variant"},
	{"systemicTherapies", "systemic_therapy"},
	{"treatmentResponses", "treatment_response"},
	{"performanceStatus", "performance_status"},
	{"lifestyle", "lifestyle"},
	{"familyHistory", "family_history"},
	{"comorbidities", "comorbidities"},
	{"vitals", "vitals"},
	{"tumorMarkers", "tumor_marker"},
}

func (r *caseRepoPG) CategoryCompletion(ctx context.Context, caseID uuid.UUID) (map[string]bool, error) {
	completion := make(map[string]bool, len(dataCategories))
	for _, category := range dataCategories {
		var exists bool
		err := r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
			`SELECT EXISTS (SELECT 1 FROM %s WHERE case_id = $1)`, category.table),
			caseID).Scan(&exists)
		if err != nil {
			return nil, err
		}
		completion[category.name] = exists
	}
	return completion, nil
}

// ChildEntityIDs collects the ids of every clinical child row of the
// case, used to aggregate contributor history.
func (r *caseRepoPG) ChildEntityIDs(ctx context.Context, caseID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{caseID}
	tables := []string{
		"neoplastic_entity", "staging", "genomic_variant", "genomic_signature",
		"systemic_therapy", "surgery", "radiotherapy", "treatment_response",
		"adverse_event", "performance_status", "lifestyle", "family_history",
		"comorbidities", "vitals", "risk_assessment", "tumor_marker", "tumor_board",
	}
	for _, table := range tables {
		rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
			`SELECT id FROM %s WHERE case_id = $1`, table), caseID)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (r *caseRepoPG) EarliestAssertionDate(ctx context.Context, caseID uuid.UUID) (*time.Time, error) {
	var earliest *time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT MIN(assertion_date) FROM neoplastic_entity WHERE case_id = $1`,
		caseID).Scan(&earliest)
	return earliest, err
}

func collectCases(rows pgx.Rows) ([]*Case, error) {
	defer rows.Close()
	var cases []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}
