package assessments

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

func refCodes(refs []terminology.Ref) []string {
	codes := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Code != "" {
			codes = append(codes, ref.Code)
		}
	}
	return codes
}

// -- Comorbidities --

type comorbiditiesRepoPG struct {
	pool *pgxpool.Pool
}

func NewComorbiditiesRepo(pool *pgxpool.Pool) ComorbiditiesRepository {
	return &comorbiditiesRepoPG{pool: pool}
}

func (r *comorbiditiesRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const comorbiditiesColumns = `id, case_id, record_date, condition_codes, charlson_index,
	created_by, updated_by, created_at, updated_at`

var comorbiditiesOrderFields = map[string]bool{
	"record_date": true,
	"created_at":  true,
}

func scanComorbidities(row pgx.Row) (*Comorbidities, error) {
	var c Comorbidities
	var codes []string
	err := row.Scan(&c.ID, &c.CaseID, &c.Date, &codes, &c.CharlsonIndex,
		&c.CreatedBy, &c.UpdatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Conditions = refsFromCodes(codes, terminology.SystemICD10)
	c.Description = c.Describe()
	return &c, nil
}

func (r *comorbiditiesRepoPG) Create(ctx context.Context, c *Comorbidities) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.UpdatedBy == nil {
		c.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO comorbidities
			(id, case_id, record_date, condition_codes, charlson_index, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.ID, c.CaseID, c.Date, refCodes(c.Conditions), c.CharlsonIndex,
		c.CreatedBy, c.UpdatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *comorbiditiesRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Comorbidities, error) {
	return scanComorbidities(r.conn(ctx).QueryRow(ctx,
		`SELECT `+comorbiditiesColumns+` FROM comorbidities WHERE id = $1`, id))
}

func (r *comorbiditiesRepoPG) Update(ctx context.Context, c *Comorbidities) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE comorbidities SET record_date = $2, condition_codes = $3,
			charlson_index = $4, updated_by = $5, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.Date, refCodes(c.Conditions), c.CharlsonIndex, c.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *comorbiditiesRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM comorbidities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *comorbiditiesRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Comorbidities, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM comorbidities WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+comorbiditiesColumns+` FROM comorbidities WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(comorbiditiesOrderFields, "record_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var records []*Comorbidities
	for rows.Next() {
		c, err := scanComorbidities(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, c)
	}
	return records, total, rows.Err()
}

// -- Vitals --

type vitalsRepoPG struct {
	pool *pgxpool.Pool
}

func NewVitalsRepo(pool *pgxpool.Pool) VitalsRepository {
	return &vitalsRepoPG{pool: pool}
}

func (r *vitalsRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const vitalsColumns = `id, case_id, record_date, height_cm, weight_kg,
	blood_pressure_systolic, blood_pressure_diastolic,
	created_by, updated_by, created_at, updated_at`

var vitalsOrderFields = map[string]bool{
	"record_date": true,
	"created_at":  true,
}

func scanVitals(row pgx.Row) (*Vitals, error) {
	var v Vitals
	err := row.Scan(&v.ID, &v.CaseID, &v.Date, &v.HeightCm, &v.WeightKg,
		&v.Systolic, &v.Diastolic,
		&v.CreatedBy, &v.UpdatedBy, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	v.Description = v.Describe()
	return &v, nil
}

func (r *vitalsRepoPG) Create(ctx context.Context, v *Vitals) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.UpdatedBy == nil {
		v.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vitals
			(id, case_id, record_date, height_cm, weight_kg,
			 blood_pressure_systolic, blood_pressure_diastolic, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		v.ID, v.CaseID, v.Date, v.HeightCm, v.WeightKg, v.Systolic, v.Diastolic,
		v.CreatedBy, v.UpdatedBy,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *vitalsRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Vitals, error) {
	return scanVitals(r.conn(ctx).QueryRow(ctx,
		`SELECT `+vitalsColumns+` FROM vitals WHERE id = $1`, id))
}

func (r *vitalsRepoPG) Update(ctx context.Context, v *Vitals) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE vitals SET record_date = $2, height_cm = $3, weight_kg = $4,
			blood_pressure_systolic = $5, blood_pressure_diastolic = $6,
			updated_by = $7, updated_at = NOW()
		WHERE id = $1`,
		v.ID, v.Date, v.HeightCm, v.WeightKg, v.Systolic, v.Diastolic, v.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *vitalsRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM vitals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *vitalsRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Vitals, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM vitals WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+vitalsColumns+` FROM vitals WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(vitalsOrderFields, "record_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var records []*Vitals
	for rows.Next() {
		v, err := scanVitals(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, v)
	}
	return records, total, rows.Err()
}

// -- Risk assessments --

type riskAssessmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRiskAssessmentRepo(pool *pgxpool.Pool) RiskAssessmentRepository {
	return &riskAssessmentRepoPG{pool: pool}
}

func (r *riskAssessmentRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const riskAssessmentColumns = `id, case_id, assessment_date, methodology_code,
	risk_classification, score, created_by, updated_by, created_at, updated_at`

var riskAssessmentOrderFields = map[string]bool{
	"assessment_date": true,
	"created_at":      true,
}

func scanRiskAssessment(row pgx.Row) (*RiskAssessment, error) {
	var ra RiskAssessment
	var methodologyCode, classification *string
	err := row.Scan(&ra.ID, &ra.CaseID, &ra.Date, &methodologyCode,
		&classification, &ra.Score,
		&ra.CreatedBy, &ra.UpdatedBy, &ra.CreatedAt, &ra.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if methodologyCode != nil {
		ra.Methodology = &terminology.Ref{Code: *methodologyCode, System: terminology.SystemSNOMED}
	}
	if classification != nil {
		ra.Classification = *classification
	}
	ra.Description = ra.Describe()
	return &ra, nil
}

func (r *riskAssessmentRepoPG) Create(ctx context.Context, ra *RiskAssessment) error {
	if ra.ID == uuid.Nil {
		ra.ID = uuid.New()
	}
	if ra.UpdatedBy == nil {
		ra.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO risk_assessment
			(id, case_id, assessment_date, methodology_code, risk_classification,
			 score, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		ra.ID, ra.CaseID, ra.Date, refCode(ra.Methodology), nilIfEmpty(ra.Classification),
		ra.Score, ra.CreatedBy, ra.UpdatedBy,
	).Scan(&ra.CreatedAt, &ra.UpdatedAt)
}

func (r *riskAssessmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RiskAssessment, error) {
	return scanRiskAssessment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+riskAssessmentColumns+` FROM risk_assessment WHERE id = $1`, id))
}

func (r *riskAssessmentRepoPG) Update(ctx context.Context, ra *RiskAssessment) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE risk_assessment SET assessment_date = $2, methodology_code = $3,
			risk_classification = $4, score = $5, updated_by = $6, updated_at = NOW()
		WHERE id = $1`,
		ra.ID, ra.Date, refCode(ra.Methodology), nilIfEmpty(ra.Classification),
		ra.Score, ra.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *riskAssessmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM risk_assessment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *riskAssessmentRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*RiskAssessment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM risk_assessment WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+riskAssessmentColumns+` FROM risk_assessment WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(riskAssessmentOrderFields, "assessment_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var records []*RiskAssessment
	for rows.Next() {
		ra, err := scanRiskAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, ra)
	}
	return records, total, rows.Err()
}

// -- Tumor markers --

type tumorMarkerRepoPG struct {
	pool *pgxpool.Pool
}

func NewTumorMarkerRepo(pool *pgxpool.Pool) TumorMarkerRepository {
	return &tumorMarkerRepoPG{pool: pool}
}

func (r *tumorMarkerRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const tumorMarkerColumns = `id, case_id, collection_date, analyte_code, value, unit,
	created_by, updated_by, created_at, updated_at`

var tumorMarkerOrderFields = map[string]bool{
	"collection_date": true,
	"created_at":      true,
}

func scanTumorMarker(row pgx.Row) (*TumorMarker, error) {
	var t TumorMarker
	var unit *string
	err := row.Scan(&t.ID, &t.CaseID, &t.Date, &t.Analyte.Code, &t.Value, &unit,
		&t.CreatedBy, &t.UpdatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Analyte.System = terminology.SystemLOINC
	if unit != nil {
		t.Unit = *unit
	}
	t.Description = t.Describe()
	return &t, nil
}

func (r *tumorMarkerRepoPG) Create(ctx context.Context, t *TumorMarker) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.UpdatedBy == nil {
		t.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO tumor_marker
			(id, case_id, collection_date, analyte_code, value, unit, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		t.ID, t.CaseID, t.Date, t.Analyte.Code, t.Value, nilIfEmpty(t.Unit),
		t.CreatedBy, t.UpdatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *tumorMarkerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TumorMarker, error) {
	return scanTumorMarker(r.conn(ctx).QueryRow(ctx,
		`SELECT `+tumorMarkerColumns+` FROM tumor_marker WHERE id = $1`, id))
}

func (r *tumorMarkerRepoPG) Update(ctx context.Context, t *TumorMarker) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE tumor_marker SET collection_date = $2, analyte_code = $3,
			value = $4, unit = $5, updated_by = $6, updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.Date, t.Analyte.Code, t.Value, nilIfEmpty(t.Unit), t.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *tumorMarkerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM tumor_marker WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *tumorMarkerRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TumorMarker, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tumor_marker WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tumorMarkerColumns+` FROM tumor_marker WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(tumorMarkerOrderFields, "collection_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var records []*TumorMarker
	for rows.Next() {
		t, err := scanTumorMarker(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, t)
	}
	return records, total, rows.Err()
}
