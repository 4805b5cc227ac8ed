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

func refCode(ref *terminology.Ref) *string {
	if ref == nil || ref.Code == "" {
		return nil
	}
	return &ref.Code
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func refsFromCodes(codes []string, system string) []terminology.Ref {
	if len(codes) == 0 {
		return nil
	}
	refs := make([]terminology.Ref, 0, len(codes))
	for _, c := range codes {
		refs = append(refs, terminology.Ref{Code: c, System: system})
	}
	return refs
}

// -- Adverse events --

type adverseEventRepoPG struct {
	pool *pgxpool.Pool
}

func NewAdverseEventRepo(pool *pgxpool.Pool) AdverseEventRepository {
	return &adverseEventRepoPG{pool: pool}
}

func (r *adverseEventRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const adverseEventColumns = `id, case_id, event_date, event_code, grade, outcome,
	created_by, updated_by, created_at, updated_at`

var adverseEventOrderFields = map[string]bool{
	"event_date": true,
	"created_at": true,
}

func scanAdverseEvent(row pgx.Row) (*AdverseEvent, error) {
	var a AdverseEvent
	var eventCode, outcome *string
	err := row.Scan(&a.ID, &a.CaseID, &a.Date, &eventCode, &a.Grade, &outcome,
		&a.CreatedBy, &a.UpdatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if eventCode != nil {
		a.Event = &terminology.Ref{Code: *eventCode, System: terminology.SystemCTCAE}
	}
	if outcome != nil {
		a.Outcome = *outcome
	}
	a.Description = a.Describe()
	return &a, nil
}

func (r *adverseEventRepoPG) Create(ctx context.Context, a *AdverseEvent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.UpdatedBy == nil {
		a.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO adverse_event (id, case_id, event_date, event_code, grade,
			outcome, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		a.ID, a.CaseID, a.Date, refCode(a.Event), a.Grade,
		nilIfEmpty(a.Outcome), a.CreatedBy, a.UpdatedBy,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *adverseEventRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AdverseEvent, error) {
	return scanAdverseEvent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+adverseEventColumns+` FROM adverse_event WHERE id = $1`, id))
}

func (r *adverseEventRepoPG) Update(ctx context.Context, a *AdverseEvent) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE adverse_event SET event_date = $2, event_code = $3, grade = $4,
			outcome = $5, updated_by = $6, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Date, refCode(a.Event), a.Grade, nilIfEmpty(a.Outcome), a.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *adverseEventRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM adverse_event WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *adverseEventRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*AdverseEvent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM adverse_event WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+adverseEventColumns+` FROM adverse_event WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(adverseEventOrderFields, "event_date DESC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var events []*AdverseEvent
	for rows.Next() {
		a, err := scanAdverseEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, a)
	}
	return events, total, rows.Err()
}

// -- Performance status --

type performanceStatusRepoPG struct {
	pool *pgxpool.Pool
}

func NewPerformanceStatusRepo(pool *pgxpool.Pool) PerformanceStatusRepository {
	return &performanceStatusRepoPG{pool: pool}
}

func (r *performanceStatusRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const performanceStatusColumns = `id, case_id, assessment_date, ecog_score,
	karnofsky_score, created_by, updated_by, created_at, updated_at`

var performanceStatusOrderFields = map[string]bool{
	"assessment_date": true,
	"created_at":      true,
}

func scanPerformanceStatus(row pgx.Row) (*PerformanceStatus, error) {
	var p PerformanceStatus
	err := row.Scan(&p.ID, &p.CaseID, &p.Date, &p.ECOGScore, &p.Karnofsky,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Description = p.Describe()
	return &p, nil
}

func (r *performanceStatusRepoPG) Create(ctx context.Context, p *PerformanceStatus) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.UpdatedBy == nil {
		p.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO performance_status (id, case_id, assessment_date, ecog_score,
			karnofsky_score, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.CaseID, p.Date, p.ECOGScore, p.Karnofsky, p.CreatedBy, p.UpdatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *performanceStatusRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*PerformanceStatus, error) {
	return scanPerformanceStatus(r.conn(ctx).QueryRow(ctx,
		`SELECT `+performanceStatusColumns+` FROM performance_status WHERE id = $1`, id))
}

func (r *performanceStatusRepoPG) Update(ctx context.Context, p *PerformanceStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE performance_status SET assessment_date = $2, ecog_score = $3,
			karnofsky_score = $4, updated_by = $5, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Date, p.ECOGScore, p.Karnofsky, p.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *performanceStatusRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM performance_status WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *performanceStatusRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*PerformanceStatus, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM performance_status WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+performanceStatusColumns+` FROM performance_status WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(performanceStatusOrderFields, "assessment_date DESC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var statuses []*PerformanceStatus
	for rows.Next() {
		st, err := scanPerformanceStatus(rows)
		if err != nil {
			return nil, 0, err
		}
		statuses = append(statuses, st)
	}
	return statuses, total, rows.Err()
}

// -- Lifestyle --

type lifestyleRepoPG struct {
	pool *pgxpool.Pool
}

func NewLifestyleRepo(pool *pgxpool.Pool) LifestyleRepository {
	return &lifestyleRepoPG{pool: pool}
}

func (r *lifestyleRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const lifestyleColumns = `id, case_id, record_date, smoking_status,
	alcohol_consumption, exposure_codes, created_by, updated_by, created_at, updated_at`

var lifestyleOrderFields = map[string]bool{
	"record_date": true,
	"created_at":  true,
}

func scanLifestyle(row pgx.Row) (*Lifestyle, error) {
	var l Lifestyle
	var smoking, alcohol *string
	var exposureCodes []string
	err := row.Scan(&l.ID, &l.CaseID, &l.Date, &smoking, &alcohol, &exposureCodes,
		&l.CreatedBy, &l.UpdatedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if smoking != nil {
		l.SmokingStatus = *smoking
	}
	if alcohol != nil {
		l.AlcoholConsumption = *alcohol
	}
	l.Exposures = refsFromCodes(exposureCodes, terminology.SystemSNOMED)
	l.Description = l.Describe()
	return &l, nil
}

func (r *lifestyleRepoPG) Create(ctx context.Context, l *Lifestyle) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.UpdatedBy == nil {
		l.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO lifestyle (id, case_id, record_date, smoking_status,
			alcohol_consumption, exposure_codes, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		l.ID, l.CaseID, l.Date, nilIfEmpty(l.SmokingStatus),
		nilIfEmpty(l.AlcoholConsumption), l.ExposureCodes(), l.CreatedBy, l.UpdatedBy,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (r *lifestyleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Lifestyle, error) {
	return scanLifestyle(r.conn(ctx).QueryRow(ctx,
		`SELECT `+lifestyleColumns+` FROM lifestyle WHERE id = $1`, id))
}

func (r *lifestyleRepoPG) Update(ctx context.Context, l *Lifestyle) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE lifestyle SET record_date = $2, smoking_status = $3,
			alcohol_consumption = $4, exposure_codes = $5, updated_by = $6, updated_at = NOW()
		WHERE id = $1`,
		l.ID, l.Date, nilIfEmpty(l.SmokingStatus), nilIfEmpty(l.AlcoholConsumption),
		l.ExposureCodes(), l.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *lifestyleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lifestyle WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *lifestyleRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Lifestyle, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM lifestyle WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lifestyleColumns+` FROM lifestyle WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(lifestyleOrderFields, "record_date DESC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var records []*Lifestyle
	for rows.Next() {
		l, err := scanLifestyle(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, l)
	}
	return records, total, rows.Err()
}

// -- Family history --

type familyHistoryRepoPG struct {
	pool *pgxpool.Pool
}

func NewFamilyHistoryRepo(pool *pgxpool.Pool) FamilyHistoryRepository {
	return &familyHistoryRepoPG{pool: pool}
}

func (r *familyHistoryRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const familyHistoryColumns = `id, case_id, record_date, relationship,
	condition_code, onset_age, created_by, updated_by, created_at, updated_at`

var familyHistoryOrderFields = map[string]bool{
	"record_date": true,
	"created_at":  true,
}

func scanFamilyHistory(row pgx.Row) (*FamilyHistory, error) {
	var f FamilyHistory
	var relationship, conditionCode *string
	err := row.Scan(&f.ID, &f.CaseID, &f.Date, &relationship, &conditionCode,
		&f.OnsetAge, &f.CreatedBy, &f.UpdatedBy, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if relationship != nil {
		f.Relationship = *relationship
	}
	if conditionCode != nil {
		f.Condition = &terminology.Ref{Code: *conditionCode, System: terminology.SystemICD10}
	}
	f.Description = f.Describe()
	return &f, nil
}

func (r *familyHistoryRepoPG) Create(ctx context.Context, f *FamilyHistory) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.UpdatedBy == nil {
		f.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO family_history (id, case_id, record_date, relationship,
			condition_code, onset_age, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		f.ID, f.CaseID, f.Date, nilIfEmpty(f.Relationship), refCode(f.Condition),
		f.OnsetAge, f.CreatedBy, f.UpdatedBy,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
}

func (r *familyHistoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FamilyHistory, error) {
	return scanFamilyHistory(r.conn(ctx).QueryRow(ctx,
		`SELECT `+familyHistoryColumns+` FROM family_history WHERE id = $1`, id))
}

func (r *familyHistoryRepoPG) Update(ctx context.Context, f *FamilyHistory) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE family_history SET record_date = $2, relationship = $3,
			condition_code = $4, onset_age = $5, updated_by = $6, updated_at = NOW()
		WHERE id = $1`,
		f.ID, f.Date, nilIfEmpty(f.Relationship), refCode(f.Condition), f.OnsetAge, f.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *familyHistoryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM family_history WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *familyHistoryRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*FamilyHistory, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM family_history WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+familyHistoryColumns+` FROM family_history WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(familyHistoryOrderFields, "record_date DESC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var records []*FamilyHistory
	for rows.Next() {
		f, err := scanFamilyHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, f)
	}
	return records, total, rows.Err()
}
