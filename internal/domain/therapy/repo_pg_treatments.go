package therapy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/domain/terminology"
	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
)

// -- Surgeries --

type surgeryRepoPG struct {
	pool *pgxpool.Pool
}

func NewSurgeryRepo(pool *pgxpool.Pool) SurgeryRepository {
	return &surgeryRepoPG{pool: pool}
}

func (r *surgeryRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const surgeryColumns = `id, case_id, surgery_date, procedure_code, intent,
	bodysite_code, outcome, therapy_line_id, created_by, updated_by,
	created_at, updated_at`

var surgeryOrderFields = map[string]bool{
	"surgery_date": true,
	"created_at":   true,
}

func scanSurgery(row pgx.Row) (*Surgery, error) {
	var s Surgery
	var procedureCode, bodysiteCode, outcome *string
	err := row.Scan(&s.ID, &s.CaseID, &s.Date, &procedureCode, &s.Intent,
		&bodysiteCode, &outcome, &s.TherapyLineID,
		&s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if procedureCode != nil {
		s.Procedure = &terminology.Ref{Code: *procedureCode, System: terminology.SystemSNOMED}
	}
	if bodysiteCode != nil {
		s.Bodysite = &terminology.Ref{Code: *bodysiteCode, System: terminology.SystemSNOMED}
	}
	if outcome != nil {
		s.Outcome = *outcome
	}
	s.Description = s.Describe()
	return &s, nil
}

func (r *surgeryRepoPG) Create(ctx context.Context, s *Surgery) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.UpdatedBy == nil {
		s.UpdatedBy = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO surgery
			(id, case_id, surgery_date, procedure_code, intent, bodysite_code,
			 outcome, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		s.ID, s.CaseID, s.Date, refCode(s.Procedure), s.Intent, refCode(s.Bodysite),
		nilIfEmpty(s.Outcome), s.CreatedBy, s.UpdatedBy,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *surgeryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Surgery, error) {
	return scanSurgery(r.conn(ctx).QueryRow(ctx,
		`SELECT `+surgeryColumns+` FROM surgery WHERE id = $1`, id))
}

func (r *surgeryRepoPG) Update(ctx context.Context, s *Surgery) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE surgery SET surgery_date = $2, procedure_code = $3, intent = $4,
			bodysite_code = $5, outcome = $6, updated_by = $7, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Date, refCode(s.Procedure), s.Intent, refCode(s.Bodysite),
		nilIfEmpty(s.Outcome), s.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *surgeryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM surgery WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *surgeryRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Surgery, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM surgery WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	surgeries, err := r.list(ctx, `WHERE case_id = $1 ORDER BY `+
		p.OrderSQL(surgeryOrderFields, "surgery_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	return surgeries, total, nil
}

func (r *surgeryRepoPG) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*Surgery, error) {
	return r.list(ctx, `WHERE case_id = $1 ORDER BY surgery_date ASC`, caseID)
}

func (r *surgeryRepoPG) list(ctx context.Context, clause string, args ...any) ([]*Surgery, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+surgeryColumns+` FROM surgery `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var surgeries []*Surgery
	for rows.Next() {
		s, err := scanSurgery(rows)
		if err != nil {
			return nil, err
		}
		surgeries = append(surgeries, s)
	}
	return surgeries, rows.Err()
}

func (r *surgeryRepoPG) SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE surgery SET therapy_line_id = $2 WHERE id = $1`, id, lineID)
	return err
}

// -- Radiotherapies --

type radiotherapyRepoPG struct {
	pool *pgxpool.Pool
}

func NewRadiotherapyRepo(pool *pgxpool.Pool) RadiotherapyRepository {
	return &radiotherapyRepoPG{pool: pool}
}

func (r *radiotherapyRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const radiotherapyColumns = `id, case_id, period_start, period_end, intent,
	dosages, settings, targeted_entity_ids, therapy_line_id,
	created_by, updated_by, created_at, updated_at`

var radiotherapyOrderFields = map[string]bool{
	"period_start": true,
	"created_at":   true,
}

func scanRadiotherapy(row pgx.Row) (*Radiotherapy, error) {
	var rt Radiotherapy
	err := row.Scan(&rt.ID, &rt.CaseID, &rt.Period.Start, &rt.Period.End, &rt.Intent,
		&rt.Dosages, &rt.Settings, &rt.TargetedEntityIDs, &rt.TherapyLineID,
		&rt.CreatedBy, &rt.UpdatedBy, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rt.Description = rt.Describe()
	return &rt, nil
}

func (r *radiotherapyRepoPG) Create(ctx context.Context, rt *Radiotherapy) error {
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	if rt.UpdatedBy == nil {
		rt.UpdatedBy = []string{}
	}
	if rt.TargetedEntityIDs == nil {
		rt.TargetedEntityIDs = []uuid.UUID{}
	}
	dosages := rt.Dosages
	if dosages == nil {
		dosages = []byte("[]")
	}
	settings := rt.Settings
	if settings == nil {
		settings = []byte("[]")
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO radiotherapy
			(id, case_id, period_start, period_end, intent, dosages, settings,
			 targeted_entity_ids, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		rt.ID, rt.CaseID, rt.Period.Start, rt.Period.End, rt.Intent, dosages, settings,
		rt.TargetedEntityIDs, rt.CreatedBy, rt.UpdatedBy,
	).Scan(&rt.CreatedAt, &rt.UpdatedAt)
}

func (r *radiotherapyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Radiotherapy, error) {
	return scanRadiotherapy(r.conn(ctx).QueryRow(ctx,
		`SELECT `+radiotherapyColumns+` FROM radiotherapy WHERE id = $1`, id))
}

func (r *radiotherapyRepoPG) Update(ctx context.Context, rt *Radiotherapy) error {
	dosages := rt.Dosages
	if dosages == nil {
		dosages = []byte("[]")
	}
	settings := rt.Settings
	if settings == nil {
		settings = []byte("[]")
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE radiotherapy SET period_start = $2, period_end = $3, intent = $4,
			dosages = $5, settings = $6, targeted_entity_ids = $7,
			updated_by = $8, updated_at = NOW()
		WHERE id = $1`,
		rt.ID, rt.Period.Start, rt.Period.End, rt.Intent, dosages, settings,
		rt.TargetedEntityIDs, rt.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *radiotherapyRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM radiotherapy WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *radiotherapyRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Radiotherapy, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM radiotherapy WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	radiotherapies, err := r.list(ctx, `WHERE case_id = $1 ORDER BY `+
		p.OrderSQL(radiotherapyOrderFields, "period_start ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	return radiotherapies, total, nil
}

func (r *radiotherapyRepoPG) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*Radiotherapy, error) {
	return r.list(ctx, `WHERE case_id = $1 ORDER BY period_start ASC`, caseID)
}

func (r *radiotherapyRepoPG) list(ctx context.Context, clause string, args ...any) ([]*Radiotherapy, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+radiotherapyColumns+` FROM radiotherapy `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var radiotherapies []*Radiotherapy
	for rows.Next() {
		rt, err := scanRadiotherapy(rows)
		if err != nil {
			return nil, err
		}
		radiotherapies = append(radiotherapies, rt)
	}
	return radiotherapies, rows.Err()
}

func (r *radiotherapyRepoPG) SetTherapyLine(ctx context.Context, id uuid.UUID, lineID *uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE radiotherapy SET therapy_line_id = $2 WHERE id = $1`, id, lineID)
	return err
}

// -- Treatment responses --

type responseRepoPG struct {
	pool *pgxpool.Pool
}

func NewResponseRepo(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepoPG{pool: pool}
}

func (r *responseRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const responseColumns = `id, case_id, assessment_date, recist_code, methodology_code,
	assessed_entity_ids, assessed_bodysites, created_by, updated_by,
	created_at, updated_at`

var responseOrderFields = map[string]bool{
	"assessment_date": true,
	"created_at":      true,
}

func scanResponse(row pgx.Row) (*TreatmentResponse, error) {
	var tr TreatmentResponse
	var methodologyCode *string
	err := row.Scan(&tr.ID, &tr.CaseID, &tr.Date, &tr.Recist.Code, &methodologyCode,
		&tr.AssessedEntityIDs, &tr.AssessedBodysites,
		&tr.CreatedBy, &tr.UpdatedBy, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tr.Recist.System = terminology.SystemRECIST
	if methodologyCode != nil {
		tr.Methodology = &terminology.Ref{Code: *methodologyCode, System: terminology.SystemSNOMED}
	}
	tr.Description = tr.Describe()
	return &tr, nil
}

func (r *responseRepoPG) Create(ctx context.Context, tr *TreatmentResponse) error {
	if tr.ID == uuid.Nil {
		tr.ID = uuid.New()
	}
	if tr.UpdatedBy == nil {
		tr.UpdatedBy = []string{}
	}
	if tr.AssessedEntityIDs == nil {
		tr.AssessedEntityIDs = []uuid.UUID{}
	}
	if tr.AssessedBodysites == nil {
		tr.AssessedBodysites = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatment_response
			(id, case_id, assessment_date, recist_code, methodology_code,
			 assessed_entity_ids, assessed_bodysites, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		tr.ID, tr.CaseID, tr.Date, tr.Recist.Code, refCode(tr.Methodology),
		tr.AssessedEntityIDs, tr.AssessedBodysites, tr.CreatedBy, tr.UpdatedBy,
	).Scan(&tr.CreatedAt, &tr.UpdatedAt)
}

func (r *responseRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TreatmentResponse, error) {
	return scanResponse(r.conn(ctx).QueryRow(ctx,
		`SELECT `+responseColumns+` FROM treatment_response WHERE id = $1`, id))
}

func (r *responseRepoPG) Update(ctx context.Context, tr *TreatmentResponse) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE treatment_response SET assessment_date = $2, recist_code = $3,
			methodology_code = $4, assessed_entity_ids = $5, assessed_bodysites = $6,
			updated_by = $7, updated_at = NOW()
		WHERE id = $1`,
		tr.ID, tr.Date, tr.Recist.Code, refCode(tr.Methodology),
		tr.AssessedEntityIDs, tr.AssessedBodysites, tr.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *responseRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM treatment_response WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *responseRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TreatmentResponse, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM treatment_response WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	responses, err := r.list(ctx, `WHERE case_id = $1 ORDER BY `+
		p.OrderSQL(responseOrderFields, "assessment_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	return responses, total, nil
}

func (r *responseRepoPG) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*TreatmentResponse, error) {
	return r.list(ctx, `WHERE case_id = $1 ORDER BY assessment_date ASC`, caseID)
}

func (r *responseRepoPG) list(ctx context.Context, clause string, args ...any) ([]*TreatmentResponse, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+responseColumns+` FROM treatment_response `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responses []*TreatmentResponse
	for rows.Next() {
		tr, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		responses = append(responses, tr)
	}
	return responses, rows.Err()
}

// -- Therapy lines --

type lineRepoPG struct {
	pool *pgxpool.Pool
}

func NewLineRepo(pool *pgxpool.Pool) LineRepository {
	return &lineRepoPG{pool: pool}
}

func (r *lineRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const lineColumns = `id, case_id, ordinal, intent, period_start, period_end,
	created_by, updated_by, created_at, updated_at`

var lineOrderFields = map[string]bool{
	"ordinal":      true,
	"period_start": true,
	"created_at":   true,
}

func scanLine(row pgx.Row) (*TherapyLine, error) {
	var l TherapyLine
	err := row.Scan(&l.ID, &l.CaseID, &l.Ordinal, &l.Intent, &l.PeriodStart, &l.PeriodEnd,
		&l.CreatedBy, &l.UpdatedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.Label = LineLabel(l.Intent, l.Ordinal)
	return &l, nil
}

func (r *lineRepoPG) Create(ctx context.Context, l *TherapyLine) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.UpdatedBy == nil {
		l.UpdatedBy = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO therapy_line
			(id, case_id, ordinal, intent, period_start, period_end, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		l.ID, l.CaseID, l.Ordinal, l.Intent, l.PeriodStart, l.PeriodEnd,
		l.CreatedBy, l.UpdatedBy,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return err
	}
	l.Label = LineLabel(l.Intent, l.Ordinal)
	return nil
}

func (r *lineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TherapyLine, error) {
	return scanLine(r.conn(ctx).QueryRow(ctx,
		`SELECT `+lineColumns+` FROM therapy_line WHERE id = $1`, id))
}

func (r *lineRepoPG) UpdatePeriod(ctx context.Context, id uuid.UUID, start, end *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE therapy_line SET period_start = $2, period_end = $3, updated_at = NOW()
		WHERE id = $1`, id, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *lineRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM therapy_line WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *lineRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TherapyLine, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM therapy_line WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	lines, err := r.list(ctx, `WHERE case_id = $1 ORDER BY `+
		p.OrderSQL(lineOrderFields, "ordinal ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	return lines, total, nil
}

func (r *lineRepoPG) ListAllByCase(ctx context.Context, caseID uuid.UUID) ([]*TherapyLine, error) {
	return r.list(ctx, `WHERE case_id = $1 ORDER BY intent, ordinal ASC`, caseID)
}

func (r *lineRepoPG) list(ctx context.Context, clause string, args ...any) ([]*TherapyLine, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+lineColumns+` FROM therapy_line `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []*TherapyLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
