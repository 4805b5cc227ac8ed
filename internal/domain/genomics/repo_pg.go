package genomics

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

type variantRepoPG struct {
	pool *pgxpool.Pool
}

// NewVariantRepo returns the postgres-backed variant repository.
func NewVariantRepo(pool *pgxpool.Pool) VariantRepository {
	return &variantRepoPG{pool: pool}
}

func (r *variantRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const variantColumns = `id, case_id, variant_date, gene_codes, hgvs_expressions,
	pathogenicity, gene_panel, clinical_annotations,
	created_by, updated_by, created_at, updated_at`

var variantOrderFields = map[string]bool{
	"variant_date": true,
	"created_at":   true,
}

func scanVariant(row pgx.Row) (*Variant, error) {
	var v Variant
	var geneCodes []string
	var pathogenicity, genePanel *string
	err := row.Scan(&v.ID, &v.CaseID, &v.Date, &geneCodes, &v.HGVS,
		&pathogenicity, &genePanel, &v.ClinicalAnnotations,
		&v.CreatedBy, &v.UpdatedBy, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	v.Genes = make([]terminology.Ref, 0, len(geneCodes))
	for _, code := range geneCodes {
		v.Genes = append(v.Genes, terminology.Ref{Code: code, System: terminology.SystemHGNC})
	}
	if pathogenicity != nil {
		v.Pathogenicity = *pathogenicity
	}
	if genePanel != nil {
		v.GenePanel = *genePanel
	}
	v.Description = v.Describe()
	return &v, nil
}

func (r *variantRepoPG) Create(ctx context.Context, v *Variant) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	if v.UpdatedBy == nil {
		v.UpdatedBy = []string{}
	}
	if v.HGVS == nil {
		v.HGVS = []string{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO genomic_variant
			(id, case_id, variant_date, gene_codes, hgvs_expressions,
			 pathogenicity, gene_panel, clinical_annotations, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		v.ID, v.CaseID, v.Date, v.GeneCodes(), v.HGVS,
		nilIfEmpty(v.Pathogenicity), nilIfEmpty(v.GenePanel), v.ClinicalAnnotations,
		v.CreatedBy, v.UpdatedBy,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (r *variantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Variant, error) {
	return scanVariant(r.conn(ctx).QueryRow(ctx,
		`SELECT `+variantColumns+` FROM genomic_variant WHERE id = $1`, id))
}

func (r *variantRepoPG) Update(ctx context.Context, v *Variant) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE genomic_variant SET variant_date = $2, gene_codes = $3,
			hgvs_expressions = $4, pathogenicity = $5, gene_panel = $6,
			clinical_annotations = $7, updated_by = $8, updated_at = NOW()
		WHERE id = $1`,
		v.ID, v.Date, v.GeneCodes(), v.HGVS,
		nilIfEmpty(v.Pathogenicity), nilIfEmpty(v.GenePanel), v.ClinicalAnnotations, v.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *variantRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM genomic_variant WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *variantRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Variant, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM genomic_variant WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+variantColumns+` FROM genomic_variant WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(variantOrderFields, "variant_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	variants, err := collectVariants(rows)
	if err != nil {
		return nil, 0, err
	}
	return variants, total, nil
}

func (r *variantRepoPG) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Variant, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+variantColumns+` FROM genomic_variant WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVariants(rows)
}

func collectVariants(rows pgx.Rows) ([]*Variant, error) {
	var variants []*Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// -- Signatures --

type signatureRepoPG struct {
	pool *pgxpool.Pool
}

// NewSignatureRepo returns the postgres-backed signature repository.
func NewSignatureRepo(pool *pgxpool.Pool) SignatureRepository {
	return &signatureRepoPG{pool: pool}
}

func (r *signatureRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

var signatureOrderFields = map[string]bool{
	"signature_date": true,
	"category":       true,
	"created_at":     true,
}

const signatureColumns = `s.id, s.case_id, s.signature_date, s.category,
	v.value, v.unit, v.status,
	s.created_by, s.updated_by, s.created_at, s.updated_at`

func scanSignature(row pgx.Row) (*Signature, error) {
	var s Signature
	var result SignatureValue
	var unit, status *string
	err := row.Scan(&s.ID, &s.CaseID, &s.Date, &s.Category,
		&result.Value, &unit, &status,
		&s.CreatedBy, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if unit != nil {
		result.Unit = *unit
	}
	if status != nil {
		result.Status = *status
	}
	s.Result = &result
	s.Description = s.Describe()
	return &s, nil
}

func (r *signatureRepoPG) Create(ctx context.Context, s *Signature) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.UpdatedBy == nil {
		s.UpdatedBy = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO genomic_signature (id, case_id, signature_date, category, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		s.ID, s.CaseID, s.Date, s.Category, s.CreatedBy, s.UpdatedBy,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO genomic_signature_value (signature_id, value, unit, status)
		VALUES ($1, $2, $3, $4)`,
		s.ID, s.Result.Value, nilIfEmpty(s.Result.Unit), nilIfEmpty(s.Result.Status))
	return err
}

func (r *signatureRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Signature, error) {
	return scanSignature(r.conn(ctx).QueryRow(ctx, `
		SELECT `+signatureColumns+`
		FROM genomic_signature s
		JOIN genomic_signature_value v ON v.signature_id = s.id
		WHERE s.id = $1`, id))
}

func (r *signatureRepoPG) Update(ctx context.Context, s *Signature) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE genomic_signature SET signature_date = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1`,
		s.ID, s.Date, s.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return r.UpdateResult(ctx, s.ID, s.Result)
}

func (r *signatureRepoPG) UpdateResult(ctx context.Context, id uuid.UUID, result *SignatureValue) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE genomic_signature_value SET value = $2, unit = $3, status = $4
		WHERE signature_id = $1`,
		id, result.Value, nilIfEmpty(result.Unit), nilIfEmpty(result.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *signatureRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM genomic_signature WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *signatureRepoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*Signature, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM genomic_signature WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+signatureColumns+`
		FROM genomic_signature s
		JOIN genomic_signature_value v ON v.signature_id = s.id
		WHERE s.case_id = $1 ORDER BY `+
		p.OrderSQL(signatureOrderFields, "signature_date ASC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var signatures []*Signature
	for rows.Next() {
		s, err := scanSignature(rows)
		if err != nil {
			return nil, 0, err
		}
		signatures = append(signatures, s)
	}
	return signatures, total, rows.Err()
}
