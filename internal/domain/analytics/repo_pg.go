package analytics

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/stats"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) DashboardCounts(ctx context.Context) (*DashboardStats, error) {
	var s DashboardStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM patient_case),
			(SELECT COUNT(*) FROM neoplastic_entity),
			(SELECT COUNT(*) FROM genomic_variant),
			(SELECT COUNT(*) FROM project),
			(SELECT COUNT(*) FROM cohort),
			(SELECT COUNT(*) FROM dataset),
			(SELECT COUNT(*) FROM app_user)`).
		Scan(&s.Cases, &s.NeoplasticEntities, &s.GenomicVariants,
			&s.Projects, &s.Cohorts, &s.Datasets, &s.Users)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) PrimarySiteCounts(ctx context.Context, limit int) ([]SiteCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT COALESCE(cc.display, ne.topography_code, 'Unspecified'),
		       COUNT(DISTINCT ne.case_id)
		FROM neoplastic_entity ne
		LEFT JOIN coded_concept cc
			ON cc.code = ne.topography_code AND cc.system = ne.topography_system
		WHERE ne.relationship = 'primary'
		GROUP BY 1
		ORDER BY 2 DESC, 1
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SiteCount
	for rows.Next() {
		var sc SiteCount
		if err := rows.Scan(&sc.Site, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *repoPG) CasesOverTime(ctx context.Context) ([]MonthCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(date_trunc('month', created_at), 'YYYY-MM'), COUNT(*)
		FROM patient_case
		GROUP BY 1
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonthCount
	for rows.Next() {
		var mc MonthCount
		if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

func (r *repoPG) SurvivalObservations(ctx context.Context, caseIDs []uuid.UUID) ([]stats.Observation, error) {
	if len(caseIDs) == 0 {
		return nil, nil
	}
	// Follow-up ends at death, the end of records, or today. Months use
	// the mean Gregorian month length.
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT
			EXTRACT(EPOCH FROM (
				COALESCE(pc.date_of_death, pc.end_of_records, NOW())::timestamptz
				- d.diagnosis::timestamptz)) / 86400 / 30.4375,
			pc.vital_status = 'deceased'
		FROM patient_case pc
		JOIN (
			SELECT case_id, MIN(assertion_date) AS diagnosis
			FROM neoplastic_entity
			GROUP BY case_id
		) d ON d.case_id = pc.id
		WHERE pc.id = ANY($1)`, caseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []stats.Observation
	for rows.Next() {
		var o stats.Observation
		if err := rows.Scan(&o.Time, &o.Event); err != nil {
			return nil, err
		}
		if o.Time < 0 {
			o.Time = 0
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// traitColumns whitelists the categorical case traits a distribution
// can be requested for.
var traitColumns = map[string]string{
	"vitalStatus":    "pc.vital_status",
	"clinicalCenter": "pc.clinical_center",
}

func (r *repoPG) TraitCounts(ctx context.Context, trait string, caseIDs []uuid.UUID) ([]TraitCount, error) {
	if len(caseIDs) == 0 {
		return nil, nil
	}
	column, ok := traitColumns[trait]
	if !ok {
		return nil, ErrUnknownTrait
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+column+`, COUNT(*)
		FROM patient_case pc
		WHERE pc.id = ANY($1)
		GROUP BY 1
		ORDER BY 2 DESC, 1`, caseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraitCount
	for rows.Next() {
		var tc TraitCount
		if err := rows.Scan(&tc.Value, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

func (r *repoPG) GeneVariantCounts(ctx context.Context, caseIDs []uuid.UUID, limit int) ([]GeneCount, error) {
	if len(caseIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT gene, COUNT(DISTINCT case_id)
		FROM genomic_variant, unnest(gene_codes) AS gene
		WHERE case_id = ANY($1)
		GROUP BY gene
		ORDER BY 2 DESC, 1
		LIMIT $2`, caseIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	total := len(caseIDs)
	var out []GeneCount
	for rows.Next() {
		var gc GeneCount
		if err := rows.Scan(&gc.Gene, &gc.Cases); err != nil {
			return nil, err
		}
		gc.Frequency = float64(gc.Cases) / float64(total)
		out = append(out, gc)
	}
	return out, rows.Err()
}
