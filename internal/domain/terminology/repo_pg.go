package terminology

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the postgres-backed concept repository.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const conceptColumns = `id, system, code, display, definition, version, parent_id, synonyms, properties`

func scanConcept(row pgx.Row) (*Concept, error) {
	var c Concept
	var display, definition, version *string
	err := row.Scan(&c.ID, &c.System, &c.Code, &display, &definition, &version,
		&c.ParentID, &c.Synonyms, &c.Properties)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if display != nil {
		c.Display = *display
	}
	if definition != nil {
		c.Definition = *definition
	}
	if version != nil {
		c.Version = *version
	}
	return &c, nil
}

func (r *repoPG) Upsert(ctx context.Context, concept *Concept) error {
	var parentID *int64
	if concept.ParentCode != "" {
		parent, err := r.Get(ctx, concept.System, concept.ParentCode)
		if err == nil {
			parentID = &parent.ID
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	concept.ParentID = parentID
	synonyms := concept.Synonyms
	if synonyms == nil {
		synonyms = []string{}
	}
	properties := concept.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO coded_concept (system, code, display, definition, version, parent_id, synonyms, properties)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (system, code) DO UPDATE SET
			display = EXCLUDED.display,
			definition = EXCLUDED.definition,
			version = EXCLUDED.version,
			parent_id = EXCLUDED.parent_id,
			synonyms = EXCLUDED.synonyms,
			properties = EXCLUDED.properties
		RETURNING id`,
		concept.System, concept.Code, concept.Display, concept.Definition,
		concept.Version, parentID, synonyms, properties,
	).Scan(&concept.ID)
}

func (r *repoPG) Get(ctx context.Context, system, code string) (*Concept, error) {
	return scanConcept(r.conn(ctx).QueryRow(ctx,
		`SELECT `+conceptColumns+` FROM coded_concept WHERE system = $1 AND code = $2`,
		system, code))
}

// Search ranks matches by where the query hits: code matches weigh 10,
// display 5, synonyms 1, penalized by match position in the display and
// by display length. Ties break on code.
func (r *repoPG) Search(ctx context.Context, system, query string, codes []string, limit, offset int) ([]*Concept, int, error) {
	where := `system = $1`
	args := []any{system}
	if len(codes) > 0 {
		args = append(args, codes)
		where += fmt.Sprintf(` AND code = ANY($%d)`, len(args))
	}
	if query != "" {
		args = append(args, query)
		q := fmt.Sprintf("$%d", len(args))
		where += fmt.Sprintf(` AND (code ILIKE '%%' || %[1]s || '%%'
			OR display ILIKE '%%' || %[1]s || '%%'
			OR EXISTS (SELECT 1 FROM unnest(synonyms) syn WHERE syn ILIKE '%%' || %[1]s || '%%'))`, q)

		var total int
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT COUNT(*) FROM coded_concept WHERE `+where, args...).Scan(&total); err != nil {
			return nil, 0, err
		}
		rank := fmt.Sprintf(`(
			CASE WHEN code ILIKE '%%' || %[1]s || '%%' THEN 10 ELSE 0 END
			+ CASE WHEN display ILIKE '%%' || %[1]s || '%%' THEN 5 ELSE 0 END
			+ CASE WHEN EXISTS (SELECT 1 FROM unnest(synonyms) syn WHERE syn ILIKE '%%' || %[1]s || '%%') THEN 1 ELSE 0 END
			- POSITION(LOWER(%[1]s) IN LOWER(COALESCE(display, '')))
			- LENGTH(COALESCE(display, '')))`, q)
		args = append(args, limit, offset)
		rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
			`SELECT `+conceptColumns+` FROM coded_concept WHERE %s ORDER BY %s DESC, code ASC LIMIT $%d OFFSET $%d`,
			where, rank, len(args)-1, len(args)), args...)
		if err != nil {
			return nil, 0, err
		}
		concepts, err := collectConcepts(rows)
		return concepts, total, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM coded_concept WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+conceptColumns+` FROM coded_concept WHERE %s ORDER BY code ASC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	concepts, err := collectConcepts(rows)
	return concepts, total, err
}

// Descendants returns the concept and all of its transitive children.
func (r *repoPG) Descendants(ctx context.Context, system, code string) ([]*Concept, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		WITH RECURSIVE sub AS (
			SELECT `+conceptColumns+` FROM coded_concept WHERE system = $1 AND code = $2
			UNION ALL
			SELECT c.id, c.system, c.code, c.display, c.definition, c.version, c.parent_id, c.synonyms, c.properties
			FROM coded_concept c JOIN sub s ON c.parent_id = s.id
		)
		SELECT `+conceptColumns+` FROM sub ORDER BY code`,
		system, code)
	if err != nil {
		return nil, err
	}
	concepts, err := collectConcepts(rows)
	if err != nil {
		return nil, err
	}
	if len(concepts) == 0 {
		return nil, ErrNotFound
	}
	return concepts, nil
}

func (r *repoPG) Count(ctx context.Context, system string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM coded_concept WHERE system = $1`, system).Scan(&n)
	return n, err
}

func (r *repoPG) DeleteSystem(ctx context.Context, system string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM coded_concept WHERE system = $1`, system)
	return int(tag.RowsAffected()), err
}

// PruneDangling removes concepts left over from earlier loads, i.e.
// rows whose version no longer matches the current one.
func (r *repoPG) PruneDangling(ctx context.Context, system, version string) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM coded_concept
		WHERE system = $1 AND COALESCE(version, '') <> $2`,
		system, version)
	return int(tag.RowsAffected()), err
}

func collectConcepts(rows pgx.Rows) ([]*Concept, error) {
	defer rows.Close()
	var concepts []*Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}
