package tumorboard

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/pkg/pagination"
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

const boardColumns = `id, case_id, board_date, category,
	created_by, updated_by, created_at, updated_at`

var boardOrderFields = map[string]bool{
	"board_date": true,
	"created_at": true,
}

func scanBoard(row pgx.Row) (*TumorBoard, error) {
	var b TumorBoard
	err := row.Scan(&b.ID, &b.CaseID, &b.Date, &b.Category,
		&b.CreatedBy, &b.UpdatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *repoPG) loadMolecular(ctx context.Context, b *TumorBoard) error {
	if b.Category != CategoryMolecular {
		b.Description = b.Describe()
		return nil
	}
	var details MolecularDetails
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT reviewed_variant_ids, recommendations
		FROM tumor_board_molecular WHERE board_id = $1`, b.ID,
	).Scan(&details.ReviewedVariantIDs, &details.Recommendations)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	b.Molecular = &details
	b.Description = b.Describe()
	return nil
}

func recommendationsJSON(details *MolecularDetails) json.RawMessage {
	if details == nil || len(details.Recommendations) == 0 {
		return json.RawMessage("[]")
	}
	return details.Recommendations
}

func variantIDs(details *MolecularDetails) []uuid.UUID {
	if details == nil || details.ReviewedVariantIDs == nil {
		return []uuid.UUID{}
	}
	return details.ReviewedVariantIDs
}

func (r *repoPG) Create(ctx context.Context, b *TumorBoard) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.UpdatedBy == nil {
		b.UpdatedBy = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO tumor_board (id, case_id, board_date, category, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		b.ID, b.CaseID, b.Date, b.Category, b.CreatedBy, b.UpdatedBy,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return err
	}
	if b.Category != CategoryMolecular {
		return nil
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO tumor_board_molecular (board_id, reviewed_variant_ids, recommendations)
		VALUES ($1, $2, $3)`,
		b.ID, variantIDs(b.Molecular), recommendationsJSON(b.Molecular))
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*TumorBoard, error) {
	b, err := scanBoard(r.conn(ctx).QueryRow(ctx,
		`SELECT `+boardColumns+` FROM tumor_board WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadMolecular(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) Update(ctx context.Context, b *TumorBoard) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE tumor_board SET board_date = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1`,
		b.ID, b.Date, b.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if b.Category != CategoryMolecular {
		return nil
	}
	return r.UpdateMolecular(ctx, b.ID, b.Molecular)
}

func (r *repoPG) UpdateMolecular(ctx context.Context, id uuid.UUID, details *MolecularDetails) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE tumor_board_molecular SET reviewed_variant_ids = $2, recommendations = $3
		WHERE board_id = $1`,
		id, variantIDs(details), recommendationsJSON(details))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM tumor_board WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByCase(ctx context.Context, caseID uuid.UUID, p pagination.Params) ([]*TumorBoard, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM tumor_board WHERE case_id = $1`, caseID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+boardColumns+` FROM tumor_board WHERE case_id = $1 ORDER BY `+
			p.OrderSQL(boardOrderFields, "board_date DESC")+` LIMIT $2 OFFSET $3`,
		caseID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var boards []*TumorBoard
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, 0, err
		}
		boards = append(boards, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, b := range boards {
		if err := r.loadMolecular(ctx, b); err != nil {
			return nil, 0, err
		}
	}
	return boards, total, nil
}
