package history

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the postgres-backed event repository.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const eventColumns = `id, entity_kind, entity_id, label, created_at, snapshot, diff, context`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.EntityKind, &e.EntityID, &e.Label, &e.CreatedAt,
		&e.Snapshot, &e.Diff, &e.Context)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) Insert(ctx context.Context, event *Event) error {
	if event.Context == nil {
		event.Context = Context{}
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO history_event (entity_kind, entity_id, label, snapshot, diff, context)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		event.EntityKind, event.EntityID, event.Label,
		event.Snapshot, event.Diff, event.Context,
	).Scan(&event.ID, &event.CreatedAt)
}

func (r *repoPG) Get(ctx context.Context, id int64) (*Event, error) {
	return scanEvent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM history_event WHERE id = $1`, id))
}

func (r *repoPG) ListByEntity(ctx context.Context, entityID uuid.UUID, limit, offset int) ([]*Event, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM history_event WHERE entity_id = $1`, entityID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+eventColumns+` FROM history_event WHERE entity_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		entityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	events, err := collectEvents(rows)
	return events, total, err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Event, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM history_event`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+eventColumns+` FROM history_event ORDER BY id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	events, err := collectEvents(rows)
	return events, total, err
}

// Contributors returns the distinct usernames found in the events of
// the given entities, ordered by descending contribution count.
func (r *repoPG) Contributors(ctx context.Context, entityIDs []uuid.UUID) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT context->>'username' AS username, COUNT(*) AS n
		FROM history_event
		WHERE entity_id = ANY($1) AND COALESCE(context->>'username', '') <> ''
		GROUP BY username
		ORDER BY n DESC, username ASC`,
		entityIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var usernames []string
	for rows.Next() {
		var username string
		var n int
		if err := rows.Scan(&username, &n); err != nil {
			return nil, err
		}
		usernames = append(usernames, username)
	}
	return usernames, rows.Err()
}

func (r *repoPG) CountByLabel(ctx context.Context, entityID uuid.UUID, label Label) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM history_event WHERE entity_id = $1 AND label = $2`,
		entityID, label).Scan(&n)
	return n, err
}

func (r *repoPG) LastByLabel(ctx context.Context, entityID uuid.UUID, label Label) (*Event, error) {
	return scanEvent(r.conn(ctx).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM history_event WHERE entity_id = $1 AND label = $2 ORDER BY id DESC LIMIT 1`,
		entityID, label))
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()
	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
