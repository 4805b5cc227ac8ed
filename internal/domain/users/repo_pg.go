package users

import (
	"context"
	"errors"
	"fmt"

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

const userColumns = `id, username, full_name, email, access_level, is_superuser,
	is_external, created_at, updated_at`

var userOrderFields = map[string]bool{
	"username":     true,
	"access_level": true,
	"created_at":   true,
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email, &u.AccessLevel,
		&u.Superuser, &u.External, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (id, username, full_name, email, access_level,
			is_superuser, is_external)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.FullName, u.Email, u.AccessLevel,
		u.Superuser, u.External,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE id = $1`, id))
}

func (r *repoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE username = $1`, username))
}

func (r *repoPG) SetAccessLevel(ctx context.Context, id uuid.UUID, level int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE app_user SET access_level = $2, updated_at = NOW() WHERE id = $1`,
		id, level)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, filters UserFilters, p pagination.Params) ([]*User, int, error) {
	where := `TRUE`
	args := []any{}
	if filters.Username != "" {
		args = append(args, "%"+filters.Username+"%")
		where += fmt.Sprintf(` AND username ILIKE $%d`, len(args))
	}
	if filters.External != nil {
		args = append(args, *filters.External)
		where += fmt.Sprintf(` AND is_external = $%d`, len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM app_user WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, p.Limit, p.Offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM app_user WHERE `+where+` ORDER BY `+
			p.OrderSQL(userOrderFields, "username ASC")+
			fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
