package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/platform/auth"
	"github.com/onconova/onconova/pkg/pagination"
)

type Service struct {
	pool   *pgxpool.Pool
	users  Repository
	grants auth.GrantChecker
}

func NewService(pool *pgxpool.Pool, users Repository, grants auth.GrantChecker) *Service {
	return &Service{pool: pool, users: users, grants: grants}
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.decorate(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.decorate(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, filters UserFilters, p pagination.Params) ([]*User, int, error) {
	users, total, err := s.users.List(ctx, filters, p)
	if err != nil {
		return nil, 0, err
	}
	for _, u := range users {
		if err := s.decorate(ctx, u); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

// SetAccessLevel changes the role of an account. Superuser status and
// the account itself are managed by the auth provider.
func (s *Service) SetAccessLevel(ctx context.Context, id uuid.UUID, level int) (*User, error) {
	if level < auth.LevelMember || level > auth.LevelSystemAdmin {
		return nil, fmt.Errorf("access level must be between %d and %d",
			auth.LevelMember, auth.LevelSystemAdmin)
	}
	if err := s.users.SetAccessLevel(ctx, id, level); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

// decorate derives role name, grant status and capability booleans.
// The grant lookup only matters below the level that already implies
// manage-cases.
func (s *Service) decorate(ctx context.Context, u *User) error {
	active := false
	if u.AccessLevel < auth.LevelPlatformManager && !u.Superuser && s.grants != nil {
		var err error
		active, err = s.grants.HasActiveGrant(ctx, u.Username)
		if err != nil {
			return err
		}
	}
	u.Decorate(active)
	return nil
}
