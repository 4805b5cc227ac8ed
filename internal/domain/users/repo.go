package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/onconova/onconova/pkg/pagination"
)

// UserFilters narrow user listings.
type UserFilters struct {
	Username string
	External *bool
}

// Repository defines the persistence interface for platform accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetAccessLevel(ctx context.Context, id uuid.UUID, level int) error
	List(ctx context.Context, filters UserFilters, p pagination.Params) ([]*User, int, error)
}
