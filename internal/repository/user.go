package repository

import (
	"context"
	"errors"

	"auth-service/internal/domain"
)

var (
	// ErrUserNotFound is returned when no row matches the lookup key.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict is returned when a write violates the user name uniqueness
	// constraint or the row changed since it was read.
	ErrUserConflict = errors.New("user already exists")
)

// UserRepository defines persistence operations for User entities.
// Implementations assign IDs on Insert and enforce user name uniqueness atomically.
type UserRepository interface {
	FindAll(ctx context.Context) ([]domain.User, error)
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByUserName(ctx context.Context, userName string) (*domain.User, error)
	Insert(ctx context.Context, user *domain.User) (*domain.User, error)
	// Save writes the row only if its stored version still equals user.Version,
	// then increments user.Version.
	Save(ctx context.Context, user *domain.User) (*domain.User, error)
	// Delete removes the row and reports how many rows were affected.
	Delete(ctx context.Context, id int64) (int64, error)
}
