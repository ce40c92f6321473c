package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-service/internal/domain"
	"auth-service/internal/repository"
)

const userColumns = `id, user_name, name, last_name, email, password_hash, role, jwt, version, created_at, updated_at`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	return users, rows.Err()
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) FindByUserName(ctx context.Context, userName string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE user_name = ?`,
		userName,
	)
	return scanUser(row)
}

func (r *UserRepository) Insert(ctx context.Context, user *domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
INSERT INTO users (user_name, name, last_name, email, password_hash, role, jwt, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.UserName,
		user.Name,
		user.LastName,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.JWT,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", user.UserName, repository.ErrUserConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user last insert id: %w", err)
	}
	user.ID = id
	user.Version = 1
	return user, nil
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	user.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
UPDATE users
SET user_name = ?, name = ?, last_name = ?, email = ?, password_hash = ?, role = ?, jwt = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ?`,
		user.UserName,
		user.Name,
		user.LastName,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.JWT,
		user.UpdatedAt,
		user.ID,
		user.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("save user %q: %w", user.UserName, repository.ErrUserConflict)
		}
		return nil, fmt.Errorf("save user: %w", err)
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("user save rows affected: %w", err)
	}
	if aff == 0 {
		return nil, r.staleOrMissing(ctx, user.ID)
	}
	user.Version++
	return user, nil
}

// staleOrMissing tells a lost optimistic-lock race apart from a deleted row.
func (r *UserRepository) staleOrMissing(ctx context.Context, id int64) error {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return repository.ErrUserNotFound
	case err != nil:
		return fmt.Errorf("check user %d: %w", id, err)
	}
	return fmt.Errorf("save user %d: stale version: %w", id, repository.ErrUserConflict)
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("user delete rows affected: %w", err)
	}
	return aff, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	if err := row.Scan(
		&user.ID,
		&user.UserName,
		&user.Name,
		&user.LastName,
		&user.Email,
		&user.PasswordHash,
		&role,
		&user.JWT,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Role = domain.Role(role)
	return &user, nil
}
