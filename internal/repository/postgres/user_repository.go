package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"auth-service/internal/domain"
	"auth-service/internal/repository"
)

const uniqueViolation = "23505"

const userColumns = `id, user_name, name, last_name, email, password_hash, role, jwt, version, created_at, updated_at`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
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
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) FindByUserName(ctx context.Context, userName string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_name = $1`, userName)
	return scanUser(row)
}

func (r *UserRepository) Insert(ctx context.Context, user *domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query :=
		`INSERT INTO users (user_name, name, last_name, email, password_hash, role, jwt, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, version`

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.Name, user.LastName, user.Email, user.PasswordHash,
		string(user.Role), user.JWT, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID, &user.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", user.UserName, repository.ErrUserConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	user.UpdatedAt = time.Now().UTC()

	query :=
		`UPDATE users
		 SET user_name = $1, name = $2, last_name = $3, email = $4, password_hash = $5, role = $6, jwt = $7, updated_at = $8, version = version + 1
		 WHERE id = $9 AND version = $10`

	res, err := r.db.ExecContext(ctx, query,
		user.UserName, user.Name, user.LastName, user.Email, user.PasswordHash,
		string(user.Role), user.JWT, user.UpdatedAt, user.ID, user.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("save user %q: %w", user.UserName, repository.ErrUserConflict)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if aff == 0 {
		return nil, r.staleOrMissing(ctx, user.ID)
	}
	user.Version++
	return user, nil
}

// staleOrMissing tells a lost optimistic-lock race apart from a deleted row.
func (r *UserRepository) staleOrMissing(ctx context.Context, id int64) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return repository.ErrUserNotFound
	}
	return fmt.Errorf("save user %d: stale version: %w", id, repository.ErrUserConflict)
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return aff, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user domain.User
		role string
	)
	err := row.Scan(&user.ID, &user.UserName, &user.Name, &user.LastName, &user.Email,
		&user.PasswordHash, &role, &user.JWT, &user.Version, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	user.Role = domain.Role(role)
	return &user, nil
}
