package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auth-service/internal/domain"
	"auth-service/internal/repository"
)

func newRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepository(db), mock
}

var userRowColumns = []string{"id", "user_name", "name", "last_name", "email", "password_hash", "role", "jwt", "version", "created_at", "updated_at"}

func TestInsert_Success(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+users\s*\(user_name,.*\)\s*VALUES\s*\(\?(,\s*\?){8}\)\s*$`).
		WithArgs("alice", "Alice", "Liddell", "alice@example.com", "$2a$10$hash", "DEVELOPER", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))

	user := &domain.User{
		UserName:     "alice",
		Name:         "Alice",
		LastName:     "Liddell",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$hash",
		Role:         domain.RoleDeveloper,
	}
	got, err := repo.Insert(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_UniqueViolation(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+users`).
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: users.user_name (2067)"))

	_, err := repo.Insert(context.Background(), &domain.User{UserName: "alice", PasswordHash: "h"})
	assert.ErrorIs(t, err, repository.ErrUserConflict)
}

func TestInsert_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("disk I/O error"))

	_, err := repo.Insert(context.Background(), &domain.User{UserName: "alice", PasswordHash: "h"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrUserConflict)
	assert.Contains(t, err.Error(), "insert user: disk I/O error")
}

func TestFindByUserName(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)SELECT\s+id,\s*user_name.*FROM\s+users\s+WHERE\s+user_name\s*=\s*\?`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "alice", "Alice", "Liddell", "alice@example.com", "$2a$10$hash", "ADMIN", "tok", int64(2), now, now))

	got, err := repo.FindByUserName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, "tok", got.JWT)
	assert.Equal(t, int64(2), got.Version)
}

func TestFindByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)SELECT.*FROM\s+users\s+WHERE\s+id\s*=\s*\?`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 99)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestFindAll_Empty(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)SELECT.*FROM\s+users\s+ORDER\s+BY\s+id\s+ASC`).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	got, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSave_NoRows(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET.*WHERE\s+id\s*=\s*\?\s+AND\s+version\s*=\s*\?`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT\s+1\s+FROM\s+users\s+WHERE\s+id\s*=\s*\?`).
		WithArgs(int64(5)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Save(context.Background(), &domain.User{ID: 5, UserName: "ghost"})
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_StaleVersion(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET.*version\s*=\s*version\s*\+\s*1\s+WHERE\s+id\s*=\s*\?\s+AND\s+version\s*=\s*\?`).
		WithArgs("alice", "", "", "", "old", "DEVELOPER", "", sqlmock.AnyArg(), int64(5), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT\s+1\s+FROM\s+users`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	user := &domain.User{ID: 5, UserName: "alice", PasswordHash: "old", Role: domain.RoleDeveloper, Version: 2}
	_, err := repo.Save(context.Background(), user)
	assert.ErrorIs(t, err, repository.ErrUserConflict)
	assert.Equal(t, int64(2), user.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_ReturnsAffected(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\?`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	aff, err := repo.Delete(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), aff)
}

func TestUserRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)

	alice, err := repo.Insert(ctx, &domain.User{UserName: "alice", PasswordHash: "h1", Role: domain.RoleDeveloper})
	require.NoError(t, err)
	bob, err := repo.Insert(ctx, &domain.User{UserName: "bob", PasswordHash: "h2", Role: domain.RoleManager})
	require.NoError(t, err)
	assert.Greater(t, bob.ID, alice.ID)

	_, err = repo.Insert(ctx, &domain.User{UserName: "alice", PasswordHash: "h3"})
	assert.ErrorIs(t, err, repository.ErrUserConflict)

	bob.UserName = "alice"
	_, err = repo.Save(ctx, bob)
	assert.ErrorIs(t, err, repository.ErrUserConflict)

	alice.Email = "alice@example.com"
	_, err = repo.Save(ctx, alice)
	require.NoError(t, err)

	got, err := repo.FindByUserName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "h1", got.PasswordHash)

	_, err = repo.FindByUserName(ctx, "Alice")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	aff, err := repo.Delete(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), aff)

	aff, err = repo.Delete(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), aff)

	carol, err := repo.Insert(ctx, &domain.User{UserName: "carol", PasswordHash: "h4"})
	require.NoError(t, err)
	assert.Greater(t, carol.ID, bob.ID, "ids are never reused")
}

func TestUserRepository_SQLite_StaleSave(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)
	_, err = repo.Insert(ctx, &domain.User{UserName: "alice", PasswordHash: "old", Role: domain.RoleDeveloper})
	require.NoError(t, err)

	first, err := repo.FindByUserName(ctx, "alice")
	require.NoError(t, err)
	second, err := repo.FindByUserName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	second.PasswordHash = "recovered"
	_, err = repo.Save(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)

	first.Email = "alice@example.com"
	_, err = repo.Save(ctx, first)
	assert.ErrorIs(t, err, repository.ErrUserConflict)

	got, err := repo.FindByUserName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got.PasswordHash)
	assert.Empty(t, got.Email)
	assert.Equal(t, int64(2), got.Version)
}
