package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auth-service/internal/domain"
	"auth-service/internal/repository"
)

// UserRepository keeps users in process memory. The user name index and the
// row map are updated under one lock, so uniqueness holds across goroutines.
type UserRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]domain.User
	byName map[string]int64
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:   make(map[int64]domain.User),
		byName: make(map[string]int64),
	}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) FindAll(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *UserRepository) FindByUserName(ctx context.Context, userName string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[userName]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *UserRepository) Insert(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[user.UserName]; exists {
		return nil, fmt.Errorf("insert user %q: %w", user.UserName, repository.ErrUserConflict)
	}

	r.nextID++
	now := time.Now().UTC()
	user.ID = r.nextID
	user.Version = 1
	user.CreatedAt = now
	user.UpdatedAt = now

	r.byID[user.ID] = *user
	r.byName[user.UserName] = user.ID
	return user, nil
}

func (r *UserRepository) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[user.ID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if current.Version != user.Version {
		return nil, fmt.Errorf("save user %d: stale version: %w", user.ID, repository.ErrUserConflict)
	}
	if owner, taken := r.byName[user.UserName]; taken && owner != user.ID {
		return nil, fmt.Errorf("save user %q: %w", user.UserName, repository.ErrUserConflict)
	}

	user.CreatedAt = current.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	user.Version++
	delete(r.byName, current.UserName)
	r.byName[user.UserName] = user.ID
	r.byID[user.ID] = *user
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return 0, nil
	}
	delete(r.byID, id)
	delete(r.byName, u.UserName)
	return 1, nil
}
