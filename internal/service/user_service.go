package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"auth-service/internal/domain"
	"auth-service/internal/repository"
	"auth-service/internal/security"
)

var (
	// ErrNotFound indicates the addressed user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrConflict indicates the store rejected a write, usually a duplicate user name.
	ErrConflict = errors.New("user conflict")
	// ErrInvalidCredentials is returned for an unknown user and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrGeneratorFailure indicates a recovery secret could not be produced.
	ErrGeneratorFailure = errors.New("secret generator failure")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// dummyPassword is hashed once at construction so that lookups of unknown
// users still pay for one bcrypt comparison.
const dummyPassword = "timing-equalizer"

var validate = newValidator()

// newValidator registers the "role" tag, which accepts only the known roles.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return domain.Role(fl.Field().String()).IsValid()
	})
	if err != nil {
		panic(err)
	}
	return v
}

// CreateUserInput carries the fields accepted when creating an account.
type CreateUserInput struct {
	UserName string      `validate:"required,max=64"`
	Password string      `validate:"required,max=72"`
	Name     string      `validate:"max=100"`
	LastName string      `validate:"max=100"`
	Email    string      `validate:"omitempty,email"`
	Role     domain.Role `validate:"omitempty,role"`
}

// UpdateUserInput carries a partial update. Nil fields are left untouched;
// the password and user name cannot be changed through it.
type UpdateUserInput struct {
	Name     *string      `validate:"omitempty,max=100"`
	LastName *string      `validate:"omitempty,max=100"`
	Email    *string      `validate:"omitempty,email"`
	Role     *domain.Role `validate:"omitempty,role"`
}

// UserService describes credential and account lifecycle operations.
// Returned users never carry the password hash or session token.
type UserService interface {
	Validate(ctx context.Context, userName, password string) (*domain.User, error)
	FindAll(ctx context.Context) ([]domain.User, error)
	FindOne(ctx context.Context, id int64) (*domain.User, error)
	FindByUserName(ctx context.Context, userName string) (*domain.User, error)
	Create(ctx context.Context, in CreateUserInput) (*domain.User, error)
	Update(ctx context.Context, userName string, in UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, userName string) (*domain.User, error)
	RecoverPassword(ctx context.Context, userName string) (string, error)
	UpdateJWT(ctx context.Context, userName, token string) (*domain.User, error)
	ChangePassword(ctx context.Context, userName, current, next string) error
	// SessionToken returns the token currently stored for the user.
	SessionToken(ctx context.Context, userName string) (string, error)
}

// Option configures a UserService built by NewUserService.
type Option func(*userService)

// WithLogger sets the logger used for lifecycle events. Defaults to the logrus standard logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *userService) { s.log = log }
}

// WithRecoveryPolicy overrides the policy for generated recovery passwords.
func WithRecoveryPolicy(p security.Policy) Option {
	return func(s *userService) { s.recovery = p }
}

type userService struct {
	users     repository.UserRepository
	hasher    security.PasswordHasher
	generator security.SecretGenerator
	recovery  security.Policy
	log       logrus.FieldLogger
	dummyHash string
}

// NewUserService builds a UserService over the given store. It fails only when
// the hasher cannot produce the dummy hash used for unknown-user lookups.
func NewUserService(users repository.UserRepository, hasher security.PasswordHasher, generator security.SecretGenerator, opts ...Option) (UserService, error) {
	s := &userService{
		users:     users,
		hasher:    hasher,
		generator: generator,
		recovery:  security.DefaultRecoveryPolicy,
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

func (s *userService) Validate(ctx context.Context, userName, password string) (*domain.User, error) {
	user, err := s.users.FindByUserName(ctx, userName)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		s.hasher.Verify(password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user.Sanitized(), nil
}

func (s *userService) FindAll(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.User, len(users))
	for i := range users {
		out[i] = *users[i].Sanitized()
	}
	return out, nil
}

func (s *userService) FindOne(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user.Sanitized(), nil
}

// FindByUserName returns (nil, nil) when the user does not exist.
func (s *userService) FindByUserName(ctx context.Context, userName string) (*domain.User, error) {
	user, err := s.users.FindByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user.Sanitized(), nil
}

func (s *userService) Create(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, security.ErrEmptyPassword) || errors.Is(err, security.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = domain.DefaultRole
	}

	user := &domain.User{
		UserName:     in.UserName,
		Name:         strings.TrimSpace(in.Name),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         role,
	}

	created, err := s.users.Insert(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrUserConflict) {
			return nil, fmt.Errorf("%w: user name %q is taken", ErrConflict, in.UserName)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.WithField("user", created.UserName).WithField("id", created.ID).Info("user created")
	return created.Sanitized(), nil
}

func (s *userService) Update(ctx context.Context, userName string, in UpdateUserInput) (*domain.User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	user, err := s.lookup(ctx, userName)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		user.Email = strings.TrimSpace(*in.Email)
	}
	if in.Role != nil && *in.Role != user.Role {
		user.Role = *in.Role
		// tokens carry the role claim
		user.JWT = ""
	}

	saved, err := s.save(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user", userName).Info("user updated")
	return saved.Sanitized(), nil
}

// Delete removes the user and returns the record as it was before deletion.
func (s *userService) Delete(ctx context.Context, userName string) (*domain.User, error) {
	user, err := s.lookup(ctx, userName)
	if err != nil {
		return nil, err
	}

	affected, err := s.users.Delete(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, userName)
	}

	s.log.WithField("user", userName).Info("user deleted")
	return user.Sanitized(), nil
}

// RecoverPassword replaces the stored password with a generated one and
// returns the plaintext. It is not retrievable afterwards.
func (s *userService) RecoverPassword(ctx context.Context, userName string) (string, error) {
	user, err := s.lookup(ctx, userName)
	if err != nil {
		return "", err
	}

	secret, err := s.generator.Generate(s.recovery)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneratorFailure, err)
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return "", fmt.Errorf("hash recovery secret: %w", err)
	}
	user.PasswordHash = hash

	if _, err := s.save(ctx, user); err != nil {
		return "", err
	}

	s.log.WithField("user", userName).Info("password recovered")
	return secret, nil
}

func (s *userService) UpdateJWT(ctx context.Context, userName, token string) (*domain.User, error) {
	user, err := s.lookup(ctx, userName)
	if err != nil {
		return nil, err
	}

	user.JWT = token
	saved, err := s.save(ctx, user)
	if err != nil {
		return nil, err
	}
	return saved.Sanitized(), nil
}

func (s *userService) ChangePassword(ctx context.Context, userName, current, next string) error {
	if next == "" || len(next) > 72 {
		return fmt.Errorf("%w: new password must be 1 to 72 bytes", ErrValidation)
	}

	user, err := s.users.FindByUserName(ctx, userName)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return fmt.Errorf("find user: %w", err)
		}
		s.hasher.Verify(current, s.dummyHash)
		return ErrInvalidCredentials
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash

	if _, err := s.save(ctx, user); err != nil {
		return err
	}
	s.log.WithField("user", userName).Info("password changed")
	return nil
}

func (s *userService) SessionToken(ctx context.Context, userName string) (string, error) {
	user, err := s.lookup(ctx, userName)
	if err != nil {
		return "", err
	}
	return user.JWT, nil
}

func (s *userService) lookup(ctx context.Context, userName string) (*domain.User, error) {
	user, err := s.users.FindByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, userName)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// save maps store failures: a row that vanished is NotFound, anything else the
// store rejects is a Conflict. That includes a row changed by another writer
// since lookup, so a stale read never overwrites a newer password or token.
func (s *userService) save(ctx context.Context, user *domain.User) (*domain.User, error) {
	saved, err := s.users.Save(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, user.UserName)
		}
		return nil, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return saved, nil
}
