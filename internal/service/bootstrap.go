package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"auth-service/internal/domain"
)

// EnsureAdmin creates an ADMIN account named userName unless one by that name
// already exists. An existing account is left as is, whatever its role.
func EnsureAdmin(ctx context.Context, users UserService, userName, password string, log logrus.FieldLogger) error {
	existing, err := users.FindByUserName(ctx, userName)
	if err != nil {
		return fmt.Errorf("look up admin: %w", err)
	}
	if existing != nil {
		if existing.Role != domain.RoleAdmin {
			log.WithField("user", userName).WithField("role", existing.Role).Warn("configured admin exists without ADMIN role")
		}
		return nil
	}

	if _, err := users.Create(ctx, CreateUserInput{
		UserName: userName,
		Password: password,
		Role:     domain.RoleAdmin,
	}); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	log.WithField("user", userName).Info("admin account created")
	return nil
}
