package domain

import "time"

// User is an account record managed by the credential service.
// PasswordHash only ever holds a bcrypt hash. Version is bumped by the store
// on every save and guards against lost updates.
type User struct {
	ID           int64
	UserName     string
	Name         string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	JWT          string
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sanitized returns a copy of the user without the password hash and session token.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	clean := *u
	clean.PasswordHash = ""
	clean.JWT = ""
	return &clean
}
