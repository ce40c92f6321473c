package domain

// Role is an opaque tag stored with the user. Nothing in the service
// authorizes on it.
type Role string

const (
	RoleDeveloper Role = "DEVELOPER"
	RoleManager   Role = "MANAGER"
	RoleAdmin     Role = "ADMIN"
)

// DefaultRole is assigned when a new user is created without one.
const DefaultRole = RoleDeveloper

func (r Role) IsValid() bool {
	switch r {
	case RoleDeveloper, RoleManager, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}
