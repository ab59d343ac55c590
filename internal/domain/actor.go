package domain

// Role enumerates caller roles attached by the identity layer.
type Role string

const (
	RoleUser       Role = "USUARIO"
	RoleTechnician Role = "TECNICO"
	RoleAdmin      Role = "ADMIN"
)

// IsValid reports whether the role is recognized.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleTechnician, RoleAdmin:
		return true
	}
	return false
}

// Actor is the verified caller handed to the engine by the identity layer.
type Actor struct {
	ID    string
	Name  string
	Email string
	Role  Role
}
