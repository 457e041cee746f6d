package auth

import "strings"

// Role is the closed set of account kinds. Anything that does not parse to
// Administrator or Faculty is RoleUnknown, which receives the least
// privilege a non-administrator can have.
type Role int

const (
	RoleUnknown Role = iota
	RoleAdministrator
	RoleFaculty
)

const (
	RoleNameAdministrator = "administrator"
	RoleNameFaculty       = "faculty"
	roleNameUnknown       = "unknown"
)

// ParseRole maps a stored type name to a Role. Matching is case
// insensitive, so "Administrator" and "ADMINISTRATOR" are the same role.
func ParseRole(name string) Role {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case RoleNameAdministrator:
		return RoleAdministrator
	case RoleNameFaculty:
		return RoleFaculty
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdministrator:
		return RoleNameAdministrator
	case RoleFaculty:
		return RoleNameFaculty
	default:
		return roleNameUnknown
	}
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == RoleAdministrator || r == RoleFaculty
}

// IsAdministrator reports whether r has full access.
func (r Role) IsAdministrator() bool {
	return r == RoleAdministrator
}

// CanManageAccounts gates account creation, edits and deletion.
func (r Role) CanManageAccounts() bool {
	return r.IsAdministrator()
}

// CanOwnProfile reports whether an account of this role may be linked to
// a staff profile.
func (r Role) CanOwnProfile() bool {
	return r == RoleFaculty
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText never fails: unrecognized names decode to RoleUnknown.
func (r *Role) UnmarshalText(text []byte) error {
	*r = ParseRole(string(text))
	return nil
}
