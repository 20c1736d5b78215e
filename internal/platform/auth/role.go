package auth

import "fmt"

// Role is the closed set of account roles.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// ParseRole accepts only the exact lowercase role names.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RolePatient, RoleDoctor:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role: %q", s)
}

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

func (r Role) String() string { return string(r) }
