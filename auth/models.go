package auth

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleFreelancer  Role = "freelancer"
)

// Employee id prefixes encode the role an id was issued for.
const (
	PrefixAdmin       = "PB-AM"
	PrefixCoordinator = "PB-PC"
	PrefixFreelancer  = "PB-FR"
)

// Roles returns every role in authority order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleCoordinator, RoleFreelancer}
}

// ParseRole validates a role string.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, isValidRole(role)
}

// Prefix returns the employee id prefix for role.
func (r Role) Prefix() string {
	switch r {
	case RoleAdmin:
		return PrefixAdmin
	case RoleCoordinator:
		return PrefixCoordinator
	case RoleFreelancer:
		return PrefixFreelancer
	default:
		return ""
	}
}

// HasAvailability reports whether the role carries an availability flag.
func (r Role) HasAvailability() bool {
	return r == RoleCoordinator || r == RoleFreelancer
}

// RoleFromEmployeeID derives the role encoded in an employee id prefix.
func RoleFromEmployeeID(id string) (Role, bool) {
	id = strings.ToUpper(strings.TrimSpace(id))
	for _, role := range Roles() {
		if strings.HasPrefix(id, role.Prefix()) {
			return role, true
		}
	}
	return "", false
}

// Employee is the domain representation of a staff member able to act on
// inquiries. It mirrors the employees table and carries no JSON annotations
// so different presentation layers can reuse it.
type Employee struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	Available    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains employee registration data supplied by callers.
// EmployeeID is optional; when empty one is generated from the role prefix.
type RegisterRequest struct {
	EmployeeID string `json:"employee_id"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	FullName   string `json:"full_name"`
	Role       Role   `json:"role"`
}

// LoginRequest contains employee login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
