package domain

import (
	"fmt"
	"time"
)

// Role enumerates the closed set of account roles. Adding a role requires
// updating every switch that dispatches on it; the compiler-checked dispatch
// lives in the postgres repository's profile insert.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a raw role string against the closed set.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleFaculty:
		return RoleFaculty, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// Account mirrors the persisted representation in the accounts table.
// It is created exactly once, by a successful registration verification,
// and always together with its role profile row.
type Account struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	Role          Role
	ContactNumber string
	CreatedAt     time.Time
}

// StudentProfile is the role-specific record accompanying a student account.
type StudentProfile struct {
	AccountID   string
	DivisionID  string
	RollNumber  string
	YearOfStudy int
}

// FacultyProfile is the role-specific record accompanying a faculty account.
type FacultyProfile struct {
	AccountID   string
	Department  string
	Designation string
}

// AdminProfile is the role-specific record accompanying an admin account.
type AdminProfile struct {
	AccountID string
}

// ProfileData carries the role-specific fields staged during registration.
// Which fields are meaningful depends on the account's role.
type ProfileData struct {
	RollNumber  string
	YearOfStudy int
	Division    string
	Department  string
	Designation string
}

// Division is a lookup row used to resolve a student's division foreign key.
type Division struct {
	ID         string
	Department string
	Name       string
}
