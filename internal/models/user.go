package models

import (
	"fmt"
	"time"
)

// Role identifies which cabinet a user operates from. It is a closed set:
// unknown role strings are rejected at parse time instead of silently
// falling through role checks.
type Role string

const (
	RoleEmployee       Role = "employee"
	RoleDeputyDirector Role = "deputy_director"
	RoleTreasury       Role = "treasury"
)

// ParseRole converts a raw role string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleEmployee, RoleDeputyDirector, RoleTreasury:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

func (r Role) String() string { return string(r) }

// User represents an account in the approval system. Authentication happens
// outside this service; the identity and role supplied by the caller are
// trusted as-is.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Organization string    `json:"organization"`
	Department   string    `json:"department"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
