// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"
)

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrInvalidRole     = errors.New("invalid role")
)

type UserID string

type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
	RoleAnonymous  Role = "anonymous"
)

// ParseRole maps the wire value to a Role. An empty value means anonymous.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleAnonymous:
		return RoleAnonymous, nil
	case RoleInstructor, RoleStudent:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
// The username is expected to be already de-duplicated.
func NewUser(id UserID, username string, role Role) *User {
	return &User{ID: id, Username: username, Role: role}
}

// ValidateUsername checks a requested display name against maxLen.
// Non-positive maxLen falls back to MaxUsernameLen.
func ValidateUsername(username string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = MaxUsernameLen
	}
	if len([]rune(username)) > maxLen {
		return ErrUsernameTooLong
	}
	return nil
}
