package models

import (
	"strings"
	"time"
)

// SuperAdminRoleID bypasses permission checks
const SuperAdminRoleID = 1

type User struct {
	ID                 string
	FirstName          string
	LastName           string
	Email              string
	Phone              *string
	PasswordHash       string
	RoleID             int
	RoleName           string // joined from roles, empty if the role is inactive
	IsActive           bool
	Is2FARequired      bool
	Is2FAEnabled       bool
	AccountLockedUntil *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// DisplayName joins first and last name
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// LockState computes the account lock lazily from account_locked_until
func (u *User) LockState(now time.Time) LockState {
	if u.AccountLockedUntil != nil && u.AccountLockedUntil.After(now) {
		return LockedUntil(*u.AccountLockedUntil)
	}
	return Unlocked()
}

// UserSummary is the public view of a user returned by login flows
type UserSummary struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	Is2FARequired bool   `json:"is_2fa_required"`
}

// Summary builds the login response view. is_2fa_required tells the client
// that setup is still outstanding.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.DisplayName(),
		Role:          u.RoleName,
		Is2FARequired: u.Is2FARequired && !u.Is2FAEnabled,
	}
}

// Role is a row of the roles table
type Role struct {
	ID           int
	Name         string
	Description  string
	DisplayOrder int
	IsActive     bool
}
