// Package rbac guards dashboard routes by the role the donation API assigns
// to the signed-in user.
package rbac

import (
	"context"
	"strings"
)

// Role is a user's role in the donation API.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleVolunteer Role = "volunteer"
	RoleDonor     Role = "donor"
)

// Roles lists every role, most privileged first.
var Roles = []Role{RoleAdmin, RoleVolunteer, RoleDonor}

// ParseRole reads a role case-insensitively.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Roles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// Label is the display name of the role.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Admin"
	case RoleVolunteer:
		return "Volunteer"
	case RoleDonor:
		return "Donor"
	}
	return string(r)
}

// Staff reports whether the role may manage every donation request.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleVolunteer
}

// UserStatus is the account status managed by admins.
type UserStatus string

const (
	UserActive  UserStatus = "active"
	UserBlocked UserStatus = "blocked"
)

// ParseUserStatus reads a user status case-insensitively.
func ParseUserStatus(raw string) (UserStatus, bool) {
	switch UserStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case UserActive:
		return UserActive, true
	case UserBlocked:
		return UserBlocked, true
	}
	return "", false
}

type roleKey struct{}

// WithRole stores the role in ctx.
func WithRole(ctx context.Context, r Role) context.Context {
	return context.WithValue(ctx, roleKey{}, r)
}

// RoleFrom returns the role resolved for the request.
func RoleFrom(ctx context.Context) (Role, bool) {
	r, ok := ctx.Value(roleKey{}).(Role)
	return r, ok
}
