// Package users is the admin view of donor accounts.
package users

import (
	"encoding/json"

	"github.com/bloodbridge/bloodbridge/internal/rbac"
)

// Donor is a registered account as stored by the donation API.
type Donor struct {
	ID         string          `json:"_id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	PhotoURL   string          `json:"photoUrl"`
	BloodGroup string          `json:"bloodGroup"`
	District   string          `json:"district"`
	Upazila    string          `json:"upazila"`
	Role       rbac.Role       `json:"role"`
	Status     rbac.UserStatus `json:"status"`
}

// UnmarshalJSON accepts the older "photo" field and defaults missing roles
// and statuses.
func (d *Donor) UnmarshalJSON(data []byte) error {
	type plain Donor
	var raw struct {
		plain
		Photo string `json:"photo"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Donor(raw.plain)
	if d.PhotoURL == "" {
		d.PhotoURL = raw.Photo
	}
	if role, ok := rbac.ParseRole(string(d.Role)); ok {
		d.Role = role
	} else {
		d.Role = rbac.RoleDonor
	}
	if status, ok := rbac.ParseUserStatus(string(d.Status)); ok {
		d.Status = status
	} else {
		d.Status = rbac.UserActive
	}
	return nil
}

// Blocked reports whether the account is blocked.
func (d Donor) Blocked() bool {
	return d.Status == rbac.UserBlocked
}

// Initial is the first letter of the name, for avatars without a photo.
func (d Donor) Initial() string {
	for _, r := range d.Name {
		return string(r)
	}
	return "U"
}

// ResourceAll names the cached user list.
const ResourceAll = "users.all"

// FilterStatus filters the list by account status. "all" and blank list
// every account.
const FilterStatus = "status"

// Statuses are the filter tabs in display order.
var Statuses = []rbac.UserStatus{rbac.UserActive, rbac.UserBlocked}

// PromotableRoles are the roles an admin may grant from the list.
var PromotableRoles = []rbac.Role{rbac.RoleVolunteer, rbac.RoleAdmin}
