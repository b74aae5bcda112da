// Package donations serves donation requests: the public pending list, the
// donor's own requests and the staff view of every request.
package donations

import (
	"github.com/bloodbridge/bloodbridge/internal/api"
)

// Request is a donation request as stored by the donation API.
type Request struct {
	ID             string     `json:"_id"`
	RequesterName  string     `json:"requesterName"`
	RequesterEmail string     `json:"requesterEmail"`
	RecipientName  string     `json:"recipientName"`
	District       string     `json:"recipientDistrict"`
	Upazila        string     `json:"recipientUpazila"`
	Hospital       string     `json:"hospitalName"`
	Address        string     `json:"fullAddress"`
	BloodGroup     string     `json:"bloodGroup"`
	DonationDate   string     `json:"donationDate"`
	DonationTime   string     `json:"donationTime"`
	Message        string     `json:"requestMessage"`
	Status         api.Status `json:"status"`
	DonorName      string     `json:"donorName,omitempty"`
	DonorEmail     string     `json:"donorEmail,omitempty"`
	CreatedAt      api.Time   `json:"createdAt"`
}

// Pledgeable reports whether a donor may still pledge to r.
func (r Request) Pledgeable() bool {
	return r.Status == api.StatusPending
}

// Closable reports whether the requester may mark r done or canceled.
func (r Request) Closable() bool {
	return r.Status == api.StatusInProgress
}

// Editable reports whether the requester may still change r.
func (r Request) Editable() bool {
	return r.Status == api.StatusPending
}

// OwnedBy reports whether email created r.
func (r Request) OwnedBy(email string) bool {
	return email != "" && r.RequesterEmail == email
}

// Resources name the cached lists.
const (
	ResourcePublic = "donations.public"
	ResourceMine   = "donations.mine"
	ResourceAll    = "donations.all"
)

// Filter names.
const (
	FilterStatus     = "status"
	FilterBloodGroup = "bloodGroup"
	FilterEmail      = "email"
)

// OwnerStatuses are the statuses a requester may set on an in-progress
// request.
var OwnerStatuses = []api.Status{api.StatusDone, api.StatusCanceled}

func allowedOwnerStatus(s api.Status) bool {
	for _, o := range OwnerStatuses {
		if o == s {
			return true
		}
	}
	return false
}
