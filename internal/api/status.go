package api

import (
	"encoding/json"
	"strings"
)

// Status is the lifecycle state of a donation request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "inprogress"
	StatusDone       Status = "done"
	StatusCanceled   Status = "canceled"
	StatusApproved   Status = "approved"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusDone, StatusCanceled, StatusApproved}

// ParseStatus maps any spelling the API has used onto the canonical value.
func ParseStatus(raw string) (Status, bool) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	norm = strings.NewReplacer("-", "", "_", "", " ", "").Replace(norm)
	switch norm {
	case "pending":
		return StatusPending, true
	case "inprogress":
		return StatusInProgress, true
	case "done", "completed":
		return StatusDone, true
	case "canceled", "cancelled":
		return StatusCanceled, true
	case "approved":
		return StatusApproved, true
	}
	return "", false
}

// Label is the human form of s.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In progress"
	case StatusDone:
		return "Done"
	case StatusCanceled:
		return "Canceled"
	case StatusApproved:
		return "Approved"
	}
	return "Unknown"
}

// UnmarshalJSON canonicalizes incoming spellings. Unknown values are kept
// verbatim so they still display.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, ok := ParseStatus(raw); ok {
		*s = parsed
		return nil
	}
	*s = Status(raw)
	return nil
}

// BloodGroups lists the accepted blood groups.
var BloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// ValidBloodGroup reports whether g is one of BloodGroups.
func ValidBloodGroup(g string) bool {
	for _, bg := range BloodGroups {
		if bg == g {
			return true
		}
	}
	return false
}
