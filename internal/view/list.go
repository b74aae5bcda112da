package view

import (
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/location"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// PageSizes are the page sizes offered by list views.
var PageSizes = []int{5, 10, 20, 50}

// ListPage is the render model of the chrome around a list: status panels,
// the pager and the page size picker.
type ListPage struct {
	Path       string
	Query      listctl.Query
	Status     string
	Error      string
	Refreshing bool
	Window     []listctl.PageLink
	TotalPages int
	Total      int
	Limits     []int
}

// NewListPage builds the list chrome for a snapshot of the list at path.
func NewListPage[T any](path string, snap listctl.Snapshot[T]) ListPage {
	lp := ListPage{
		Path:       path,
		Query:      snap.Query,
		Status:     snap.Status().String(),
		Refreshing: snap.IsRefreshing && snap.Err == nil,
		Window:     snap.Window,
		TotalPages: snap.Response.TotalPages,
		Total:      snap.Response.Total,
		Limits:     PageSizes,
	}
	if lp.TotalPages < 1 {
		lp.TotalPages = 1
	}
	if snap.Err != nil {
		lp.Error = shared.UserSafeMessage(snap.Err)
	}
	return lp
}

// Prev is the previous page number.
func (l ListPage) Prev() int {
	if l.Query.Page <= 1 {
		return 1
	}
	return l.Query.Page - 1
}

// Next is the next page number.
func (l ListPage) Next() int {
	if l.Query.Page >= l.TotalPages {
		return l.TotalPages
	}
	return l.Query.Page + 1
}

// LocationFields is the render model of the district and upazila pickers.
type LocationFields struct {
	Districts  []location.District
	DistrictID string
	Upazila    string
	Upazilas   []string
	Errors     map[string]string
}

// NewLocationFields renders sel against tree.
func NewLocationFields(tree *location.Tree, districtID, upazila string, errs map[string]string) LocationFields {
	return LocationFields{
		Districts:  tree.Districts(),
		DistrictID: districtID,
		Upazila:    upazila,
		Upazilas:   tree.Upazilas(districtID),
		Errors:     errs,
	}
}
