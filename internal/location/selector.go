package location

import (
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrUnknownDistrict is returned for ids not in the tree.
	ErrUnknownDistrict = errors.New("unknown district")
	// ErrUnknownUpazila is returned for upazilas outside the selected district.
	ErrUnknownUpazila = errors.New("upazila does not belong to the selected district")
)

// Selector tracks a district/upazila choice on one form.
type Selector struct {
	tree     *Tree
	district string
	upazila  string
}

// NewSelector starts with nothing selected.
func NewSelector(tree *Tree) *Selector {
	return &Selector{tree: tree}
}

// SelectDistrict chooses a district. Any change of district clears the
// upazila, including when the new district has an upazila of the same name.
func (s *Selector) SelectDistrict(id string) {
	id = strings.TrimSpace(id)
	if id != s.district {
		s.upazila = ""
	}
	s.district = id
}

// SelectUpazila chooses an upazila of the current district. Empty clears it.
func (s *Selector) SelectUpazila(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		s.upazila = ""
		return nil
	}
	for _, u := range s.Options() {
		if u == name {
			s.upazila = name
			return nil
		}
	}
	return ErrUnknownUpazila
}

// DistrictID returns the selected district id.
func (s *Selector) DistrictID() string { return s.district }

// Upazila returns the selected upazila.
func (s *Selector) Upazila() string { return s.upazila }

// Options lists the upazilas of the selected district.
func (s *Selector) Options() []string {
	return s.tree.Upazilas(s.district)
}

// District returns the selected district.
func (s *Selector) District() (District, bool) {
	return s.tree.District(s.district)
}

// Selection is a resolved district/upazila pair.
type Selection struct {
	District District
	Upazila  string
}

// Bind replays a form submission through a selector. prevDistrict is the
// district the form was rendered with; a differing submitted district drops
// the submitted upazila.
func Bind(tree *Tree, prevDistrict, districtID, upazila string) (Selection, *Selector, error) {
	sel := NewSelector(tree)
	sel.SelectDistrict(prevDistrict)
	sel.upazila = strings.TrimSpace(upazila)
	sel.SelectDistrict(districtID)

	d, ok := sel.District()
	if !ok {
		return Selection{}, sel, ErrUnknownDistrict
	}
	if err := sel.SelectUpazila(sel.upazila); err != nil {
		return Selection{}, sel, err
	}
	return Selection{District: d, Upazila: sel.upazila}, sel, nil
}

// FormChoice is the district/upazila part of a submitted form.
type FormChoice struct {
	DistrictID   string
	DistrictName string
	Upazila      string
	// Errors holds messages keyed by form field for choices outside the
	// dataset. Empty fields are left to the form's own validation.
	Errors map[string]string
}

// BindForm reads the district, district_prev and upazila fields of form.
func BindForm(tree *Tree, form url.Values) FormChoice {
	sel, selector, err := Bind(tree, form.Get("district_prev"), form.Get("district"), form.Get("upazila"))
	c := FormChoice{
		DistrictID: selector.DistrictID(),
		Upazila:    selector.Upazila(),
		Errors:     map[string]string{},
	}
	switch {
	case errors.Is(err, ErrUnknownDistrict):
		if c.DistrictID != "" {
			c.Errors["district"] = "Choose a district from the list."
		}
	case errors.Is(err, ErrUnknownUpazila):
		if c.Upazila != "" {
			c.Errors["upazila"] = "Choose an upazila of the selected district."
		}
		c.Upazila = ""
	case err == nil:
		c.DistrictName = sel.District.Name
	}
	return c
}
