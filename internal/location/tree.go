// Package location holds the district/upazila hierarchy used by forms.
package location

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// District is a top-level administrative region.
type District struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Upazilas []string `json:"upazilas"`
}

// UnmarshalJSON accepts numeric or string ids.
func (d *District) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Name     string          `json:"name"`
		Upazilas []string        `json:"upazilas"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id := strings.Trim(string(bytes.TrimSpace(raw.ID)), `"`)
	if id == "" || id == "null" {
		return errors.New("location: district without id")
	}
	d.ID = id
	d.Name = strings.TrimSpace(raw.Name)
	d.Upazilas = raw.Upazilas
	return nil
}

// Tree is an immutable, ordered set of districts.
type Tree struct {
	districts []District
	byID      map[string]int
	byName    map[string]int
}

// NewTree builds a tree. Later duplicates of an id are dropped.
func NewTree(districts []District) *Tree {
	t := &Tree{byID: make(map[string]int), byName: make(map[string]int)}
	for _, d := range districts {
		if _, dup := t.byID[d.ID]; dup {
			continue
		}
		d.Upazilas = append([]string(nil), d.Upazilas...)
		t.byID[d.ID] = len(t.districts)
		t.byName[strings.ToLower(d.Name)] = len(t.districts)
		t.districts = append(t.districts, d)
	}
	return t
}

// ParseTree decodes a dataset document.
func ParseTree(raw []byte) (*Tree, error) {
	var districts []District
	if err := json.Unmarshal(raw, &districts); err != nil {
		return nil, err
	}
	if len(districts) == 0 {
		return nil, errors.New("location: empty dataset")
	}
	return NewTree(districts), nil
}

// Districts returns the districts in dataset order.
func (t *Tree) Districts() []District {
	out := make([]District, len(t.districts))
	copy(out, t.districts)
	return out
}

// District looks a district up by id.
func (t *Tree) District(id string) (District, bool) {
	i, ok := t.byID[id]
	if !ok {
		return District{}, false
	}
	return t.districts[i], true
}

// DistrictByName looks a district up by case-insensitive name.
func (t *Tree) DistrictByName(name string) (District, bool) {
	i, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return District{}, false
	}
	return t.districts[i], true
}

// Upazilas returns the sub-regions of a district, or an empty list when
// the id is unset or unknown.
func (t *Tree) Upazilas(districtID string) []string {
	d, ok := t.District(districtID)
	if !ok {
		return []string{}
	}
	return append([]string{}, d.Upazilas...)
}

// Len returns the number of districts.
func (t *Tree) Len() int {
	return len(t.districts)
}

// Encode serializes the tree back into dataset form.
func (t *Tree) Encode() ([]byte, error) {
	return json.Marshal(t.districts)
}
