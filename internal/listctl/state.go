package listctl

import "strings"

// State holds the current query of one list view. It is not safe for
// concurrent use; Controller guards it.
type State struct {
	query      Query
	totalPages int
}

// NewState seeds a state from an initial query.
func NewState(initial Query) *State {
	return &State{query: initial.Normalized()}
}

// Query returns a copy of the current query.
func (s *State) Query() Query {
	return s.query.Clone()
}

// TotalPages returns the last known page count, or 0 when unknown.
func (s *State) TotalPages() int {
	return s.totalPages
}

// SetTotalPages records the page count reported by the latest response.
func (s *State) SetTotalPages(n int) {
	if n < 0 {
		n = 0
	}
	s.totalPages = n
}

// SetFilter changes one filter and returns to the first page, even when
// the value is unchanged.
func (s *State) SetFilter(name, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		delete(s.query.Filters, name)
	} else {
		s.query.Filters[name] = value
	}
	s.restart()
}

// SetSearch changes the search text and returns to the first page.
func (s *State) SetSearch(search string) {
	s.query.Search = strings.TrimSpace(search)
	s.restart()
}

// SetLimit changes the page size and returns to the first page.
func (s *State) SetLimit(limit int) {
	if limit < 1 {
		limit = DefaultLimit
	}
	s.query.Limit = limit
	s.restart()
}

// Reset clears filters and search, keeping the page size.
func (s *State) Reset(defaults Query) {
	limit := s.query.Limit
	s.query = defaults.Normalized()
	s.query.Limit = limit
	s.restart()
}

// SetPage moves to page, clamped to [1, TotalPages] when the count is known.
func (s *State) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	if s.totalPages > 0 && page > s.totalPages {
		page = s.totalPages
	}
	s.query.Page = page
}

// Apply moves the state to next. A change of filters, search or page size
// resets to the first page; otherwise only the page moves.
func (s *State) Apply(next Query) {
	next = next.Normalized()
	if !sameSelection(s.query, next) {
		s.query.Filters = next.Filters
		s.query.Search = next.Search
		s.query.Limit = next.Limit
		s.restart()
		return
	}
	s.SetPage(next.Page)
}

func (s *State) restart() {
	s.query.Page = DefaultPage
	s.totalPages = 0
}
