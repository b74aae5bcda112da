package listctl

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPage is the first page of every list.
	DefaultPage = 1
	// DefaultLimit is the page size used when none is requested.
	DefaultLimit = 10
)

// Reserved parameter names. Filters never use them.
const (
	ParamSearch = "search"
	ParamPage   = "page"
	ParamLimit  = "limit"
)

// Query is the filter, search and paging tuple behind a list view.
type Query struct {
	Filters map[string]string
	Search  string
	Page    int
	Limit   int
}

// Clone returns a deep copy of q.
func (q Query) Clone() Query {
	out := q
	out.Filters = make(map[string]string, len(q.Filters))
	for k, v := range q.Filters {
		out.Filters[k] = v
	}
	return out
}

// Normalized returns q with page and limit defaulted and blank filters dropped.
func (q Query) Normalized() Query {
	out := q.Clone()
	for k, v := range out.Filters {
		if strings.TrimSpace(v) == "" {
			delete(out.Filters, k)
		}
	}
	out.Search = strings.TrimSpace(out.Search)
	if out.Page < 1 {
		out.Page = DefaultPage
	}
	if out.Limit < 1 {
		out.Limit = DefaultLimit
	}
	return out
}

// Filter returns the value of a single filter, or "".
func (q Query) Filter(name string) string {
	return q.Filters[name]
}

// Values encodes q as request parameters.
func (q Query) Values() url.Values {
	n := q.Normalized()
	v := url.Values{}
	for k, val := range n.Filters {
		v.Set(k, val)
	}
	if n.Search != "" {
		v.Set(ParamSearch, n.Search)
	}
	v.Set(ParamPage, strconv.Itoa(n.Page))
	v.Set(ParamLimit, strconv.Itoa(n.Limit))
	return v
}

// Key is the canonical identity of q. Equal queries produce equal keys
// regardless of filter insertion order.
func (q Query) Key() string {
	return q.Values().Encode()
}

// URL returns path with q encoded as its query string.
func (q Query) URL(path string) string {
	return path + "?" + q.Values().Encode()
}

// PageURL returns the URL of page on the same filter set.
func (q Query) PageURL(path string, page int) string {
	next := q.Clone()
	next.Page = page
	return next.URL(path)
}

// sameSelection reports whether a and b differ only by page.
func sameSelection(a, b Query) bool {
	a, b = a.Normalized(), b.Normalized()
	if a.Search != b.Search || a.Limit != b.Limit || len(a.Filters) != len(b.Filters) {
		return false
	}
	for k, v := range a.Filters {
		if b.Filters[k] != v {
			return false
		}
	}
	return true
}

// ParseQuery reads a Query from request parameters. Only the named filters
// are kept; defaults fill in anything missing.
func ParseQuery(values url.Values, defaults Query, filters ...string) Query {
	q := defaults.Clone()
	for _, name := range filters {
		if raw, ok := values[name]; ok && len(raw) > 0 {
			q.Filters[name] = strings.TrimSpace(raw[0])
		}
	}
	if values.Has(ParamSearch) {
		q.Search = values.Get(ParamSearch)
	}
	if page, err := strconv.Atoi(values.Get(ParamPage)); err == nil {
		q.Page = page
	}
	if limit, err := strconv.Atoi(values.Get(ParamLimit)); err == nil {
		q.Limit = limit
	}
	return q.Normalized()
}
