package listctl

import (
	"bytes"
	"encoding/json"
	"math"
)

// Response is the normalized page of a list.
type Response[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Empty reports whether the page holds no items.
func (r Response[T]) Empty() bool {
	return len(r.Items) == 0
}

type envelope struct {
	Result     json.RawMessage `json:"result"`
	Total      json.RawMessage `json:"total"`
	Page       json.RawMessage `json:"page"`
	Limit      json.RawMessage `json:"limit"`
	TotalPages json.RawMessage `json:"totalPages"`
}

// maxCount bounds numeric envelope fields.
const maxCount = math.MaxInt32

// Normalize maps the two response shapes the remote API produces onto
// Response. A bare JSON array is a single unpaged page. An object carries
// the items under "result" alongside optional paging fields; fields that
// are missing or not whole numbers fall back to the requested values.
// Elements that do not decode into T are skipped. Normalize never fails:
// anything unrecognizable yields an empty first page.
func Normalize[T any](raw []byte, requested Query, fallbackLimit int) Response[T] {
	if fallbackLimit < 1 {
		fallbackLimit = DefaultLimit
	}
	reqPage := requested.Page
	if reqPage < 1 {
		reqPage = DefaultPage
	}
	reqLimit := requested.Limit
	if reqLimit < 1 {
		reqLimit = fallbackLimit
	}

	empty := Response[T]{Items: []T{}, Page: reqPage, Limit: reqLimit, TotalPages: 1}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return empty
	}

	switch trimmed[0] {
	case '[':
		items := decodeItems[T](trimmed)
		limit := len(items)
		if limit == 0 {
			limit = fallbackLimit
		}
		return Response[T]{Items: items, Total: len(items), Page: 1, Limit: limit, TotalPages: 1}
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return empty
		}
		items := decodeItems[T](env.Result)

		total, ok := count(env.Total)
		if !ok {
			total = 0
		}
		page, ok := count(env.Page)
		if !ok || page < 1 {
			page = reqPage
		}
		limit, ok := count(env.Limit)
		if !ok || limit < 1 {
			limit = reqLimit
		}
		if len(items) > limit {
			limit = len(items)
		}
		totalPages, ok := count(env.TotalPages)
		if !ok || totalPages < 1 {
			totalPages = PageCount(total, limit)
		}
		return Response[T]{Items: items, Total: total, Page: page, Limit: limit, TotalPages: totalPages}
	}
	return empty
}

// PageCount is max(1, ceil(total/limit)).
func PageCount(total, limit int) int {
	if limit < 1 || total < 1 {
		return 1
	}
	pages := (total + limit - 1) / limit
	if pages < 1 {
		return 1
	}
	return pages
}

func decodeItems[T any](raw json.RawMessage) []T {
	items := []T{}
	if len(raw) == 0 {
		return items
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return items
	}
	for _, elem := range elems {
		var item T
		if err := json.Unmarshal(elem, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

// count accepts only non-negative whole JSON numbers within range.
func count(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maxCount || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
