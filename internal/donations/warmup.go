package donations

import (
	"context"
)

// PublicWarmer prefetches the leading pages of the public list so the first
// visitors after a cache bump are served from the cache.
type PublicWarmer struct {
	lists   *Lists
	service *Service
}

// NewPublicWarmer constructs a PublicWarmer.
func NewPublicWarmer(lists *Lists, service *Service) *PublicWarmer {
	return &PublicWarmer{lists: lists, service: service}
}

// Resource names the warmed list.
func (w *PublicWarmer) Resource() string {
	return ResourcePublic
}

// Warm fetches up to pages pages at the default page size and returns how
// many it stored. It stops early at the last page of the list.
func (w *PublicWarmer) Warm(ctx context.Context, pages int) (int, error) {
	load := w.service.LoadPublic()
	warmed := 0
	for page := 1; page <= pages; page++ {
		q := defaultQuery.Clone()
		q.Page = page
		resp, err := w.lists.Public.Fetch(ctx, publicScope, q, load)
		if err != nil {
			return warmed, err
		}
		warmed++
		if page >= resp.TotalPages {
			break
		}
	}
	return warmed, nil
}
