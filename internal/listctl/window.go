package listctl

import "strconv"

// compactWindow is the largest page count shown without ellipses.
const compactWindow = 7

// PageLink is one entry of a pagination window.
type PageLink struct {
	Number   int
	Current  bool
	Ellipsis bool
}

func (p PageLink) String() string {
	if p.Ellipsis {
		return "…"
	}
	return strconv.Itoa(p.Number)
}

// BuildWindow returns the page links shown around current: the first and
// last page always, current and up to two neighbours on each side, and an
// ellipsis wherever pages are skipped. Up to seven pages are listed in
// full. current is clamped to [1, total].
func BuildWindow(current, total int) []PageLink {
	if total < 1 {
		total = 1
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	link := func(n int) PageLink { return PageLink{Number: n, Current: n == current} }

	if total <= compactWindow {
		links := make([]PageLink, 0, total)
		for n := 1; n <= total; n++ {
			links = append(links, link(n))
		}
		return links
	}

	links := []PageLink{link(1)}
	if current > 4 {
		links = append(links, PageLink{Ellipsis: true})
	}
	start := max(2, current-2)
	end := min(total-1, current+2)
	for n := start; n <= end; n++ {
		links = append(links, link(n))
	}
	if current < total-3 {
		links = append(links, PageLink{Ellipsis: true})
	}
	return append(links, link(total))
}
