package donations

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/view"
)

// View names in the registry.
const (
	viewPublic = "donations.public"
	viewMine   = "donations.mine"
	viewLatest = "donations.latest"
	viewAll    = "donations.all"
)

// LatestLimit is how many of their own requests donors see on the dashboard.
const LatestLimit = 3

// publicScope is the cache scope of the public list, which is the same for
// every visitor.
const publicScope = "public"

// Lists holds the shared sources of the donation request lists.
type Lists struct {
	Public   *listctl.Source[Request]
	Mine     *listctl.Source[Request]
	All      *listctl.Source[Request]
	registry *listctl.Registry
	logger   *slog.Logger
}

// NewLists constructs the sources over store.
func NewLists(store listctl.Store, ttl time.Duration, registry *listctl.Registry, logger *slog.Logger) *Lists {
	if logger == nil {
		logger = slog.Default()
	}
	source := func(resource string) *listctl.Source[Request] {
		return listctl.NewSource[Request](listctl.SourceConfig{
			Resource: resource,
			Store:    store,
			TTL:      ttl,
			Logger:   logger,
		})
	}
	return &Lists{
		Public:   source(ResourcePublic),
		Mine:     source(ResourceMine),
		All:      source(ResourceAll),
		registry: registry,
		logger:   logger,
	}
}

// Invalidate drops every cached page of every donation list except skip,
// which the caller already refreshed. A write to one request shows up in
// all of them.
func (l *Lists) Invalidate(r *http.Request, skip *listctl.Source[Request]) {
	for _, src := range []*listctl.Source[Request]{l.Public, l.Mine, l.All} {
		if src == skip {
			continue
		}
		if err := src.Invalidate(r.Context()); err != nil {
			l.logger.Warn("list cache invalidation failed", slog.String("resource", src.Resource()), slog.Any("error", err))
		}
	}
}

type mountSpec = view.ListSpec[Request]

func (l *Lists) mount(r *http.Request, spec mountSpec) *listctl.Controller[Request] {
	return view.MountList(r, l.registry, spec, l.logger)
}

func (l *Lists) once(r *http.Request, spec mountSpec, budget time.Duration) listctl.Snapshot[Request] {
	return view.AwaitList(r.Context(), spec, budget, l.logger)
}

func (l *Lists) lookup(r *http.Request, spec mountSpec) *listctl.Controller[Request] {
	return view.LookupList(r, l.registry, spec, l.logger)
}

func principalEmail(r *http.Request) string {
	p, _ := identity.PrincipalFrom(r.Context())
	return p.Email
}
