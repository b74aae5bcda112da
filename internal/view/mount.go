package view

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// ListSpec describes one list view of a session.
type ListSpec[T any] struct {
	Name    string
	Source  *listctl.Source[T]
	Scope   string
	Load    listctl.LoadFunc
	Mutator listctl.Mutator
	Query   listctl.Query
}

func sessionID(r *http.Request) string {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.ID
	}
	return ""
}

// MountList returns the session's controller for spec, revalidating it
// against the requested query. A freshly mounted controller already fetches
// its initial query.
func MountList[T any](r *http.Request, registry *listctl.Registry, spec ListSpec[T], logger *slog.Logger) *listctl.Controller[T] {
	fresh := false
	ctrl := listctl.Mount(registry, sessionID(r), spec.Name, func() *listctl.Controller[T] {
		fresh = true
		return listctl.NewController(listctl.ControllerConfig[T]{
			Source:  spec.Source,
			Scope:   spec.Scope,
			Load:    spec.Load,
			Mutator: spec.Mutator,
			Initial: spec.Query,
			Logger:  logger,
		})
	})
	if !fresh {
		ctrl.Bind(spec.Load)
		ctrl.Apply(spec.Query)
	}
	return ctrl
}

// AwaitList renders spec once without mounting it. Anonymous pages use it so
// that visitors without a stable session do not accumulate views; the shared
// Source cache still serves repeated queries.
func AwaitList[T any](ctx context.Context, spec ListSpec[T], budget time.Duration, logger *slog.Logger) listctl.Snapshot[T] {
	ctrl := listctl.NewController(listctl.ControllerConfig[T]{
		Source:  spec.Source,
		Scope:   spec.Scope,
		Load:    spec.Load,
		Initial: spec.Query,
		Logger:  logger,
	})
	defer ctrl.Close()
	return ctrl.Await(ctx, budget)
}

// LookupList returns the mounted controller for a mutation, mounting one
// seeded from spec.Query when the view is gone.
func LookupList[T any](r *http.Request, registry *listctl.Registry, spec ListSpec[T], logger *slog.Logger) *listctl.Controller[T] {
	if ctrl, ok := listctl.Lookup[T](registry, sessionID(r), spec.Name); ok {
		ctrl.Bind(spec.Load)
		return ctrl
	}
	return MountList(r, registry, spec, logger)
}

// ReturnQuery reads the list query a mutation form was posted from, carried
// in its "return" field.
func ReturnQuery(r *http.Request, defaults listctl.Query, filters ...string) listctl.Query {
	ret, err := url.Parse(r.PostFormValue("return"))
	if err != nil {
		return defaults.Normalized()
	}
	return listctl.ParseQuery(ret.Query(), defaults, filters...)
}
