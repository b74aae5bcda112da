package listctl

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// View is a mounted list view.
type View interface {
	Close()
}

type mountedView struct {
	view     View
	session  string
	lastUsed time.Time
}

// Registry keeps the mounted views of every browser session. A view lives
// until its session signs out or it goes unused for the idle TTL.
type Registry struct {
	mu     sync.Mutex
	views  map[string]*mountedView
	idle   time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewRegistry constructs a Registry.
func NewRegistry(idle time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		views:  make(map[string]*mountedView),
		idle:   idle,
		now:    time.Now,
		logger: logger,
	}
}

func viewKey(session, name string) string {
	return session + "|" + name
}

// Mount returns the controller mounted under (session, name), building it on
// first use.
func Mount[T any](r *Registry, session, name string, build func() *Controller[T]) *Controller[T] {
	key := viewKey(session, name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if mv, ok := r.views[key]; ok {
		if ctrl, ok := mv.view.(*Controller[T]); ok {
			mv.lastUsed = r.now()
			return ctrl
		}
		mv.view.Close()
	}
	ctrl := build()
	r.views[key] = &mountedView{view: ctrl, session: session, lastUsed: r.now()}
	return ctrl
}

// Lookup returns a mounted controller without building one.
func Lookup[T any](r *Registry, session, name string) (*Controller[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mv, ok := r.views[viewKey(session, name)]
	if !ok {
		return nil, false
	}
	ctrl, ok := mv.view.(*Controller[T])
	if ok {
		mv.lastUsed = r.now()
	}
	return ctrl, ok
}

// Unmount closes one view.
func (r *Registry) Unmount(session, name string) {
	key := viewKey(session, name)
	r.mu.Lock()
	mv, ok := r.views[key]
	delete(r.views, key)
	r.mu.Unlock()
	if ok {
		mv.view.Close()
	}
}

// UnmountSession closes every view of a session.
func (r *Registry) UnmountSession(session string) int {
	var closing []View
	r.mu.Lock()
	for key, mv := range r.views {
		if mv.session == session {
			closing = append(closing, mv.view)
			delete(r.views, key)
		}
	}
	r.mu.Unlock()
	for _, v := range closing {
		v.Close()
	}
	return len(closing)
}

// Sweep closes views idle for longer than the idle TTL.
func (r *Registry) Sweep() int {
	if r.idle <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idle)
	var closing []View
	r.mu.Lock()
	for key, mv := range r.views {
		if mv.lastUsed.Before(cutoff) {
			closing = append(closing, mv.view)
			delete(r.views, key)
		}
	}
	r.mu.Unlock()
	for _, v := range closing {
		v.Close()
	}
	return len(closing)
}

// Len returns the number of mounted views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Run sweeps idle views until ctx is done, then closes everything.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("unmounted idle list views", slog.Int("count", n))
			}
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*mountedView)
	r.mu.Unlock()
	for _, mv := range views {
		mv.view.Close()
	}
}
