package listctl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Status is the render state of a list view.
type Status int

const (
	StatusLoading Status = iota
	StatusRefreshing
	StatusError
	StatusEmpty
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusRefreshing:
		return "refreshing"
	case StatusError:
		return "error"
	case StatusEmpty:
		return "empty"
	default:
		return "ready"
	}
}

// Snapshot is a consistent view of a controller at one instant.
type Snapshot[T any] struct {
	Query    Query
	Response Response[T]
	// HasData is false until the first response for this view resolves.
	HasData bool
	// IsLoading means no data is available and a fetch is pending.
	IsLoading bool
	// IsRefreshing means Response is stale and a newer fetch is pending.
	IsRefreshing bool
	Err          error
	Window       []PageLink
}

// Status classifies the snapshot. A failed fetch is never reported as empty.
func (s Snapshot[T]) Status() Status {
	switch {
	case s.Err != nil:
		return StatusError
	case !s.HasData:
		return StatusLoading
	case s.IsRefreshing:
		return StatusRefreshing
	case s.Response.Empty():
		return StatusEmpty
	default:
		return StatusReady
	}
}

// ControllerConfig configures a Controller.
type ControllerConfig[T any] struct {
	Source *Source[T]
	// Scope partitions cached pages, normally by principal.
	Scope   string
	Load    LoadFunc
	Mutator Mutator
	Initial Query
	Logger  *slog.Logger
}

// Controller drives one mounted list view: it owns the query state, keeps
// the last resolved page visible while a newer one loads, and applies
// confirmed mutations followed by a refetch. Only the most recently
// requested query may update the visible state.
type Controller[T any] struct {
	source  *Source[T]
	scope   string
	mutator Mutator
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	load    LoadFunc
	state   *State
	current *Response[T]
	err     error
	gen     uint64
	pending chan struct{}
	closed  bool
}

// NewController mounts a controller and starts the first fetch.
func NewController[T any](cfg ControllerConfig[T]) *Controller[T] {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller[T]{
		source:  cfg.Source,
		scope:   cfg.Scope,
		mutator: cfg.Mutator,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		load:    cfg.Load,
		state:   NewState(cfg.Initial),
	}
	c.mu.Lock()
	c.startLocked()
	c.mu.Unlock()
	return c
}

// Bind replaces the loader, typically with one carrying a fresh credential.
func (c *Controller[T]) Bind(load LoadFunc) {
	c.mu.Lock()
	c.load = load
	c.mu.Unlock()
}

// Query returns the current query.
func (c *Controller[T]) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Query()
}

// SetFilter changes a filter, returns to page 1 and refetches.
func (c *Controller[T]) SetFilter(name, value string) {
	c.update(func(s *State) { s.SetFilter(name, value) })
}

// SetSearch changes the search text, returns to page 1 and refetches.
func (c *Controller[T]) SetSearch(search string) {
	c.update(func(s *State) { s.SetSearch(search) })
}

// SetLimit changes the page size, returns to page 1 and refetches.
func (c *Controller[T]) SetLimit(limit int) {
	c.update(func(s *State) { s.SetLimit(limit) })
}

// SetPage moves to another page and refetches.
func (c *Controller[T]) SetPage(page int) {
	c.update(func(s *State) { s.SetPage(page) })
}

// Apply moves to next following State.Apply and revalidates.
func (c *Controller[T]) Apply(next Query) {
	c.update(func(s *State) { s.Apply(next) })
}

// Refresh refetches the current query.
func (c *Controller[T]) Refresh() {
	c.update(func(*State) {})
}

func (c *Controller[T]) update(fn func(*State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	fn(c.state)
	c.startLocked()
}

// startLocked supersedes any pending fetch with one for the current query.
func (c *Controller[T]) startLocked() {
	c.gen++
	gen := c.gen
	q := c.state.Query()
	load := c.load
	done := make(chan struct{})
	c.pending = done
	c.err = nil

	go func() {
		defer close(done)
		resp, err := c.source.Fetch(c.ctx, c.scope, q, load)
		c.resolve(gen, resp, err)
	}()
}

func (c *Controller[T]) resolve(gen uint64, resp Response[T], err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return
	}
	c.pending = nil
	if err != nil {
		c.err = err
		c.logger.Warn("list fetch failed", slog.String("resource", c.source.Resource()), slog.Any("error", err))
		return
	}
	c.current = &resp
	c.state.SetTotalPages(resp.TotalPages)
	// The page may have vanished under us, for instance after a delete.
	if q := c.state.Query(); q.Page > resp.TotalPages && resp.Empty() && resp.Total > 0 {
		c.state.SetPage(resp.TotalPages)
		c.startLocked()
	}
}

// Snapshot returns the current view state without waiting.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	q := c.state.Query()
	snap := Snapshot[T]{
		Query: q,
		Err:   c.err,
	}
	fetching := c.pending != nil
	if c.current != nil {
		snap.HasData = true
		snap.Response = *c.current
		snap.IsRefreshing = fetching
		snap.Window = BuildWindow(q.Page, c.current.TotalPages)
	} else {
		snap.IsLoading = fetching
		snap.Response = Response[T]{Items: []T{}, Page: q.Page, Limit: q.Limit, TotalPages: 1}
		snap.Window = BuildWindow(q.Page, 1)
	}
	return snap
}

// Await waits up to budget for the pending fetch to resolve and returns the
// resulting snapshot. When the budget runs out the snapshot still shows the
// previous page with IsRefreshing set.
func (c *Controller[T]) Await(ctx context.Context, budget time.Duration) Snapshot[T] {
	timer := time.NewTimer(budget)
	defer timer.Stop()
	for {
		c.mu.Lock()
		pending := c.pending
		if pending == nil || c.closed {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			return snap
		}
		c.mu.Unlock()

		select {
		case <-pending:
		case <-timer.C:
			return c.Snapshot()
		case <-ctx.Done():
			return c.Snapshot()
		}
	}
}

// Perform asks for confirmation, then issues the mutation and refetches.
// A cancelled confirmation issues nothing. A failed mutation returns a
// MutationError and leaves the visible list untouched.
func (c *Controller[T]) Perform(ctx context.Context, confirmer Confirmer, action Action, subjectID string, payload map[string]string) (Outcome, error) {
	prompt := Prompt{Action: action, SubjectID: subjectID}
	if payload != nil {
		prompt.Value = payload[string(action.Kind)]
	}
	decision, err := confirmer.Confirm(ctx, prompt)
	if err != nil {
		return 0, err
	}
	switch decision {
	case DecisionCancel:
		return OutcomeCancelled, nil
	case DecisionAccept:
	default:
		return 0, ErrConfirmationRequired
	}

	if c.mutator == nil {
		return 0, &shared.MutationError{Op: string(action.Kind), Message: "action not supported"}
	}
	if err := c.mutator.Mutate(ctx, action, subjectID, payload); err != nil {
		return 0, asMutationError(action, err)
	}

	if err := c.source.Invalidate(ctx); err != nil {
		c.logger.Warn("list cache invalidation failed", slog.String("resource", c.source.Resource()), slog.Any("error", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return OutcomeApplied, nil
	}
	if action.Kind == ActionDelete && c.current != nil && len(c.current.Items) == 1 {
		if q := c.state.Query(); q.Page > 1 {
			c.state.SetPage(q.Page - 1)
		}
	}
	c.startLocked()
	return OutcomeApplied, nil
}

// Close unmounts the controller. Pending results are discarded.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	c.pending = nil
	c.cancel()
}

func asMutationError(action Action, err error) error {
	var (
		mutErr  *shared.MutationError
		authErr *shared.AuthExpiredError
	)
	if errors.As(err, &mutErr) || errors.As(err, &authErr) {
		return err
	}
	return &shared.MutationError{Op: string(action.Kind), Message: err.Error(), Err: err}
}
