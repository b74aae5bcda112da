package listctl

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// LoadFunc issues the remote read for q and returns the raw body.
type LoadFunc func(ctx context.Context, q Query) ([]byte, error)

// SourceConfig configures a Source.
type SourceConfig struct {
	// Resource names the list and namespaces its cache keys.
	Resource      string
	Store         Store
	TTL           time.Duration
	FallbackLimit int
	Logger        *slog.Logger
}

// Source is the shared read path of one list resource. Identical
// (scope, query) reads share one in-flight request and one cache entry.
type Source[T any] struct {
	resource      string
	store         Store
	ttl           time.Duration
	fallbackLimit int
	logger        *slog.Logger
	group         singleflight.Group
}

// NewSource constructs a Source. A nil Store falls back to a MemoryStore.
func NewSource[T any](cfg SourceConfig) *Source[T] {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fallback := cfg.FallbackLimit
	if fallback < 1 {
		fallback = DefaultLimit
	}
	return &Source[T]{
		resource:      cfg.Resource,
		store:         store,
		ttl:           cfg.TTL,
		fallbackLimit: fallback,
		logger:        logger.With(slog.String("resource", cfg.Resource)),
	}
}

// Resource returns the resource name.
func (s *Source[T]) Resource() string {
	return s.resource
}

// CacheKey returns the cache key of q for scope at the given version.
func (s *Source[T]) CacheKey(version int64, scope string, q Query) string {
	return s.resource + ":" + strconv.FormatInt(version, 10) + ":" + scope + ":" + q.Key()
}

// Fetch returns the page for q, from cache when possible. The remote read
// runs detached from ctx so that other waiters are not failed when one
// caller gives up; ctx only bounds how long this caller waits.
func (s *Source[T]) Fetch(ctx context.Context, scope string, q Query, load LoadFunc) (Response[T], error) {
	q = q.Normalized()
	version, err := s.store.Version(ctx, s.resource)
	if err != nil {
		s.logger.Warn("list cache version unavailable", slog.Any("error", err))
		version = 0
	}
	key := s.CacheKey(version, scope, q)

	if version > 0 {
		if raw, ok, err := s.store.Get(ctx, key); err != nil {
			s.logger.Warn("list cache read failed", slog.Any("error", err))
		} else if ok {
			var resp Response[T]
			if err := json.Unmarshal(raw, &resp); err == nil {
				recordCacheHit(s.resource)
				return resp, nil
			}
		}
	}
	recordCacheMiss(s.resource)

	flightCtx := context.WithoutCancel(ctx)
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		start := time.Now()
		raw, err := load(flightCtx, q)
		observeFetch(s.resource, time.Since(start))
		if err != nil {
			recordFetchFailed(s.resource)
			return nil, asFetchError(s.resource, err)
		}
		resp := Normalize[T](raw, q, s.fallbackLimit)
		if version > 0 {
			if encoded, err := json.Marshal(resp); err == nil {
				if err := s.store.Set(flightCtx, key, encoded, s.ttl); err != nil {
					s.logger.Warn("list cache write failed", slog.Any("error", err))
				}
			}
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return Response[T]{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Response[T]{}, res.Err
		}
		return res.Val.(Response[T]), nil
	}
}

// Invalidate bumps the resource version so every cached page is refetched.
func (s *Source[T]) Invalidate(ctx context.Context) error {
	return s.store.Bump(ctx, s.resource)
}

func asFetchError(resource string, err error) error {
	var (
		fetchErr *shared.FetchError
		authErr  *shared.AuthExpiredError
	)
	if errors.As(err, &fetchErr) || errors.As(err, &authErr) {
		return err
	}
	return &shared.FetchError{Op: resource, Message: err.Error(), Err: err}
}
