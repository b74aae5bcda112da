package location

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

//go:embed dataset.json
var builtinDataset []byte

const cacheKey = "locations:dataset"

// Loader fetches the location dataset once and shares it. Processes pointing
// at the same Redis see the dataset the worker last refreshed.
type Loader struct {
	url        string
	httpClient *http.Client
	redis      *redis.Client
	ttl        time.Duration
	logger     *slog.Logger

	tree  atomic.Pointer[Tree]
	group singleflight.Group
}

// NewLoader constructs a loader. An empty url uses the built-in dataset; a
// nil redis client keeps the dataset in process only.
func NewLoader(url string, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		redis:      client,
		ttl:        ttl,
		logger:     logger,
	}
}

// Load returns the dataset, fetching it on first use.
func (l *Loader) Load(ctx context.Context) (*Tree, error) {
	if t := l.tree.Load(); t != nil {
		return t, nil
	}
	v, err, _ := l.group.Do("load", func() (interface{}, error) {
		if t := l.tree.Load(); t != nil {
			return t, nil
		}
		if t, ok := l.fromCache(ctx); ok {
			l.tree.Store(t)
			return t, nil
		}
		return l.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tree), nil
}

// Refresh refetches the dataset from its source and republishes it.
func (l *Loader) Refresh(ctx context.Context) (*Tree, error) {
	v, err, _ := l.group.Do("refresh", func() (interface{}, error) {
		return l.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tree), nil
}

func (l *Loader) refresh(ctx context.Context) (*Tree, error) {
	raw, err := l.fetch(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := ParseTree(raw)
	if err != nil {
		return nil, fmt.Errorf("location: parse dataset: %w", err)
	}
	l.tree.Store(tree)
	if l.redis != nil {
		if encoded, err := tree.Encode(); err == nil {
			if err := l.redis.Set(ctx, cacheKey, encoded, l.ttl).Err(); err != nil {
				l.logger.Warn("location dataset cache write failed", slog.Any("error", err))
			}
		}
	}
	l.logger.Info("location dataset loaded", slog.Int("districts", tree.Len()))
	return tree, nil
}

func (l *Loader) fromCache(ctx context.Context) (*Tree, bool) {
	if l.redis == nil {
		return nil, false
	}
	raw, err := l.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.Warn("location dataset cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	tree, err := ParseTree(raw)
	if err != nil {
		return nil, false
	}
	return tree, true
}

func (l *Loader) fetch(ctx context.Context) ([]byte, error) {
	if l.url == "" {
		return builtinDataset, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("location: fetch dataset: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("location: dataset returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
