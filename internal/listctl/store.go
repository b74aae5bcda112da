package listctl

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store caches normalized list pages. Keys embed a per-namespace version so
// that Bump invalidates every page of a resource at once.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Version(ctx context.Context, namespace string) (int64, error)
	Bump(ctx context.Context, namespace string) error
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]memoryItem
	versions map[string]int64
	now      func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]memoryItem),
		versions: make(map[string]int64),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.now().After(item.expires) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.items[key] = memoryItem{value: value, expires: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Version(_ context.Context, namespace string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[namespace] + 1, nil
}

// Bump drops the cached pages of namespace; old versions can never be read
// again. Other namespaces keep theirs.
func (s *MemoryStore) Bump(_ context.Context, namespace string) error {
	prefix := namespace + ":"
	s.mu.Lock()
	s.versions[namespace]++
	for key := range s.items {
		if strings.HasPrefix(key, prefix) {
			delete(s.items, key)
		}
	}
	s.mu.Unlock()
	return nil
}
