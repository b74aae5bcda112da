package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
)

// Service resolves roles from the donation API, caching them in Redis.
type Service struct {
	api      *api.Client
	identity *identity.Manager
	cache    *redis.Client
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService constructs a Service. A nil cache disables caching.
func NewService(client *api.Client, manager *identity.Manager, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: client, identity: manager, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(email string) string {
	return "rbac:role:" + strings.ToLower(email)
}

// Role returns the role of email. Accounts the API does not know yet are
// donors.
func (s *Service) Role(ctx context.Context, email string) (Role, error) {
	if email == "" {
		return "", errors.New("rbac: email required")
	}
	if s.cache != nil && s.ttl > 0 {
		raw, err := s.cache.Get(ctx, cacheKey(email)).Result()
		if err == nil {
			if role, ok := ParseRole(raw); ok {
				return role, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn("role cache read failed", slog.Any("error", err))
		}
	}

	v, err, _ := s.group.Do(strings.ToLower(email), func() (any, error) {
		return s.fetch(ctx, email)
	})
	if err != nil {
		return "", err
	}
	role := v.(Role)
	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, cacheKey(email), string(role), s.ttl).Err(); err != nil {
			s.logger.Warn("role cache write failed", slog.Any("error", err))
		}
	}
	return role, nil
}

func (s *Service) fetch(ctx context.Context, email string) (Role, error) {
	var payload struct {
		Role string `json:"role"`
	}
	client := s.identity.Client(ctx, s.api)
	if err := client.GetJSON(ctx, api.Path("regesterDoner", "role", email), nil, &payload); err != nil {
		if api.IsNotFound(err) {
			return RoleDonor, nil
		}
		return "", fmt.Errorf("rbac: resolve role: %w", err)
	}
	role, ok := ParseRole(payload.Role)
	if !ok {
		return RoleDonor, nil
	}
	return role, nil
}

// Forget drops the cached role of email, for instance after an admin
// changed it.
func (s *Service) Forget(ctx context.Context, email string) {
	if s.cache == nil || email == "" {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(email)).Err(); err != nil {
		s.logger.Warn("role cache delete failed", slog.Any("error", err))
	}
}
