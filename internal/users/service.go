package users

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Payload keys of the list actions.
const (
	payloadStatus = "status"
	payloadRole   = "role"
	payloadEmail  = "email"
)

// Service wraps account administration against the donation API.
type Service struct {
	api      *api.Client
	identity *identity.Manager
	roles    *rbac.Service
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a new Service. roles and audit may be nil.
func NewService(client *api.Client, manager *identity.Manager, roles *rbac.Service, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: client, identity: manager, roles: roles, audit: audit, logger: logger}
}

// Load reads the account list authenticated as the principal of reqCtx.
func (s *Service) Load(reqCtx context.Context) listctl.LoadFunc {
	client := s.identity.Client(reqCtx, s.api)
	return func(ctx context.Context, q listctl.Query) ([]byte, error) {
		return client.Get(ctx, "/regesterDoner", q.Values())
	}
}

// SetStatus blocks or unblocks an account.
func (s *Service) SetStatus(ctx context.Context, actor, id string, status rbac.UserStatus) error {
	client := s.identity.Client(ctx, s.api)
	if _, err := client.Send(ctx, http.MethodPatch, api.Path("users", id, "status"), map[string]string{"status": string(status)}); err != nil {
		return err
	}
	s.record(ctx, actor, "status", id, map[string]any{"status": status})
	return nil
}

// SetRole changes the role of an account. email, when known, has its
// cached role dropped so the change applies on the user's next request.
func (s *Service) SetRole(ctx context.Context, actor, id, email string, role rbac.Role) error {
	client := s.identity.Client(ctx, s.api)
	if _, err := client.Send(ctx, http.MethodPatch, api.Path("users", id, "role"), map[string]string{"role": string(role)}); err != nil {
		return err
	}
	if s.roles != nil && email != "" {
		s.roles.Forget(ctx, email)
	}
	s.record(ctx, actor, "role", id, map[string]any{"role": role})
	return nil
}

// Mutator applies the admin's list actions.
func (s *Service) Mutator(actor string) listctl.Mutator {
	return listctl.MutatorFunc(func(ctx context.Context, action listctl.Action, id string, payload map[string]string) error {
		switch action.Kind {
		case listctl.ActionStatus:
			status, ok := rbac.ParseUserStatus(payload[payloadStatus])
			if !ok {
				return shared.NewValidationError(map[string]string{"status": "unknown status"})
			}
			return s.SetStatus(ctx, actor, id, status)
		case listctl.ActionRole:
			role, ok := rbac.ParseRole(payload[payloadRole])
			if !ok {
				return shared.NewValidationError(map[string]string{"role": "unknown role"})
			}
			return s.SetRole(ctx, actor, id, payload[payloadEmail], role)
		}
		return fmt.Errorf("users: unsupported action %q", action.Kind)
	})
}

func (s *Service) record(ctx context.Context, actor, action, id string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "user",
		EntityID: id,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
