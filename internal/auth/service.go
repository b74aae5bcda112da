package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Provider is the part of the identity provider the auth flows use.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (identity.Principal, identity.Credential, error)
	SignUp(ctx context.Context, email, password string) (identity.Principal, identity.Credential, error)
	UpdateProfile(ctx context.Context, cred identity.Credential, name, photoURL string) (identity.Principal, identity.Credential, error)
}

// Uploader stores avatar images.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Avatar is an uploaded image file.
type Avatar struct {
	Filename string
	Body     io.Reader
}

// ErrAvatarUpload wraps failures of the image host.
var ErrAvatarUpload = errors.New("auth: avatar upload failed")

// Service wraps the account flows against the identity provider and the
// donation API.
type Service struct {
	provider Provider
	images   Uploader
	client   *api.Client
	manager  *identity.Manager
	roles    *rbac.Service
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a Service. images may be nil when no image host is
// configured.
func NewService(provider Provider, images Uploader, client *api.Client, manager *identity.Manager, roles *rbac.Service, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, images: images, client: client, manager: manager, roles: roles, audit: audit, logger: logger}
}

// AvatarsEnabled reports whether avatar uploads are possible.
func (s *Service) AvatarsEnabled() bool {
	return s.images != nil
}

// Authenticate validates email and password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (identity.Principal, identity.Credential, error) {
	return s.provider.SignIn(ctx, strings.TrimSpace(email), password)
}

func (s *Service) upload(ctx context.Context, avatar *Avatar) (string, error) {
	if avatar == nil || s.images == nil {
		return "", nil
	}
	link, err := s.images.Upload(ctx, avatar.Filename, avatar.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAvatarUpload, err)
	}
	return link, nil
}

// Register creates the account, sets its display name and photo, and saves
// the donor profile. The profile is created active with the donor role.
func (s *Service) Register(ctx context.Context, reg Registration, avatar *Avatar) (identity.Principal, identity.Credential, error) {
	photo, err := s.upload(ctx, avatar)
	if err != nil {
		return identity.Principal{}, identity.Credential{}, err
	}
	principal, cred, err := s.provider.SignUp(ctx, reg.Email, reg.Password)
	if err != nil {
		return identity.Principal{}, identity.Credential{}, err
	}
	if updated, next, err := s.provider.UpdateProfile(ctx, cred, reg.Name, photo); err != nil {
		s.logger.Warn("set display name after sign-up", slog.Any("error", err))
		principal.Name = reg.Name
		principal.PhotoURL = photo
	} else {
		principal, cred = updated, next
		if principal.Email == "" {
			principal.Email = reg.Email
		}
	}

	donor := map[string]string{
		"email":      reg.Email,
		"name":       reg.Name,
		"bloodGroup": reg.BloodGroup,
		"district":   reg.DistrictName,
		"upazila":    reg.Upazila,
		"photoUrl":   photo,
		"role":       string(rbac.RoleDonor),
		"status":     string(rbac.UserActive),
	}
	authed := s.client.WithCredentials(api.StaticToken(cred.IDToken), nil)
	if _, err := authed.Send(ctx, http.MethodPost, "/regesterDoner", donor); err != nil {
		return identity.Principal{}, identity.Credential{}, fmt.Errorf("auth: save donor profile: %w", err)
	}
	s.record(ctx, reg.Email, "register", nil)
	return principal, cred, nil
}

// UpdateProfile changes the signed-in donor's name, location and optionally
// the avatar, on both the identity provider and the donation API. It
// returns the refreshed principal and credential.
func (s *Service) UpdateProfile(ctx context.Context, current identity.Principal, cred identity.Credential, p Profile, avatar *Avatar) (identity.Principal, identity.Credential, error) {
	photo, err := s.upload(ctx, avatar)
	if err != nil {
		return identity.Principal{}, identity.Credential{}, err
	}
	if photo == "" {
		photo = current.PhotoURL
	}
	principal, next, err := s.provider.UpdateProfile(ctx, cred, p.Name, photo)
	if err != nil {
		return identity.Principal{}, identity.Credential{}, err
	}
	if principal.Email == "" {
		principal.Email = current.Email
	}
	if principal.UID == "" {
		principal.UID = current.UID
	}
	body := map[string]string{
		"email":    current.Email,
		"name":     p.Name,
		"district": p.DistrictName,
		"upazila":  p.Upazila,
		"photoUrl": photo,
	}
	if _, err := s.manager.Client(ctx, s.client).Send(ctx, http.MethodPut, "/update/profile", body); err != nil {
		return identity.Principal{}, identity.Credential{}, err
	}
	s.record(ctx, current.Email, "update_profile", nil)
	return principal, next, nil
}

// Forget drops cached authorization data of email.
func (s *Service) Forget(ctx context.Context, email string) {
	if s.roles != nil {
		s.roles.Forget(ctx, email)
	}
}

func (s *Service) record(ctx context.Context, actor, action string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "account",
		EntityID: actor,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
