package donations

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Service issues donation request calls against the donation API as the
// principal of the request context.
type Service struct {
	api      *api.Client
	identity *identity.Manager
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a Service. audit may be nil.
func NewService(client *api.Client, manager *identity.Manager, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: client, identity: manager, audit: audit, logger: logger}
}

func (s *Service) client(ctx context.Context) *api.Client {
	return s.identity.Client(ctx, s.api)
}

// LoadPublic reads the pending requests shown to everyone.
func (s *Service) LoadPublic() listctl.LoadFunc {
	return func(ctx context.Context, q listctl.Query) ([]byte, error) {
		params := q.Values()
		params.Set(FilterStatus, string(api.StatusPending))
		return s.api.Get(ctx, "/donation-requests", params)
	}
}

// LoadMine reads the requests created by email, authenticated as the
// principal bound to reqCtx.
func (s *Service) LoadMine(reqCtx context.Context, email string) listctl.LoadFunc {
	client := s.client(reqCtx)
	return func(ctx context.Context, q listctl.Query) ([]byte, error) {
		params := q.Values()
		params.Set(FilterEmail, email)
		return client.Get(ctx, "/my-blood-donation-requests", params)
	}
}

// LoadAll reads every request, for staff.
func (s *Service) LoadAll(reqCtx context.Context) listctl.LoadFunc {
	client := s.client(reqCtx)
	return func(ctx context.Context, q listctl.Query) ([]byte, error) {
		return client.Get(ctx, "/blood-donation-requests", q.Values())
	}
}

// Details returns one request.
func (s *Service) Details(ctx context.Context, id string) (Request, error) {
	var req Request
	if err := s.client(ctx).GetJSON(ctx, api.Path("blood-donation-requests-details", id), nil, &req); err != nil {
		return Request{}, fmt.Errorf("donations: details: %w", err)
	}
	if req.ID == "" {
		req.ID = id
	}
	return req, nil
}

// Pledge records donor as the donor of a pending request and moves it in
// progress.
func (s *Service) Pledge(ctx context.Context, id string, donor identity.Principal) error {
	body := map[string]string{
		"status":     string(api.StatusInProgress),
		"donorName":  donor.DisplayName(),
		"donorEmail": donor.Email,
	}
	raw, err := s.client(ctx).Send(ctx, http.MethodPatch, api.Path("update-status", id), body)
	if err != nil {
		return err
	}
	if res := api.DecodeWriteResult(raw); res.Acknowledged && res.ModifiedCount == 0 {
		return &shared.MutationError{Op: "pledge", Status: http.StatusConflict, Message: "This request is no longer pending."}
	}
	s.record(ctx, donor.Email, "pledge", id, map[string]any{"status": api.StatusInProgress})
	return nil
}

// Create submits a new pending request and returns its id when the API
// reports one.
func (s *Service) Create(ctx context.Context, actor string, d Draft) (string, error) {
	payload := d.payload()
	payload["status"] = string(api.StatusPending)
	var out struct {
		InsertedID string `json:"insertedId"`
	}
	if err := s.client(ctx).SendJSON(ctx, http.MethodPost, "/CreatedBloadDonation", payload, &out); err != nil {
		return "", err
	}
	s.record(ctx, actor, "create", firstNonEmpty(out.InsertedID, "new"), nil)
	return out.InsertedID, nil
}

// Update changes the editable fields of a request.
func (s *Service) Update(ctx context.Context, actor, id string, d Draft) error {
	if _, err := s.client(ctx).Send(ctx, http.MethodPatch, api.Path("blood-donation-requests-updateData", id), d.payload()); err != nil {
		return err
	}
	s.record(ctx, actor, "update", id, nil)
	return nil
}

// Delete removes one of the requester's requests.
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	if _, err := s.client(ctx).Send(ctx, http.MethodDelete, api.Path("my-blood-donation-requests", id), nil); err != nil {
		return err
	}
	s.record(ctx, actor, "delete", id, nil)
	return nil
}

// Close lets the requester mark an in-progress request done or canceled.
func (s *Service) Close(ctx context.Context, actor, id string, status api.Status) error {
	if !allowedOwnerStatus(status) {
		return shared.NewValidationError(map[string]string{"status": "choose done or canceled"})
	}
	if _, err := s.client(ctx).Send(ctx, http.MethodPatch, api.Path("my-blood-donation-requests-to-processing", id), map[string]string{"status": string(status)}); err != nil {
		return err
	}
	s.record(ctx, actor, "status", id, map[string]any{"status": status})
	return nil
}

// SetStatus lets staff move a request to any status.
func (s *Service) SetStatus(ctx context.Context, actor, id string, status api.Status) error {
	if _, err := s.client(ctx).Send(ctx, http.MethodPatch, api.Path("blood-donation-requests", id, "status"), map[string]string{"status": string(status)}); err != nil {
		return err
	}
	s.record(ctx, actor, "status", id, map[string]any{"status": status})
	return nil
}

func (s *Service) record(ctx context.Context, actor, action, id string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   action,
		Entity:   "donation_request",
		EntityID: id,
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// OwnerMutator applies the requester's list actions.
func (s *Service) OwnerMutator(actor string) listctl.Mutator {
	return listctl.MutatorFunc(func(ctx context.Context, action listctl.Action, id string, payload map[string]string) error {
		switch action.Kind {
		case listctl.ActionDelete:
			return s.Delete(ctx, actor, id)
		case listctl.ActionStatus:
			status, ok := api.ParseStatus(payload[string(listctl.ActionStatus)])
			if !ok {
				return shared.NewValidationError(map[string]string{"status": "unknown status"})
			}
			return s.Close(ctx, actor, id, status)
		}
		return fmt.Errorf("donations: unsupported action %q", action.Kind)
	})
}

// StaffMutator applies status changes from the staff list.
func (s *Service) StaffMutator(actor string) listctl.Mutator {
	return listctl.MutatorFunc(func(ctx context.Context, action listctl.Action, id string, payload map[string]string) error {
		if action.Kind != listctl.ActionStatus {
			return fmt.Errorf("donations: unsupported action %q", action.Kind)
		}
		status, ok := api.ParseStatus(payload[string(listctl.ActionStatus)])
		if !ok {
			return shared.NewValidationError(map[string]string{"status": "unknown status"})
		}
		return s.SetStatus(ctx, actor, id, status)
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
