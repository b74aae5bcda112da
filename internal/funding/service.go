package funding

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// ErrNoCheckoutURL is returned when the payment backend does not hand out a
// usable checkout page.
var ErrNoCheckoutURL = errors.New("funding: checkout url missing")

// Service wraps the funding endpoints of the donation API.
type Service struct {
	api      *api.Client
	identity *identity.Manager
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a new Service. audit may be nil.
func NewService(client *api.Client, manager *identity.Manager, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: client, identity: manager, audit: audit, logger: logger}
}

// Load reads the funding history.
func (s *Service) Load(reqCtx context.Context) listctl.LoadFunc {
	client := s.identity.Client(reqCtx, s.api)
	return func(ctx context.Context, q listctl.Query) ([]byte, error) {
		return client.Get(ctx, "/fundings", q.Values())
	}
}

// StartCheckout creates a checkout session for the donor and returns the
// payment page to send them to.
func (s *Service) StartCheckout(ctx context.Context, donor identity.Principal, amount float64) (string, error) {
	body := map[string]any{
		"name":   firstNonEmpty(donor.Name, "Anonymous"),
		"email":  donor.Email,
		"amount": amount,
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := s.identity.Client(ctx, s.api).SendJSON(ctx, http.MethodPost, "/create-checkout-session", body, &out); err != nil {
		return "", err
	}
	u, err := url.Parse(out.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", ErrNoCheckoutURL
	}
	err = s.audit.Record(ctx, shared.AuditLog{
		Actor:    donor.Email,
		Action:   "checkout",
		Entity:   "funding",
		EntityID: donor.Email,
		Meta:     map[string]any{"amount": amount},
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", "checkout"), slog.Any("error", err))
	}
	return u.String(), nil
}

// Checkout resolves a finished checkout session.
func (s *Service) Checkout(ctx context.Context, sessionID string) (Checkout, error) {
	var out Checkout
	if err := s.identity.Client(ctx, s.api).GetJSON(ctx, api.Path("checkout-session", sessionID), nil, &out); err != nil {
		return Checkout{}, err
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
