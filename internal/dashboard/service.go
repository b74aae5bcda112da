// Package dashboard renders the signed-in home page: the donor's latest
// requests or, for staff, platform totals.
package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/listctl"
)

const requestTimeout = 5 * time.Second

// Stats are the platform totals shown to staff.
type Stats struct {
	Users    int
	Requests int
	Funding  float64
}

// Service reads the totals from the donation API.
type Service struct {
	api      *api.Client
	identity *identity.Manager
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(client *api.Client, manager *identity.Manager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: client, identity: manager, logger: logger}
}

// Stats fetches the three totals concurrently. The first failure cancels the
// remaining calls.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	client := s.identity.Client(ctx, s.api)
	countQuery := url.Values{"page": {"1"}, "limit": {"1"}}

	var stats Stats
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw, err := client.Get(ctx, "/regesterDoner", countQuery)
		if err != nil {
			return err
		}
		stats.Users = total(raw)
		return nil
	})

	g.Go(func() error {
		raw, err := client.Get(ctx, "/blood-donation-requests", countQuery)
		if err != nil {
			return err
		}
		stats.Requests = total(raw)
		return nil
	})

	g.Go(func() error {
		raw, err := client.Get(ctx, "/fundings", nil)
		if err != nil {
			return err
		}
		stats.Funding = fundingTotal(raw)
		return nil
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func total(raw []byte) int {
	return listctl.Normalize[json.RawMessage](raw, listctl.Query{Page: 1, Limit: 1}, 1).Total
}

// fundingTotal prefers the backend's running total and otherwise sums the
// returned records.
func fundingTotal(raw []byte) float64 {
	var summary struct {
		TotalAmount *float64 `json:"totalAmount"`
	}
	if json.Unmarshal(raw, &summary) == nil && summary.TotalAmount != nil {
		return *summary.TotalAmount
	}
	resp := listctl.Normalize[struct {
		Amount float64 `json:"amount"`
	}](raw, listctl.Query{Page: 1, Limit: listctl.DefaultLimit}, listctl.DefaultLimit)
	var sum float64
	for _, f := range resp.Items {
		sum += f.Amount
	}
	return sum
}
