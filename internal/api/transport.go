package api

import (
	"context"
	"net/http"
)

// Credentials supplies the bearer token for protected calls.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// ExpiryHook runs when the API rejects the bearer token with 401 or 403.
type ExpiryHook func(ctx context.Context, status int)

// BearerTransport attaches the bearer token to every request and reports
// rejected tokens.
type BearerTransport struct {
	Base        http.RoundTripper
	Credentials Credentials
	OnExpired   ExpiryHook
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	var token string
	if t.Credentials != nil {
		tok, err := t.Credentials.Token(req.Context())
		if err != nil {
			return nil, err
		}
		token = tok
	}
	if token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if token != "" && t.OnExpired != nil &&
		(resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		t.OnExpired(req.Context(), resp.StatusCode)
	}
	return resp, nil
}
