// Package api is the HTTP client of the remote donation API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloodbridge/bloodbridge/internal/shared"
)

const maxBodyBytes = 4 << 20

// Client wraps interactions with the donation API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	authenticated bool
	logger        *slog.Logger
}

// NewClient constructs an anonymous client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithCredentials returns a client whose requests carry the bearer token of
// creds. onExpired runs when the API rejects that token.
func (c *Client) WithCredentials(creds Credentials, onExpired ExpiryHook) *Client {
	clone := *c
	clone.httpClient = &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &BearerTransport{
			Base:        c.httpClient.Transport,
			Credentials: creds,
			OnExpired:   onExpired,
		},
	}
	clone.authenticated = true
	return &clone
}

// Path joins escaped segments into an absolute request path.
func Path(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

// Get issues a read and returns the raw body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &shared.FetchError{Op: path, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(req)
	if err != nil {
		if shared.IsAuthExpired(err) {
			return nil, err
		}
		return nil, &shared.FetchError{Op: path, Message: "request failed", Err: err}
	}
	if status >= 400 {
		fe := &shared.FetchError{Op: path, Status: status, Message: errorMessage(body, status)}
		if status == http.StatusNotFound {
			fe.Err = shared.ErrNotFound
		}
		return nil, fe
	}
	return body, nil
}

// GetJSON issues a read and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, out any) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &shared.FetchError{Op: path, Message: "unexpected response", Err: err}
	}
	return nil
}

// Send issues a write. body is encoded as JSON when non-nil.
func (c *Client) Send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &shared.MutationError{Op: path, Message: "invalid payload", Err: err}
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &shared.MutationError{Op: path, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	status, respBody, err := c.do(req)
	if err != nil {
		if shared.IsAuthExpired(err) {
			return nil, err
		}
		return nil, &shared.MutationError{Op: path, Message: "request failed", Err: err}
	}
	if status >= 400 {
		me := &shared.MutationError{Op: path, Status: status, Message: errorMessage(respBody, status)}
		if status == http.StatusNotFound {
			me.Err = shared.ErrNotFound
		}
		return nil, me
	}
	return respBody, nil
}

// SendJSON issues a write and decodes the response into out.
func (c *Client) SendJSON(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.Send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &shared.MutationError{Op: path, Message: "unexpected response", Err: err}
	}
	return nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Any("error", err))
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, err
	}
	c.logger.Debug("api request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))
	if c.authenticated && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		return resp.StatusCode, body, &shared.AuthExpiredError{Status: resp.StatusCode}
	}
	return resp.StatusCode, body, nil
}

// errorMessage extracts the upstream message from {message} or {error:{message}} bodies.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if err := json.Unmarshal(payload.Error, &flat); err == nil && flat != "" {
			return flat
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}

// WriteResult is the acknowledgement returned by update endpoints.
type WriteResult struct {
	ModifiedCount int
	Acknowledged  bool
}

// DecodeWriteResult reads modifiedCount at the top level or under "result".
func DecodeWriteResult(raw []byte) WriteResult {
	type ack struct {
		ModifiedCount *int  `json:"modifiedCount"`
		Acknowledged  *bool `json:"acknowledged"`
	}
	var payload struct {
		ack
		Result *ack `json:"result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return WriteResult{}
	}
	pick := payload.ack
	if pick.ModifiedCount == nil && payload.Result != nil {
		pick = *payload.Result
	}
	var out WriteResult
	if pick.ModifiedCount != nil {
		out.ModifiedCount = *pick.ModifiedCount
	}
	if pick.Acknowledged != nil {
		out.Acknowledged = *pick.Acknowledged
	}
	return out
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
