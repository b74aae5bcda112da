package identity

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
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// ProviderConfig locates the identity provider.
type ProviderConfig struct {
	// BaseURL hosts the accounts:* endpoints.
	BaseURL string
	// TokenURL exchanges refresh tokens.
	TokenURL string
	APIKey   string
	Timeout  time.Duration
}

// ProviderError is a rejection reported by the provider.
type ProviderError struct {
	Status int
	Code   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider: %s (status %d)", e.Code, e.Status)
}

// Message turns provider codes into text for the user.
func (e *ProviderError) Message() string {
	code := e.Code
	if i := strings.Index(code, " "); i > 0 {
		code = code[:i]
	}
	switch code {
	case "EMAIL_EXISTS":
		return "An account with this email already exists."
	case "WEAK_PASSWORD":
		return "The password is too weak."
	case "USER_DISABLED":
		return "This account has been disabled."
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return "Too many attempts. Please try again later."
	case "INVALID_EMAIL":
		return "The email address is not valid."
	}
	return "The identity provider rejected the request."
}

// Provider talks to the identity provider's REST API.
type Provider struct {
	cfg        ProviderConfig
	httpClient *http.Client
	oauth      *oauth2.Config
	logger     *slog.Logger
	now        func() time.Time
}

// NewProvider constructs a Provider.
func NewProvider(cfg ProviderConfig, logger *slog.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	tokenURL := cfg.TokenURL
	if cfg.APIKey != "" {
		tokenURL = withKey(tokenURL, cfg.APIKey)
	}
	return &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		oauth: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		logger: logger,
		now:    time.Now,
	}
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	DisplayName  string `json:"displayName"`
	PhotoURL     string `json:"photoUrl"`
	ProfilePic   string `json:"profilePicture"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

func (p *Provider) session(resp authResponse) (Principal, Credential) {
	photo := resp.PhotoURL
	if photo == "" {
		photo = resp.ProfilePic
	}
	principal := Principal{UID: resp.LocalID, Email: resp.Email, Name: resp.DisplayName, PhotoURL: photo}
	ttl := time.Hour
	if secs, err := strconv.Atoi(resp.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	cred := Credential{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       expiryOf(resp.IDToken, p.now().Add(ttl)),
	}
	return principal, cred
}

// SignIn exchanges an email and password for a credential.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Principal, Credential, error) {
	var resp authResponse
	err := p.call(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		var perr *ProviderError
		if errors.As(err, &perr) && isCredentialRejection(perr.Code) {
			return Principal{}, Credential{}, shared.ErrInvalidCredentials
		}
		return Principal{}, Credential{}, err
	}
	principal, cred := p.session(resp)
	return principal, cred, nil
}

// SignUp creates an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (Principal, Credential, error) {
	var resp authResponse
	err := p.call(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	}, &resp)
	if err != nil {
		return Principal{}, Credential{}, err
	}
	principal, cred := p.session(resp)
	return principal, cred, nil
}

// UpdateProfile changes the display name and photo of the account. Empty
// values leave the current value in place.
func (p *Provider) UpdateProfile(ctx context.Context, cred Credential, name, photoURL string) (Principal, Credential, error) {
	body := map[string]any{"idToken": cred.IDToken, "returnSecureToken": true}
	if name != "" {
		body["displayName"] = name
	}
	if photoURL != "" {
		body["photoUrl"] = photoURL
	}
	var resp authResponse
	if err := p.call(ctx, "accounts:update", body, &resp); err != nil {
		return Principal{}, Credential{}, err
	}
	principal, next := p.session(resp)
	if next.IDToken == "" {
		next = cred
	}
	return principal, next, nil
}

// Lookup returns the account behind an ID token.
func (p *Provider) Lookup(ctx context.Context, idToken string) (Principal, error) {
	var resp struct {
		Users []authResponse `json:"users"`
	}
	if err := p.call(ctx, "accounts:lookup", map[string]any{"idToken": idToken}, &resp); err != nil {
		return Principal{}, err
	}
	if len(resp.Users) == 0 {
		return Principal{}, shared.ErrNotFound
	}
	principal, _ := p.session(resp.Users[0])
	return principal, nil
}

// Refresh exchanges the refresh token for a new ID token. A rejected refresh
// token yields an AuthExpiredError.
func (p *Provider) Refresh(ctx context.Context, cred Credential) (Credential, error) {
	if cred.RefreshToken == "" {
		return Credential{}, &shared.AuthExpiredError{Status: http.StatusUnauthorized}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	expired := &oauth2.Token{RefreshToken: cred.RefreshToken, Expiry: p.now().Add(-time.Minute)}
	tok, err := p.oauth.TokenSource(ctx, expired).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil && rerr.Response.StatusCode < 500 {
			p.logger.Info("refresh token rejected", slog.Int("status", rerr.Response.StatusCode))
			return Credential{}, &shared.AuthExpiredError{Status: rerr.Response.StatusCode}
		}
		return Credential{}, fmt.Errorf("identity: refresh: %w", err)
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		idToken = tok.AccessToken
	}
	next := Credential{
		IDToken:      idToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       expiryOf(idToken, tok.Expiry),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	return next, nil
}

func (p *Provider) call(ctx context.Context, method string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/" + method
	if p.cfg.APIKey != "" {
		endpoint = withKey(endpoint, p.cfg.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity: %s: %w", method, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		code := envelope.Error.Message
		if code == "" {
			code = http.StatusText(resp.StatusCode)
		}
		return &ProviderError{Status: resp.StatusCode, Code: code}
	}
	return json.Unmarshal(raw, out)
}

func isCredentialRejection(code string) bool {
	switch {
	case strings.HasPrefix(code, "EMAIL_NOT_FOUND"),
		strings.HasPrefix(code, "INVALID_PASSWORD"),
		strings.HasPrefix(code, "INVALID_LOGIN_CREDENTIALS"):
		return true
	}
	return false
}

func withKey(endpoint, key string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String()
}
