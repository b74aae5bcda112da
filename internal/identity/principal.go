// Package identity signs users in against the identity provider and keeps
// the signed-in principal on the session.
package identity

import (
	"context"
	"time"

	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Principal is the signed-in user.
type Principal struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl"`
}

// DisplayName falls back to the email when no name is set.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// Credential is the bearer material issued by the provider.
type Credential struct {
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry"`
}

// Expired reports whether c expires within skew of now.
func (c Credential) Expired(now time.Time, skew time.Duration) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.Expiry)
}

const sessionKey = "identity"

type record struct {
	Principal  Principal  `json:"principal"`
	Credential Credential `json:"credential"`
}

// Save stores the principal and credential on the session.
func Save(sess *shared.Session, p Principal, c Credential) error {
	if err := sess.SetJSON(sessionKey, record{Principal: p, Credential: c}); err != nil {
		return err
	}
	sess.SetSubject(p.Email)
	return nil
}

// Load reads the principal and credential from the session.
func Load(sess *shared.Session) (Principal, Credential, bool) {
	if sess == nil {
		return Principal{}, Credential{}, false
	}
	var rec record
	if !sess.GetJSON(sessionKey, &rec) || rec.Principal.Email == "" {
		return Principal{}, Credential{}, false
	}
	return rec.Principal, rec.Credential, true
}

// Clear removes the identity from the session.
func Clear(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.Delete(sessionKey)
	sess.SetSubject("")
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal of the request, if signed in.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
