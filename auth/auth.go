// Package auth supplies bearer credentials for outbound SDK calls.
//
// Two providers are included: a static token provider and a JWT-OAuth
// provider that exchanges a short-lived signed assertion for an access token
// and refreshes it proactively before expiry. Both are safe for unlimited
// concurrent callers.
package auth

import (
	"context"
	"errors"
)

// SchemeBearer is the authorization scheme used by both built-in providers.
const SchemeBearer = "Bearer"

// ErrAuthFailed is returned when a credential cannot be obtained, typically
// because the token exchange failed. A failed refresh never corrupts shared
// token state; the next call retries cleanly.
var ErrAuthFailed = errors.New("auth: authentication failed")

// Provider supplies a valid bearer credential for outbound calls.
type Provider interface {
	// Token returns a credential valid at the time of the call.
	Token(ctx context.Context) (string, error)

	// Scheme returns the authorization scheme, e.g. "Bearer".
	Scheme() string
}

// StaticProvider returns a fixed token. It holds no state machine.
type StaticProvider struct {
	token string
}

// NewStatic creates a provider around a fixed access token.
func NewStatic(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// Token implements Provider.
func (p *StaticProvider) Token(context.Context) (string, error) {
	if p.token == "" {
		return "", ErrAuthFailed
	}
	return p.token, nil
}

// Scheme implements Provider.
func (p *StaticProvider) Scheme() string {
	return SchemeBearer
}
