package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tracekit/tracekit-go/internal/logging"
)

const (
	grantTypeJWTBearer = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// DefaultTokenPath is the token-exchange endpoint path.
	DefaultTokenPath = "/api/permission/oauth2/token"

	// DefaultAssertionTTL bounds the lifetime of the signed assertion.
	DefaultAssertionTTL = 15 * time.Minute

	// DefaultRefreshBuffer triggers a refresh this long before true expiry so
	// callers never observe a token inside the expiry window.
	DefaultRefreshBuffer = 5 * time.Minute
)

// JWTProvider exchanges an RS256-signed assertion for an OAuth access token
// and refreshes it proactively. Many readers share a valid token; the first
// caller past the refresh threshold performs the exchange while concurrent
// callers wait on the same in-flight result.
type JWTProvider struct {
	clientID string
	keyID    string
	key      *rsa.PrivateKey

	baseURL   string
	tokenPath string
	client    *resty.Client
	logger    *logging.Logger

	ttl    time.Duration
	buffer time.Duration
	now    func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

// JWTOption configures a JWTProvider.
type JWTOption func(*JWTProvider)

// WithBaseURL sets the base URL of the token endpoint host.
func WithBaseURL(baseURL string) JWTOption {
	return func(p *JWTProvider) { p.baseURL = baseURL }
}

// WithHTTPClient sets the HTTP client used for the token exchange.
func WithHTTPClient(client *resty.Client) JWTOption {
	return func(p *JWTProvider) { p.client = client }
}

// WithLogger sets the provider's logger.
func WithLogger(l *zap.Logger) JWTOption {
	return func(p *JWTProvider) { p.logger = logging.Wrap(l) }
}

// WithRefreshBuffer overrides the proactive refresh window.
func WithRefreshBuffer(d time.Duration) JWTOption {
	return func(p *JWTProvider) { p.buffer = d }
}

// WithClock overrides the time source. For tests.
func WithClock(now func() time.Time) JWTOption {
	return func(p *JWTProvider) { p.now = now }
}

// NewJWT creates a JWT-OAuth provider from a client id, a PEM or raw-base64
// PKCS#8/PKCS#1 private key, and the public key id registered with the
// collector.
func NewJWT(clientID, privateKeyPEM, publicKeyID string, opts ...JWTOption) (*JWTProvider, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrAuthFailed)
	}
	if privateKeyPEM == "" {
		return nil, fmt.Errorf("%w: private key is required", ErrAuthFailed)
	}
	if publicKeyID == "" {
		return nil, fmt.Errorf("%w: public key id is required", ErrAuthFailed)
	}

	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	p := &JWTProvider{
		clientID:  clientID,
		keyID:     publicKeyID,
		key:       key,
		baseURL:   "https://api.tracekit.dev",
		tokenPath: DefaultTokenPath,
		client:    resty.New(),
		logger:    logging.NewNop(),
		ttl:       DefaultAssertionTTL,
		buffer:    DefaultRefreshBuffer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Scheme implements Provider.
func (p *JWTProvider) Scheme() string {
	return SchemeBearer
}

// Token implements Provider. If the cached token is absent or inside the
// refresh buffer, exactly one caller performs the exchange; all concurrent
// callers observe that round's result, success or failure.
func (p *JWTProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token, ok := p.current()
	p.mu.RUnlock()
	if ok {
		return token, nil
	}

	v, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		// Re-check: a refresh that completed while we queued serves us too.
		p.mu.RLock()
		token, ok := p.current()
		p.mu.RUnlock()
		if ok {
			return token, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// current reports the cached token if it is outside the refresh buffer.
// Callers must hold p.mu.
func (p *JWTProvider) current() (string, bool) {
	if p.token == "" {
		return "", false
	}
	if !p.now().Before(p.expiry.Add(-p.buffer)) {
		return "", false
	}
	return p.token, true
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type tokenRequest struct {
	ClientID  string `json:"client_id"`
	GrantType string `json:"grant_type"`
}

// refresh performs one token exchange and atomically publishes the result.
// On failure the prior token, if any, is left untouched.
func (p *JWTProvider) refresh(ctx context.Context) (string, error) {
	assertion, err := p.signAssertion()
	if err != nil {
		return "", err
	}

	var body tokenResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Authorization", SchemeBearer+" "+assertion).
		SetBody(tokenRequest{ClientID: p.clientID, GrantType: grantTypeJWTBearer}).
		SetResult(&body).
		Post(strings.TrimSuffix(p.baseURL, "/") + p.tokenPath)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrAuthFailed, err)
	}
	if !statusOK(resp.StatusCode()) {
		return "", fmt.Errorf("%w: token exchange status %d: %s",
			ErrAuthFailed, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access_token", ErrAuthFailed)
	}

	expiry := p.now().Add(time.Duration(body.ExpiresIn) * time.Second)

	p.mu.Lock()
	p.token = body.AccessToken
	p.expiry = expiry
	p.mu.Unlock()

	p.logger.Debug("oauth token refreshed", zap.Time("expires_at", expiry))
	return body.AccessToken, nil
}

// signAssertion builds the short-lived RS256 assertion presented to the
// token endpoint.
func (p *JWTProvider) signAssertion() (string, error) {
	host := p.baseURL
	if u, err := url.Parse(p.baseURL); err == nil && u.Host != "" {
		host = u.Host
	}

	now := p.now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.clientID,
		Audience:  jwt.ClaimStrings{host},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		ID:        uuid.NewString(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = p.keyID

	signed, err := tok.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("%w: sign assertion: %v", ErrAuthFailed, err)
	}
	return signed, nil
}

// parsePrivateKey accepts PKCS#8 or PKCS#1 RSA keys, with or without PEM
// armor.
func parsePrivateKey(raw string) (*rsa.PrivateKey, error) {
	var der []byte
	if block, _ := pem.Decode([]byte(raw)); block != nil {
		der = block.Bytes
	} else {
		compact := strings.Map(func(r rune) rune {
			if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, raw)
		decoded, err := base64.StdEncoding.DecodeString(compact)
		if err != nil {
			return nil, fmt.Errorf("%w: private key is neither PEM nor base64", ErrAuthFailed)
		}
		der = decoded
	}

	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: private key is not RSA", ErrAuthFailed)
		}
		return rsaKey, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: failed to parse private key", ErrAuthFailed)
}

// statusOK reports whether code is a 2xx status.
func statusOK(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}
