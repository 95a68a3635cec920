package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemText := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	return key, pemText
}

// tokenServer issues access tokens and counts exchange requests.
type tokenServer struct {
	server   *httptest.Server
	requests atomic.Int64
	status   atomic.Int64
	token    atomic.Int64 // distinct token per exchange
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	s := &tokenServer{}
	s.status.Store(http.StatusOK)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		if code := int(s.status.Load()); code != http.StatusOK {
			http.Error(w, "denied", code)
			return
		}
		n := s.token.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":900}`, n)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func newTestJWT(t *testing.T, ts *tokenServer, opts ...JWTOption) *JWTProvider {
	t.Helper()
	_, pemText := testKey(t)
	base := append([]JWTOption{
		WithBaseURL(ts.server.URL),
		WithHTTPClient(resty.New()),
	}, opts...)
	p, err := NewJWT("client-1", pemText, "key-1", base...)
	require.NoError(t, err)
	return p
}

func TestNewJWTValidation(t *testing.T) {
	_, pemText := testKey(t)

	cases := []struct {
		name                     string
		clientID, key, publicKey string
	}{
		{"MissingClientID", "", pemText, "kid"},
		{"MissingKey", "cid", "", "kid"},
		{"MissingPublicKeyID", "cid", pemText, ""},
		{"GarbageKey", "cid", "not a key", "kid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewJWT(tc.clientID, tc.key, tc.publicKey)
			assert.ErrorIs(t, err, ErrAuthFailed)
		})
	}
}

func TestJWTKeyFormats(t *testing.T) {
	key, pemText := testKey(t)

	t.Run("PKCS8PEM", func(t *testing.T) {
		_, err := NewJWT("cid", pemText, "kid")
		assert.NoError(t, err)
	})

	t.Run("PKCS1PEM", func(t *testing.T) {
		der := x509.MarshalPKCS1PrivateKey(key)
		text := string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}))
		_, err := NewJWT("cid", text, "kid")
		assert.NoError(t, err)
	})

	t.Run("RawBase64", func(t *testing.T) {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		require.NoError(t, err)
		raw := base64.StdEncoding.EncodeToString(der)
		// Wrapped lines, as keys pasted from files often arrive.
		var wrapped strings.Builder
		for i := 0; i < len(raw); i += 64 {
			end := i + 64
			if end > len(raw) {
				end = len(raw)
			}
			wrapped.WriteString(raw[i:end])
			wrapped.WriteString("\n")
		}
		_, err = NewJWT("cid", wrapped.String(), "kid")
		assert.NoError(t, err)
	})
}

func TestJWTTokenExchange(t *testing.T) {
	ts := newTokenServer(t)
	p := newTestJWT(t, ts)

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int64(1), ts.requests.Load())

	// Cached until the refresh buffer is reached.
	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int64(1), ts.requests.Load())
}

func TestJWTAssertionShape(t *testing.T) {
	key, pemText := testKey(t)

	var captured struct {
		authorization string
		body          []byte
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.authorization = r.Header.Get("Authorization")
		captured.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","expires_in":900}`)
	}))
	t.Cleanup(server.Close)

	p, err := NewJWT("client-1", pemText, "key-1",
		WithBaseURL(server.URL),
		WithHTTPClient(resty.New()),
	)
	require.NoError(t, err)

	_, err = p.Token(context.Background())
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(captured.authorization, "Bearer "))
	assertion := strings.TrimPrefix(captured.authorization, "Bearer ")

	parsed, err := jwt.ParseWithClaims(assertion, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims := parsed.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, "client-1", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	require.Len(t, claims.Audience, 1)
	assert.Contains(t, server.URL, claims.Audience[0])
	assert.Equal(t, "key-1", parsed.Header["kid"])

	var body struct {
		ClientID  string `json:"client_id"`
		GrantType string `json:"grant_type"`
	}
	require.NoError(t, sonic.Unmarshal(captured.body, &body))
	assert.Equal(t, "client-1", body.ClientID)
	assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", body.GrantType)
}

func TestJWTConcurrentRefreshSingleExchange(t *testing.T) {
	ts := newTokenServer(t)
	p := newTestJWT(t, ts)

	const callers = 50
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			tokens[i], errs[i] = p.Token(context.Background())
		}(i)
	}
	start.Done()
	done.Wait()

	assert.Equal(t, int64(1), ts.requests.Load(),
		"concurrent callers must share one exchange")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tokens[i])
	}
}

func TestJWTProactiveRefresh(t *testing.T) {
	ts := newTokenServer(t)

	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	p := newTestJWT(t, ts, WithClock(clock))

	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// Inside the validity window, outside the refresh buffer: cached.
	advance(5 * time.Minute)
	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int64(1), ts.requests.Load())

	// expires_in is 900s and the buffer 5m, so at 11m the token refreshes
	// even though it is still nominally valid.
	advance(6 * time.Minute)
	token, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, int64(2), ts.requests.Load())
}

func TestJWTExchangeFailure(t *testing.T) {
	ts := newTokenServer(t)
	ts.status.Store(http.StatusUnauthorized)
	p := newTestJWT(t, ts)

	_, err := p.Token(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)

	// Recovery: the failed round leaves no corrupt state behind.
	ts.status.Store(http.StatusOK)
	token, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}
