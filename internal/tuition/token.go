package tuition

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/tuitionchat/tuition-chat-go/internal/config"
	apperrors "github.com/tuitionchat/tuition-chat-go/internal/errors"
	"github.com/tuitionchat/tuition-chat-go/internal/logger"
	"github.com/tuitionchat/tuition-chat-go/internal/metrics"
)

// Credentials are the admin login pair.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) key() string { return c.Username }

type tokenEntry struct {
	token     string
	expiresAt time.Time
}

// TokenCache keeps admin bearer tokens per credential and refreshes them
// shortly before expiry. Concurrent misses share one login call.
type TokenCache struct {
	client  *Client
	creds   Credentials
	now     func() time.Time
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]tokenEntry
	group   singleflight.Group
}

// TokenOption customizes a TokenCache.
type TokenOption func(*TokenCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(tc *TokenCache) { tc.now = now }
}

// WithTokenLogger sets the logger.
func WithTokenLogger(log *logger.Logger) TokenOption {
	return func(tc *TokenCache) { tc.logger = log.WithModule("token") }
}

// WithTokenMetrics sets the metrics recorder.
func WithTokenMetrics(m *metrics.Metrics) TokenOption {
	return func(tc *TokenCache) { tc.metrics = m }
}

// NewTokenCache creates an empty cache that logs in through client.
func NewTokenCache(client *Client, creds Credentials, opts ...TokenOption) *TokenCache {
	tc := &TokenCache{
		client:  client,
		creds:   creds,
		now:     time.Now,
		logger:  logger.Nop(),
		entries: make(map[string]tokenEntry),
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Token returns a cached token that is valid for at least TokenRefreshSkew,
// logging in again otherwise.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	key := tc.creds.key()

	tc.mu.RLock()
	entry, ok := tc.entries[key]
	tc.mu.RUnlock()
	if ok && tc.now().Before(entry.expiresAt.Add(-config.TokenRefreshSkew)) {
		return entry.token, nil
	}

	v, err, shared := tc.group.Do(key, func() (any, error) {
		// The login must not die with whichever caller happened to start it.
		return tc.login(context.WithoutCancel(ctx))
	})
	if shared {
		tc.metrics.RecordSingleflightDedup("token")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call logs in.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	delete(tc.entries, tc.creds.key())
	tc.mu.Unlock()
}

func (tc *TokenCache) login(ctx context.Context) (string, error) {
	r, err := tc.client.Login(ctx, tc.creds.Username, tc.creds.Password)
	if err != nil {
		tc.metrics.RecordTokenRefresh("error")
		return "", err
	}
	if !r.OK {
		tc.metrics.RecordTokenRefresh("error")
		return "", &apperrors.AuthError{
			Status: r.Status,
			Err:    &apperrors.UpstreamError{Op: EndpointLogin, Status: r.Status, Message: r.Message()},
		}
	}

	token, _ := stringField(r, "token")
	if token == "" {
		tc.metrics.RecordTokenRefresh("error")
		return "", &apperrors.AuthError{Status: r.Status, Err: errors.New("login response has no token")}
	}

	now := tc.now()
	expiresAt := tc.expiry(r, token, now)

	tc.mu.Lock()
	tc.entries[tc.creds.key()] = tokenEntry{token: token, expiresAt: expiresAt}
	tc.mu.Unlock()

	tc.metrics.RecordTokenRefresh("success")
	tc.logger.InfoContext(ctx, "Admin token refreshed", "expires_in", expiresAt.Sub(now).Round(time.Second).String())
	return token, nil
}

// expiry resolves the token lifetime: expiresAtUtc, then the JWT exp claim,
// then a fixed default.
func (tc *TokenCache) expiry(r Result, token string, now time.Time) time.Time {
	if raw, ok := stringField(r, "expiresAtUtc"); ok && raw != "" {
		if t, ok := parseExpiresAt(raw); ok {
			return t
		}
		tc.logger.Warn("Unparseable expiresAtUtc in login response", "value", raw)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}

	return now.Add(config.TokenDefaultLifetime)
}

// parseExpiresAt accepts RFC 3339 with a zone, or a bare date-time taken as UTC.
// Any number of fractional second digits is allowed.
func parseExpiresAt(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func stringField(r Result, key string) (string, bool) {
	v, ok := r.Field(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
