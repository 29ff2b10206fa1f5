// Package auth owns the portal credential lifecycle.
package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/b24/internal/core/domain"
	"github.com/vietddude/b24/internal/pipeline/classify"
	"github.com/vietddude/b24/internal/pipeline/events"
	"github.com/vietddude/b24/internal/pipeline/metrics"
)

// TokenEndpoint exchanges a refresh token for a fresh credential set.
type TokenEndpoint interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.CredentialSet, error)
}

// Manager holds one credential set and hands out usable access tokens,
// refreshing behind a single-flight gate when the token nears expiry.
type Manager struct {
	endpoint TokenEndpoint
	margin   time.Duration
	hooks    *events.Hooks
	now      func() time.Time

	mu    sync.Mutex
	creds *domain.CredentialSet

	group singleflight.Group
}

// NewManager creates a credential manager. A zero margin selects the
// default refresh margin.
func NewManager(endpoint TokenEndpoint, margin time.Duration, hooks *events.Hooks) *Manager {
	if margin <= 0 {
		margin = domain.DefaultRefreshMargin
	}
	return &Manager{
		endpoint: endpoint,
		margin:   margin,
		hooks:    hooks,
		now:      time.Now,
	}
}

// SetCredentials validates and replaces the held credential set,
// stamping IssuedAt with the current instant.
func (m *Manager) SetCredentials(set domain.CredentialSet) error {
	if set.AccessToken == "" {
		return classify.Validation("credential set is missing an access token")
	}
	if set.ExpiresIn <= 0 {
		return classify.Validation("credential set must have a positive expires_in")
	}
	if set.Domain == "" {
		return classify.Validation("credential set is missing a portal domain")
	}

	m.mu.Lock()
	set.IssuedAt = m.now()
	m.creds = &set
	m.mu.Unlock()

	slog.Debug("Credentials set", "domain", set.Domain, "expires_in", set.ExpiresIn)
	return nil
}

// Credentials returns a copy of the held set, if any.
func (m *Manager) Credentials() (domain.CredentialSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return domain.CredentialSet{}, false
	}
	return *m.creds, true
}

// Clear drops the held credentials (logout).
func (m *Manager) Clear() {
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()
}

// AccessToken returns a usable access token, refreshing first if the held
// token expires within the refresh margin. Concurrent callers observing a
// stale token share a single underlying refresh call.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	if creds == nil {
		return "", classify.NoCredentials()
	}
	if creds.UsableAt(m.now(), m.margin) {
		return creds.AccessToken, nil
	}
	if creds.RefreshToken == "" {
		m.hooks.CredentialsExpired()
		return "", classify.CredentialsExpired()
	}

	token, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// refresh runs inside the single-flight gate. It re-checks the held set so
// a caller that queued behind a just-finished refresh does not trigger
// another network call.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	if creds == nil {
		return "", classify.NoCredentials()
	}
	if creds.UsableAt(m.now(), m.margin) {
		return creds.AccessToken, nil
	}

	fresh, err := m.endpoint.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		ce := classify.From(err)
		m.hooks.RefreshFailed(ce)
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()

		if refreshTokenRejected(ce) {
			// The refresh token itself is dead: drop everything.
			m.Clear()
			slog.Warn("Refresh token rejected, credentials cleared", "code", ce.Code)
			return "", classify.ReauthRequired()
		}
		// Transient failure: keep the stale set for a later retry.
		return "", ce
	}

	m.mu.Lock()
	fresh.IssuedAt = m.now()
	m.creds = fresh
	m.mu.Unlock()

	m.hooks.CredentialsRefreshed(*fresh)
	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	slog.Debug("Credentials refreshed", "domain", fresh.Domain, "expires_in", fresh.ExpiresIn)
	return fresh.AccessToken, nil
}

// refreshTokenRejected reports whether a refresh failure means the refresh
// token will never work again.
func refreshTokenRejected(err *classify.Error) bool {
	switch err.Code {
	case classify.CodeInvalidGrant, classify.CodeInvalidClient, classify.CodeExpiredToken, classify.CodeInvalidToken:
		return true
	}
	return false
}
