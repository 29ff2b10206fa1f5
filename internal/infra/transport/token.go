package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/b24/internal/core/domain"
	"github.com/vietddude/b24/internal/pipeline/classify"
)

// tokenEnvelope is the token endpoint's wire shape.
type tokenEnvelope struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	ExpiresIn      int    `json:"expires_in"`
	Scope          string `json:"scope"`
	Domain         string `json:"domain"`
	ServerEndpoint string `json:"server_endpoint"`
}

// TokenClient exchanges refresh tokens at the OAuth token endpoint via a
// form-encoded POST.
type TokenClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewTokenClient creates a token endpoint client.
func NewTokenClient(tokenURL, clientID, clientSecret string, timeout time.Duration) *TokenClient {
	return &TokenClient{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Refresh exchanges a refresh token for a fresh credential set.
func (c *TokenClient) Refresh(ctx context.Context, refreshToken string) (*domain.CredentialSet, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
	}
	return c.exchange(ctx, form)
}

// Exchange trades an authorization code for a credential set.
func (c *TokenClient) Exchange(ctx context.Context, code string) (*domain.CredentialSet, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
	}
	return c.exchange(ctx, form)
}

func (c *TokenClient) exchange(ctx context.Context, form url.Values) (*domain.CredentialSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &classify.Error{
			Code:      classify.CodeTransport,
			Message:   err.Error(),
			Retryable: true,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var remote domain.RemoteError
		_ = json.Unmarshal(raw, &remote)
		if remote.Code == "" {
			return nil, classify.FromResponse(resp.StatusCode, nil, nil)
		}
		return nil, classify.FromResponse(resp.StatusCode, &remote, nil)
	}

	var env tokenEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode token envelope: %w", err)
	}

	return &domain.CredentialSet{
		AccessToken:  env.AccessToken,
		RefreshToken: env.RefreshToken,
		ExpiresIn:    env.ExpiresIn,
		Scope:        env.Scope,
		Domain:       env.Domain,
		Endpoint:     env.ServerEndpoint,
	}, nil
}
