package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/b24/internal/core/domain"
	"github.com/vietddude/b24/internal/pipeline/classify"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// HTTPTransport implements Transport over the portal's JSON REST surface.
type HTTPTransport struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPTransport creates an HTTP transport for the given portal endpoint,
// e.g. "https://example.bitrix24.com".
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Call POSTs payload to {endpoint}/rest/{method}.json and decodes the
// response. Failures come back as canonical errors.
func (t *HTTPTransport) Call(ctx context.Context, method string, payload any, token string) (*domain.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := fmt.Sprintf("%s/rest/%s.json", t.endpoint, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
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
		return nil, fmt.Errorf("read response: %w", err)
	}

	return DecodeResponse(resp.StatusCode, raw)
}

// DecodeResponse turns a status and body into a Response or a canonical
// error. Split out so tests can drive it without a server.
func DecodeResponse(status int, raw []byte) (*domain.Response, error) {
	if status >= 400 {
		var remote domain.RemoteError
		var env struct {
			Time *domain.TimeInfo `json:"time"`
		}
		if len(raw) > 0 {
			// Best effort: a missing or malformed body classifies by status.
			_ = json.Unmarshal(raw, &remote)
			_ = json.Unmarshal(raw, &env)
		}
		if remote.Code == "" {
			return nil, classify.FromResponse(status, nil, nil)
		}
		return nil, classify.FromResponse(status, &remote, env.Time)
	}

	out := &domain.Response{Status: status}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	out.Status = status
	return out, nil
}
