// Package client is the high-level facade composing credentials, admission
// control, retry, and transport into one call surface.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/vietddude/b24/internal/core/domain"
	"github.com/vietddude/b24/internal/infra/cache"
	"github.com/vietddude/b24/internal/infra/transport"
	"github.com/vietddude/b24/internal/pipeline/auth"
	"github.com/vietddude/b24/internal/pipeline/classify"
	"github.com/vietddude/b24/internal/pipeline/events"
	"github.com/vietddude/b24/internal/pipeline/metrics"
	"github.com/vietddude/b24/internal/pipeline/retry"
	"github.com/vietddude/b24/internal/pipeline/throttle"
)

// Config holds facade-level settings.
type Config struct {
	MaxAttempts   int             // orchestrator retries per logical call
	RetryDelay    time.Duration   // fallback inter-attempt delay
	RefreshMargin time.Duration   // credential staleness margin
	Throttle      throttle.Config // admission control settings
}

// DefaultConfig returns facade defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryDelay:  2 * time.Second,
		Throttle:    throttle.DefaultConfig(),
	}
}

// Client executes logical portal calls through the full pipeline.
type Client struct {
	transport    transport.Transport
	creds        *auth.Manager
	admission    *throttle.Controller
	orchestrator *retry.Orchestrator
	cache        cache.ResponseCache
	cfg          Config
}

// New wires a client together and starts its admission controller.
// cache may be nil; hooks may be nil.
func New(t transport.Transport, tokens auth.TokenEndpoint, rc cache.ResponseCache, hooks *events.Hooks, cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}

	c := &Client{
		transport:    t,
		creds:        auth.NewManager(tokens, cfg.RefreshMargin, hooks),
		admission:    throttle.NewController(cfg.Throttle, hooks),
		orchestrator: retry.NewOrchestrator(hooks),
		cache:        rc,
		cfg:          cfg,
	}
	c.admission.Start()
	return c
}

// SetCredentials installs the credential set produced by an external
// authorization flow.
func (c *Client) SetCredentials(set domain.CredentialSet) error {
	return c.creds.SetCredentials(set)
}

// Credentials returns a copy of the held credential set, if any.
func (c *Client) Credentials() (domain.CredentialSet, bool) {
	return c.creds.Credentials()
}

// Logout drops the held credentials.
func (c *Client) Logout() {
	c.creds.Clear()
}

// Stats returns the admission controller's throttle snapshot.
func (c *Client) Stats() throttle.Stats {
	return c.admission.Stats()
}

// Reconfigure switches the limiter to a new tariff plan.
func (c *Client) Reconfigure(maxRequestsPerSecond, burstLimit float64) {
	c.admission.Reconfigure(maxRequestsPerSecond, burstLimit)
}

// Close tears down the admission controller. Pending queued calls are
// rejected, never dropped.
func (c *Client) Close() {
	c.admission.Destroy()
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			slog.Warn("Cache close failed", "error", err)
		}
	}
}

// Call executes one portal method at default priority.
func (c *Client) Call(ctx context.Context, method string, payload any) (*domain.Response, error) {
	return c.call(ctx, method, payload, 0)
}

// CallWithPriority executes one portal method; higher priority is served
// sooner when calls queue up.
func (c *Client) CallWithPriority(ctx context.Context, method string, payload any, priority int) (*domain.Response, error) {
	return c.call(ctx, method, payload, priority)
}

// CallCached serves an idempotent read through the response cache,
// falling back to a live call on miss. Errors are never cached.
func (c *Client) CallCached(ctx context.Context, method string, payload any, ttl time.Duration) (*domain.Response, error) {
	if c.cache == nil || ttl <= 0 {
		return c.call(ctx, method, payload, 0)
	}

	key := requestKey(method, payload)
	if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var resp domain.Response
		if err := json.Unmarshal(raw, &resp); err == nil {
			return &resp, nil
		}
	} else if err != nil {
		slog.Debug("Cache read failed, calling through", "method", method, "error", err)
	}

	resp, err := c.call(ctx, method, payload, 0)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(resp); err == nil {
		if err := c.cache.Set(ctx, key, raw, ttl); err != nil {
			slog.Debug("Cache write failed", "method", method, "error", err)
		}
	}
	return resp, nil
}

// call is the single pipeline path: orchestrated retry around token
// acquisition, admission, and the transport call.
func (c *Client) call(ctx context.Context, method string, payload any, priority int) (*domain.Response, error) {
	result, err := c.orchestrator.Execute(ctx, method, func(ctx context.Context) (any, error) {
		token, err := c.creds.AccessToken(ctx)
		if err != nil {
			return nil, err
		}

		future := c.admission.Submit(ctx, method, priority, func(ctx context.Context) (*domain.Response, error) {
			return c.transport.Call(ctx, method, payload, token)
		})

		resp, err := future.Await(ctx)
		if err != nil {
			metrics.CallsTotal.WithLabelValues(method, classify.CodeOf(err)).Inc()
			return nil, err
		}
		metrics.CallsTotal.WithLabelValues(method, "ok").Inc()
		return resp, nil
	}, c.cfg.MaxAttempts, c.cfg.RetryDelay)
	if err != nil {
		return nil, err
	}
	return result.(*domain.Response), nil
}

// requestKey derives a stable cache key from method and payload.
func requestKey(method string, payload any) string {
	h := fnv.New64a()
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			h.Write(raw)
		}
	}
	return fmt.Sprintf("%s:%x", method, h.Sum64())
}
