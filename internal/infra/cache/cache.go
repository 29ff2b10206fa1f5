// Package cache provides optional TTL caching for idempotent portal reads.
package cache

import (
	"context"
	"time"
)

// ResponseCache stores serialized responses keyed by method+payload hash.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
