// Package transport carries requests to the portal and decodes its wire
// shapes. It is the only place raw responses are seen; everything beyond
// this boundary consumes canonical errors.
package transport

import (
	"context"

	"github.com/vietddude/b24/internal/core/domain"
)

// Transport executes one portal REST call with a bearer token.
type Transport interface {
	Call(ctx context.Context, method string, payload any, token string) (*domain.Response, error)
}
