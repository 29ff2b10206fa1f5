// Package events defines the optional observer hooks the pipeline emits.
package events

import (
	"time"

	"github.com/vietddude/b24/internal/core/domain"
)

// Hooks is a capability set of optional callbacks. Each is invoked
// synchronously at its extension point; a nil field is a no-op.
type Hooks struct {
	OnCredentialsRefreshed func(creds domain.CredentialSet)
	OnCredentialsExpired   func()
	OnRefreshFailed        func(err error)
	OnAuthRequired         func(err error)
	OnRateLimited          func(method string, err error)
	OnRetryAttempted       func(method string, attempt int, delay time.Duration)
	OnBudgetWarning        func(used, budget float64)
}

func (h *Hooks) CredentialsRefreshed(creds domain.CredentialSet) {
	if h != nil && h.OnCredentialsRefreshed != nil {
		h.OnCredentialsRefreshed(creds)
	}
}

func (h *Hooks) CredentialsExpired() {
	if h != nil && h.OnCredentialsExpired != nil {
		h.OnCredentialsExpired()
	}
}

func (h *Hooks) RefreshFailed(err error) {
	if h != nil && h.OnRefreshFailed != nil {
		h.OnRefreshFailed(err)
	}
}

func (h *Hooks) AuthRequired(err error) {
	if h != nil && h.OnAuthRequired != nil {
		h.OnAuthRequired(err)
	}
}

func (h *Hooks) RateLimited(method string, err error) {
	if h != nil && h.OnRateLimited != nil {
		h.OnRateLimited(method, err)
	}
}

func (h *Hooks) RetryAttempted(method string, attempt int, delay time.Duration) {
	if h != nil && h.OnRetryAttempted != nil {
		h.OnRetryAttempted(method, attempt, delay)
	}
}

func (h *Hooks) BudgetWarning(used, budget float64) {
	if h != nil && h.OnBudgetWarning != nil {
		h.OnBudgetWarning(used, budget)
	}
}
