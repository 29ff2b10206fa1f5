package domain

import "time"

// DefaultRefreshMargin is how long before expiry a token is treated as stale.
const DefaultRefreshMargin = 5 * time.Minute

// CredentialSet holds one portal's OAuth credentials.
type CredentialSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	Domain       string `json:"domain"`
	Endpoint     string `json:"server_endpoint,omitempty"`

	// IssuedAt is stamped by the credential manager on every assignment.
	IssuedAt time.Time `json:"-"`
}

// ExpiresAt returns the absolute expiry instant.
func (c CredentialSet) ExpiresAt() time.Time {
	return c.IssuedAt.Add(time.Duration(c.ExpiresIn) * time.Second)
}

// UsableAt reports whether the access token is still usable at the given
// instant, i.e. it expires no sooner than margin from now.
func (c CredentialSet) UsableAt(now time.Time, margin time.Duration) bool {
	return now.Before(c.ExpiresAt().Add(-margin))
}
