package domain

import (
	"encoding/json"
	"time"
)

// Response is the decoded reply from a portal REST call.
type Response struct {
	Status int             `json:"-"`
	Result json.RawMessage `json:"result"`
	Total  int             `json:"total,omitempty"`
	Time   *TimeInfo       `json:"time,omitempty"`
	Err    *RemoteError    `json:"-"`
}

// TimeInfo carries the resource-cost figures the portal reports per response.
type TimeInfo struct {
	// Operating is the accumulated operating time (seconds) this call
	// contributed to the current budget window.
	Operating float64 `json:"operating,omitempty"`
	// OperatingResetAt is the unix timestamp at which the operating
	// budget for the called method resets.
	OperatingResetAt int64 `json:"operating_reset_at,omitempty"`
}

// ResetAt converts OperatingResetAt into a time.Time. Zero value if unset.
func (t *TimeInfo) ResetAt() time.Time {
	if t == nil || t.OperatingResetAt == 0 {
		return time.Time{}
	}
	return time.Unix(t.OperatingResetAt, 0)
}

// RemoteError is the structured error body the portal returns on failure.
type RemoteError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}
