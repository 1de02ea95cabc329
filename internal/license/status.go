package license

import "time"

// SessionUsage reports session counters from the grant
type SessionUsage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Status is the derived answer to "is this client licensed right now".
// It is computed fresh from a grant, or synthesized as inactive when no
// grant exists or the grant has lapsed. Never persisted.
type Status struct {
	Active    bool         `json:"active"`
	ClientID  string       `json:"client_id"`
	Plan      string       `json:"plan,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	Sessions  SessionUsage `json:"sessions"`
	Error     string       `json:"error,omitempty"`
}

// Grant is one issued license row
type Grant struct {
	ID              int64      `json:"id"`
	LicenseKey      string     `json:"license_key"`
	ClientID        string     `json:"client_id"`
	Active          bool       `json:"active"`
	Plan            string     `json:"plan"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"` // nil means non-expiring
	SessionsUsed    int        `json:"sessions_used"`
	SessionsLimit   int        `json:"sessions_limit"`
	ActivatedAt     time.Time  `json:"activated_at"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
	ValidationCount int64      `json:"validation_count"`
}

// Expired reports whether the grant's expiry is in the past at the given instant
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// StatusFromGrant builds an active status snapshot from a grant
func StatusFromGrant(g *Grant) Status {
	return Status{
		Active:    g.Active,
		ClientID:  g.ClientID,
		Plan:      g.Plan,
		ExpiresAt: g.ExpiresAt,
		Sessions: SessionUsage{
			Used:  g.SessionsUsed,
			Limit: g.SessionsLimit,
		},
	}
}

// InactiveStatus synthesizes a negative status with the given reason
func InactiveStatus(clientID, reason string) Status {
	return Status{
		Active:   false,
		ClientID: clientID,
		Error:    reason,
	}
}
