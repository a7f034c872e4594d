package domain

import "time"

// Session is the single logical session against the user's PDS.
// It is created on login, replaced in place on refresh and deleted on
// logout or unrecoverable refresh failure.
type Session struct {
	// DID is the stable account identifier (did:plc:... / did:web:...).
	DID string `json:"did"`

	// Handle is the human-readable identifier. Mutable server-side.
	Handle string `json:"handle"`

	// DisplayName comes from a best-effort profile fetch at login time
	// and falls back to Handle when the profile is unavailable.
	DisplayName string `json:"displayName"`

	// AccessJWT is the short-lived access token.
	AccessJWT string `json:"accessJwt"`

	// RefreshJWT is the longer-lived refresh token.
	RefreshJWT string `json:"refreshJwt"`

	// IssuedAt is stamped on every successful login or refresh.
	IssuedAt time.Time `json:"issuedAt"`
}

// Usable reports whether the session carries everything needed to make
// authenticated calls. A stored record failing this check is discarded.
func (s *Session) Usable() bool {
	return s != nil && s.DID != "" && s.AccessJWT != "" && s.RefreshJWT != ""
}

// Age returns how long ago the session tokens were issued.
func (s *Session) Age(now time.Time) time.Duration {
	if s == nil || s.IssuedAt.IsZero() {
		return 0
	}
	return now.Sub(s.IssuedAt)
}
