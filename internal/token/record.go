package token

import "time"

// Record holds the persisted access + refresh token pair for the
// configured integration, together with both expiry timestamps.
type Record struct {
	AccessToken        string    `json:"access_token"`
	AccessTokenExpiry  time.Time `json:"access_token_expiry"`
	RefreshToken       string    `json:"refresh_token"`
	RefreshTokenExpiry time.Time `json:"refresh_token_expiry"`
	AcquiredAt         time.Time `json:"acquired_at"`
}

// AccessValid reports whether the access token is still usable at now,
// keeping a safety skew so a token is never returned moments before it dies.
func (r *Record) AccessValid(now time.Time, skew time.Duration) bool {
	return r.AccessToken != "" && now.Add(skew).Before(r.AccessTokenExpiry)
}

// RefreshValid reports whether the refresh token can still be exchanged at now.
func (r *Record) RefreshValid(now time.Time) bool {
	return r.RefreshToken != "" && now.Before(r.RefreshTokenExpiry)
}
