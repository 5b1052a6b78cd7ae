package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenExpiry decodes the access token's exp claim without verifying
// the signature. The client has no signing key; this is display metadata
// only, never an authorization input. Returns the zero time when the token
// is absent or not a well-formed JWT.
func (s Session) AccessTokenExpiry() time.Time {
	if s.AccessToken == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
