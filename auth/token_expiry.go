package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// accessTokenExpiry reads the exp claim of a JWT access value without
// verifying it. Opaque tokens fall back to expires_in.
func accessTokenExpiry(accessToken string, expiresIn int64, now time.Time) *time.Time {
	if strings.Count(accessToken, ".") == 2 {
		token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
		if err == nil && token != nil && token.Claims != nil {
			if exp, expErr := token.Claims.GetExpirationTime(); expErr == nil && exp != nil {
				value := exp.Time.UTC()
				return &value
			}
		}
	}
	if expiresIn > 0 {
		value := now.UTC().Add(time.Duration(expiresIn) * time.Second)
		return &value
	}
	return nil
}
