package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the display-only view of a JWT bearer token.
type Claims struct {
	Subject   string
	Type      string
	ID        string
	IssuedAt  *time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the token's exp claim is before now. Tokens
// without exp never report expired; the backend remains the authority.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// Inspect decodes the claims of token without verifying its signature. The
// result is informational only and is never used to decide authorization.
func Inspect(token Token) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(token), mapClaims); err != nil {
		return nil, err
	}

	c := &Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		c.Subject = sub
	}
	if typ, ok := mapClaims["type"].(string); ok {
		c.Type = typ
	}
	if jti, ok := mapClaims["jti"].(string); ok {
		c.ID = jti
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		c.IssuedAt = &t
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		c.ExpiresAt = &t
	}
	return c, nil
}
