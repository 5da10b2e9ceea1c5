package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the fields the client reads from an access token. The
// signature is the execution service's business; the client only needs the
// identity and the expiry.
type Claims struct {
	UserID int64 `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// Inspect decodes token without verifying its signature.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("inspect token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the claims carry an expiry at or before now.
func (c *Claims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// SubjectOf names the account a token belongs to: the user id when the
// token carries one, then the subject claim, then a digest of the token.
func SubjectOf(token string, c *Claims) string {
	switch {
	case c != nil && c.UserID != 0:
		return strconv.FormatInt(c.UserID, 10)
	case c != nil && c.Subject != "":
		return c.Subject
	case token != "":
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(token)).String()
	}
	return ""
}
