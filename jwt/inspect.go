package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned for strings that are not a three-part JWT with a
// JSON claims segment.
var ErrMalformed = errors.New("malformed token")

// Claims is the subset of access-token claims the client cares about.
type Claims struct {
	Subject   string
	UserID    string
	TokenType string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	UserID    any    `json:"user_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser()

// Inspect decodes token without checking its signature.
func Inspect(token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMalformed
	}

	var raw accessClaims
	if _, _, err := parser.ParseUnverified(token, &raw); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	c := Claims{
		Subject:   raw.Subject,
		UserID:    userIDString(raw.UserID),
		TokenType: raw.TokenType,
		ID:        raw.ID,
	}
	if raw.IssuedAt != nil {
		c.IssuedAt = raw.IssuedAt.Time
	}
	if raw.ExpiresAt != nil {
		c.ExpiresAt = raw.ExpiresAt.Time
	}
	return c, nil
}

// Principal returns the subject, falling back to user_id.
func (c Claims) Principal() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.UserID
}

// Expired reports whether the token expires within skew of now. Tokens
// without exp never expire.
func (c Claims) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

// TTL is the time left until expiry, or zero when expired or unbounded.
func (c Claims) TTL(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func userIDString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
