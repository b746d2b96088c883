package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the signed payload of a session token.
// Identity claims live next to the registered ones so a token can be
// validated without any server side lookup.
type JWTClaims struct {
	jwt.RegisteredClaims
	Username    string           `json:"username,omitempty"`
	DisplayName string           `json:"fullName,omitempty"`
	Title       string           `json:"title,omitempty"`
	Email       string           `json:"email,omitempty"`
	Roles       []string         `json:"roles,omitempty"`
	MaxExpires  *jwt.NumericDate `json:"max_exp,omitempty"`
}

// NewJWTClaims builds claims for identity with the given timestamps.
// absolute may be zero when lifetime tracking is disabled.
func NewJWTClaims(identity Identity, issuedAt, expiresAt, absolute time.Time) *JWTClaims {
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.SubjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username:    identity.Username,
		DisplayName: identity.DisplayName,
		Title:       identity.Title,
		Email:       identity.Email,
		Roles:       append([]string(nil), identity.Roles...),
	}

	if !absolute.IsZero() {
		claims.MaxExpires = jwt.NewNumericDate(absolute)
	}

	return claims
}

// Identity returns the identity embedded in the claims
func (c *JWTClaims) Identity() Identity {
	return Identity{
		SubjectID:   c.RegisteredClaims.Subject,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		Title:       c.Title,
		Email:       c.Email,
		Roles:       append([]string(nil), c.Roles...),
	}
}

// HasRole checks if the claims carry a specific role
func (c *JWTClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Expires returns the access expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// AbsoluteExpires returns the session ceiling, zero if not tracked
func (c *JWTClaims) AbsoluteExpires() time.Time {
	if c.MaxExpires != nil {
		return c.MaxExpires.Time
	}
	return time.Time{}
}

func (c *JWTClaims) missingRequired(requireAbsolute bool) bool {
	if c.RegisteredClaims.Subject == "" || c.Username == "" {
		return true
	}
	if c.RegisteredClaims.IssuedAt == nil || c.RegisteredClaims.ExpiresAt == nil {
		return true
	}
	return requireAbsolute && c.MaxExpires == nil
}
