package models

import "github.com/golang-jwt/jwt/v5"

// Roles understood by the dashboard API.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// IdentityClaims are the claims carried by access tokens issued by the
// external identity provider. The application role lives in app_metadata;
// the top-level role claim is the provider's own (e.g. "authenticated").
type IdentityClaims struct {
	jwt.RegisteredClaims
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	AppMetadata AppMetadata `json:"app_metadata"`
}

type AppMetadata struct {
	Role string `json:"role"`
}

// UserID is the identity provider's subject.
func (c *IdentityClaims) UserID() string {
	return c.Subject
}

// AppRole resolves the application role, preferring app_metadata.
func (c *IdentityClaims) AppRole() string {
	if c.AppMetadata.Role != "" {
		return c.AppMetadata.Role
	}
	return c.Role
}

// IsAdmin reports whether the caller may use admin endpoints.
func (c *IdentityClaims) IsAdmin() bool {
	return c.AppRole() == RoleAdmin
}
