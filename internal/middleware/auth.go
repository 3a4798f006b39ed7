// Package middleware provides the fiber middleware for identity, role
// checks and the sweep trigger secret.
package middleware

import (
	"crypto/subtle"
	"strings"

	appErrors "poltrona/internal/errors"
	"poltrona/internal/models"
	"poltrona/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const claimsKey = "claims"

// AuthMiddleware validates access tokens issued by the identity provider
// and stores the claims in the request context.
type AuthMiddleware struct {
	secret []byte
	log    logrus.FieldLogger
}

func NewAuthMiddleware(secret string, log logrus.FieldLogger) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), log: log}
}

// Handler requires a valid Bearer token.
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	if len(m.secret) == 0 {
		m.log.Error("JWT_SECRET is not configured")
		return response.FromError(c, appErrors.ErrConfigMissing)
	}

	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return response.Unauthorized(c, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return response.Unauthorized(c, "invalid authorization format")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	claims := &models.IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		m.log.WithError(err).Debug("token validation failed")
		return response.Unauthorized(c, "invalid token")
	}
	if claims.UserID() == "" {
		return response.Unauthorized(c, "invalid claims")
	}

	c.Locals(claimsKey, claims)
	return c.Next()
}

// Claims returns the identity of the current request, if authenticated.
func Claims(c *fiber.Ctx) (*models.IdentityClaims, bool) {
	claims, ok := c.Locals(claimsKey).(*models.IdentityClaims)
	return claims, ok && claims != nil
}

// AdminAuthMiddleware verifies that the request has admin claims.
func AdminAuthMiddleware(c *fiber.Ctx) error {
	return HasRole(models.RoleAdmin)(c)
}

// HasRole admits callers whose role is at least the required one.
func HasRole(required string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := Claims(c)
		if !ok {
			return response.Unauthorized(c, "unauthorized")
		}
		if !hasRequiredRole(claims.AppRole(), required) {
			return response.Forbidden(c, "insufficient permissions")
		}
		return c.Next()
	}
}

// hasRequiredRole compares roles on the operator < admin hierarchy.
func hasRequiredRole(userRole, requiredRole string) bool {
	roleHierarchy := map[string]int{
		models.RoleOperator: 1,
		models.RoleAdmin:    2,
	}
	level, ok := roleHierarchy[userRole]
	return ok && level >= roleHierarchy[requiredRole]
}

// SweepSecret guards the sweep triggers. With no secret configured the
// endpoints stay open, as for a private network scheduler.
func SweepSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		given := c.Get("X-Sweep-Secret")
		if given == "" {
			given = strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			return response.Unauthorized(c, "invalid sweep secret")
		}
		return c.Next()
	}
}
