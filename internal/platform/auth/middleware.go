package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const sessionHeader = "X-SESSION-TOKEN"

// GrantChecker reports whether a user currently holds an active,
// non-revoked project data-manager grant.
type GrantChecker interface {
	HasActiveGrant(ctx context.Context, username string) (bool, error)
}

// SessionToken authenticates the X-SESSION-TOKEN header. Tokens are JWTs
// minted by the delegated auth provider and carry the username, access
// level and superuser flag as claims.
func SessionToken(signingKey string, grants GrantChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(sessionHeader)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing session token")
			}

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(signingKey), nil
			})
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
			}

			username, _ := claims["sub"].(string)
			if username == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session token")
			}
			level := 0
			if v, ok := claims["accessLevel"].(float64); ok {
				level = int(v)
			}
			superuser, _ := claims["superuser"].(bool)

			id := Identity{Username: username, AccessLevel: level, Superuser: superuser}
			if level < 3 && !superuser && grants != nil {
				active, err := grants.HasActiveGrant(c.Request().Context(), username)
				if err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, "grant lookup failed")
				}
				id.HasActiveGrant = active
			}

			ctx := WithIdentity(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireCapability rejects requests whose identity lacks the capability.
func RequireCapability(cap Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IdentityFromContext(c.Request().Context()).Can(cap) {
				return echo.NewHTTPError(http.StatusForbidden)
			}
			return next(c)
		}
	}
}

// RequireDeanonymized gates requests that ask for clear-text data; the
// anonymized=false flag is only honored for identities that can manage
// cases.
func RequireDeanonymized(ctx context.Context) error {
	if !IdentityFromContext(ctx).Can(CapManageCases) {
		return echo.NewHTTPError(http.StatusForbidden, "de-anonymized access requires the manageCases capability")
	}
	return nil
}
