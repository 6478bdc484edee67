package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/slipstream/homecloud/internal/auth"
)

// ClaimsKey is the echo context key holding the validated *auth.Claims.
const ClaimsKey = "authClaims"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// FailureTracker locks out clients that keep presenting bad tokens.
type FailureTracker interface {
	IsLocked(key string) bool
	RecordFailure(key string)
	Reset(key string)
}

// BearerAuth requires a valid bearer token. Browsers cannot set headers on a
// websocket upgrade, so the token is also accepted in the "token" query
// parameter. tracker may be nil.
func BearerAuth(validator TokenValidator, tracker FailureTracker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if tracker != nil && tracker.IsLocked(ip) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many invalid tokens, please try again later")
			}

			token := extractBearerToken(c)
			if token == "" {
				token = c.QueryParam("token")
			}
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization token")
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				if tracker != nil {
					tracker.RecordFailure(ip)
				}
				if errors.Is(err, auth.ErrTokenExpired) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if tracker != nil {
				tracker.Reset(ip)
			}
			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

// GetClaims returns the claims stored by BearerAuth, or nil.
func GetClaims(c echo.Context) *auth.Claims {
	claims, ok := c.Get(ClaimsKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractBearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return parts[1]
}
