package middleware // reusable HTTP middleware for the registration API

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
	"github.com/labstack/echo/v4"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// issued by the identity provider and copies its claims into the request
// context: "sub" under KeyUserID, "role" under KeyRole and "org" (the
// operator's organization, optional) under KeyOrganization.  Tokens are
// never issued here.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header is "Bearer " followed by the token.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return deny(c, http.StatusUnauthorized, "missing_token", "missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Only HMAC signatures with our secret are accepted.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return deny(c, http.StatusUnauthorized, "invalid_token", "invalid token")
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return deny(c, http.StatusUnauthorized, "invalid_token", "invalid claims")
			}

			c.Set(KeyUserID, claims["sub"])
			c.Set(KeyRole, claims["role"])
			if org, ok := claims["org"]; ok {
				c.Set(KeyOrganization, org)
			}
			return next(c)
		}
	}
}

// deny writes the API error envelope from inside a middleware.
func deny(c echo.Context, status int, reason, msg string) error {
	kind := "permission_denied"
	switch status {
	case http.StatusUnauthorized:
		kind = "unauthenticated"
	case http.StatusTooManyRequests:
		kind = "resource_exhausted"
	}
	return c.JSON(status, echo.Map{"error": echo.Map{"reason": reason, "kind": kind, "message": msg}})
}
