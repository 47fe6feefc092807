package middleware

// identity.go reads the caller identity that JWTAuth stored in the Echo
// context.  Claims arrive as JSON values, so numbers are float64 and
// identifiers may also be strings.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	KeyUserID       = "user_id"
	KeyRole         = "role"
	KeyOrganization = "org_id"
)

// UserID returns the authenticated user's id.
func UserID(c echo.Context) (uint64, bool) {
	return claimID(c.Get(KeyUserID))
}

// OrganizationID returns the operator's organization id, if the token
// carried one.
func OrganizationID(c echo.Context) (uint64, bool) {
	return claimID(c.Get(KeyOrganization))
}

func claimID(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case uint64:
		return t, t != 0
	case int:
		return uint64(t), t > 0
	case int64:
		return uint64(t), t > 0
	case float64:
		return uint64(t), t >= 1
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n != 0
	}
	return 0, false
}

// subject is the rate limit identity: the user id, or "anon".
func subject(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
