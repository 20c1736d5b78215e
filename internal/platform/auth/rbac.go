package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
)

const MsgForbidden = "You do not have permission to perform this action"

// RestrictTo returns middleware that only lets through sessions whose role is
// one of roles. It must run after Protect.
func RestrictTo(roles ...Role) echo.MiddlewareFunc {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := SessionFromContext(c.Request().Context())
			if !ok {
				return apperror.Unauthenticated(MsgNotLoggedIn)
			}
			if !allowed[s.Principal.Role] {
				return apperror.Forbidden(MsgForbidden)
			}
			return next(c)
		}
	}
}
