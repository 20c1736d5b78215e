package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
)

const MsgTimeout = "The request took too long to complete"

// RequestTimeout puts a deadline on the request context. Handlers are expected
// to pass that context to anything that blocks; if they come back with a
// deadline error the response is a 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(err, context.DeadlineExceeded) && !apperror.IsKind(err, apperror.KindTimeout) {
				return apperror.Wrap(apperror.KindTimeout, MsgTimeout, err)
			}
			return err
		}
	}
}
