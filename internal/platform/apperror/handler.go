package apperror

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Envelope is the uniform error body.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HTTPErrorHandler renders every error returned by a handler or middleware as
// an Envelope. Unclassified errors are logged and reported as Unexpected.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, message := resolve(err, c)
		if code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Int("status", code).
				Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(code)
		} else {
			writeErr = c.JSON(code, Envelope{Status: StatusText(code), Message: message})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func resolve(err error, c echo.Context) (int, string) {
	if appErr, ok := As(err); ok {
		return appErr.Status(), appErr.PublicMessage()
	}

	if he, ok := err.(*echo.HTTPError); ok {
		if he.Code == http.StatusNotFound && he.Message == http.StatusText(http.StatusNotFound) {
			return he.Code, fmt.Sprintf("Can't find %s on this server!", c.Request().URL.String())
		}
		if he.Code >= http.StatusInternalServerError {
			return he.Code, GenericMessage
		}
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	return http.StatusInternalServerError, GenericMessage
}
