// Package upstream holds the plumbing shared by the outbound HTTP clients:
// bounded response reads, a typed error for non-2xx replies, and the
// translation of client failures into application errors.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
)

// MaxBodySize caps how much of an upstream response is read into memory.
const MaxBodySize = 5 << 20

const DefaultTimeout = 15 * time.Second

// NewHTTPClient returns the client used for third-party calls when the caller
// does not supply one.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Error is a non-2xx reply from a third-party service.
type Error struct {
	Service string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s responded %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s responded %d: %s", e.Service, e.Status, e.Message)
}

// ReadBody drains resp.Body up to MaxBodySize. Non-2xx replies come back as
// *Error with the best message found in the body.
func ReadBody(service string, resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Service: service, Status: resp.StatusCode, Message: messageOf(body)}
	}
	return body, nil
}

// messageOf pulls a human readable message out of an error body. It accepts a
// bare JSON string, {"error": "..."}, {"error": {"message": "..."}},
// {"message": "..."} or plain text.
func messageOf(body []byte) string {
	body = []byte(strings.TrimSpace(string(body)))
	if len(body) == 0 {
		return ""
	}

	var s string
	if json.Unmarshal(body, &s) == nil {
		return truncate(s)
	}

	var obj struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(body, &obj) == nil {
		if len(obj.Error) > 0 {
			if json.Unmarshal(obj.Error, &s) == nil && s != "" {
				return truncate(s)
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(obj.Error, &nested) == nil && nested.Message != "" {
				return truncate(nested.Message)
			}
		}
		if obj.Message != "" {
			return truncate(obj.Message)
		}
		return ""
	}
	return truncate(string(body))
}

func truncate(s string) string {
	const max = 200
	if len(s) > max {
		return s[:max]
	}
	return s
}

// AppError classifies a client failure for the HTTP layer. Deadlines become
// Timeout; everything else is Upstream. When useUpstreamMessage is set the
// message from an *Error reply is shown to the caller instead of fallback.
func AppError(err error, fallback string, useUpstreamMessage bool) error {
	if err == nil {
		return nil
	}
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.Wrap(apperror.KindTimeout, fallback, err)
	}
	var ue *Error
	if useUpstreamMessage && errors.As(err, &ue) && ue.Message != "" {
		return apperror.Wrap(apperror.KindUpstream, ue.Message, err)
	}
	return apperror.Wrap(apperror.KindUpstream, fallback, err)
}
