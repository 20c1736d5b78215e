package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestError_Status(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindMissingCredentials, http.StatusBadRequest},
		{KindInvalidOrExpiredToken, http.StatusBadRequest},
		{KindInvalidCredentials, http.StatusUnauthorized},
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindStaleSession, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindUserNotFound, http.StatusNotFound},
		{KindDuplicateEmail, http.StatusConflict},
		{KindEmailDispatchFailed, http.StatusInternalServerError},
		{KindUnexpected, http.StatusInternalServerError},
		{Kind("bogus"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := New(tt.kind, "x").Status(); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUnexpected_HidesCause(t *testing.T) {
	err := Unexpected(errors.New("connection refused to 10.0.0.7:5432"))
	if err.PublicMessage() != GenericMessage {
		t.Errorf("expected generic message, got %q", err.PublicMessage())
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected cause in Error(), got %q", err.Error())
	}
}

func TestAs_ThroughWrapping(t *testing.T) {
	inner := New(KindForbidden, "nope")
	wrapped := fmt.Errorf("restrict: %w", inner)

	got, ok := As(wrapped)
	if !ok {
		t.Fatal("expected As to find *Error")
	}
	if got.Kind != KindForbidden {
		t.Errorf("expected Forbidden, got %s", got.Kind)
	}
	if !IsKind(wrapped, KindForbidden) {
		t.Error("expected IsKind to match")
	}
	if IsKind(errors.New("plain"), KindForbidden) {
		t.Error("expected IsKind false for plain error")
	}
}

func serveError(t *testing.T, err error, target string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	HTTPErrorHandler(zerolog.Nop())(err, c)

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return rec, env
}

func TestHTTPErrorHandler_AppError(t *testing.T) {
	rec, env := serveError(t, New(KindDuplicateEmail, "Email already in use"), "/")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if env.Status != "fail" || env.Message != "Email already in use" {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestHTTPErrorHandler_ServerErrorIsGeneric(t *testing.T) {
	rec, env := serveError(t, errors.New("pq: relation users does not exist"), "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if env.Status != "error" {
		t.Errorf("expected status error, got %s", env.Status)
	}
	if env.Message != GenericMessage {
		t.Errorf("expected generic message, got %q", env.Message)
	}
}

func TestHTTPErrorHandler_EmailDispatchKeepsMessage(t *testing.T) {
	err := Wrap(KindEmailDispatchFailed, "There was an error sending the email. Try again later!", errors.New("smtp: 535"))
	rec, env := serveError(t, err, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if env.Status != "error" || strings.Contains(env.Message, "535") {
		t.Errorf("unexpected envelope: %+v", env)
	}
}

func TestHTTPErrorHandler_RouteNotFound(t *testing.T) {
	rec, env := serveError(t, echo.ErrNotFound, "/api/nowhere")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if env.Message != "Can't find /api/nowhere on this server!" {
		t.Errorf("unexpected message: %q", env.Message)
	}
}

func TestHTTPErrorHandler_EchoHTTPError(t *testing.T) {
	rec, env := serveError(t, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Request Entity Too Large"), "/")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if env.Status != "fail" {
		t.Errorf("expected fail, got %s", env.Status)
	}
}
