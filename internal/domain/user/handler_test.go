package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
)

func newTestServer(t *testing.T) (*echo.Echo, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(zerolog.Nop())
	noLimit := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	NewHandler(env.svc).RegisterRoutes(e.Group("/api/users"), env.authn.Protect(), noLimit)
	return e, env
}

func do(t *testing.T, e *echo.Echo, method, path, body, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s response: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, out
}

const doctorSignup = `{"name":"Dr X","email":"d@x.com","password":"Passw0rd!","passwordConfirm":"Passw0rd!"}`

func TestHandler_SignupDoctor(t *testing.T) {
	e, _ := newTestServer(t)

	rec, body := do(t, e, http.MethodPost, "/api/users/signupAsDoctor", doctorSignup, "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["status"] != "success" {
		t.Errorf("expected status success, got %v", body["status"])
	}
	if tok, _ := body["token"].(string); tok == "" {
		t.Error("expected a token")
	}
	user := body["data"].(map[string]interface{})["user"].(map[string]interface{})
	if user["role"] != "doctor" {
		t.Errorf("expected role doctor, got %v", user["role"])
	}
	if _, ok := user["password"]; ok {
		t.Error("password must not be serialized")
	}
}

func TestHandler_SignupValidationEnvelope(t *testing.T) {
	e, _ := newTestServer(t)

	rec, body := do(t, e, http.MethodPost, "/api/users/signupAsPatient",
		`{"name":"P","email":"p@x.com","password":"Passw0rd!","passwordConfirm":"different1"}`, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["status"] != "fail" {
		t.Errorf("expected status fail, got %v", body["status"])
	}
	if !strings.Contains(body["message"].(string), "Passwords are not the same!") {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestHandler_SignupDuplicate(t *testing.T) {
	e, _ := newTestServer(t)
	do(t, e, http.MethodPost, "/api/users/signupAsDoctor", doctorSignup, "")

	rec, _ := do(t, e, http.MethodPost, "/api/users/signupAsPatient", doctorSignup, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestHandler_MalformedJSON(t *testing.T) {
	e, _ := newTestServer(t)

	rec, body := do(t, e, http.MethodPost, "/api/users/login", `{"email":`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["status"] != "fail" {
		t.Errorf("expected fail envelope, got %v", body)
	}
}

func TestHandler_LoginAndLogout(t *testing.T) {
	e, _ := newTestServer(t)
	do(t, e, http.MethodPost, "/api/users/signupAsDoctor", doctorSignup, "")

	rec, body := do(t, e, http.MethodPost, "/api/users/login", `{"email":"d@x.com","password":"Passw0rd!"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", rec.Code)
	}
	token := body["token"].(string)

	rec, body = do(t, e, http.MethodPost, "/api/users/logout", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if tok, _ := body["token"].(string); tok == "" || tok == token {
		t.Errorf("expected a fresh revoked token, got %q", tok)
	}

	rec, _ = do(t, e, http.MethodGet, "/api/users/", "", token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("logged out token should be rejected, got %d", rec.Code)
	}
}

func TestHandler_LoginFailures(t *testing.T) {
	e, _ := newTestServer(t)

	rec, body := do(t, e, http.MethodPost, "/api/users/login", `{"email":"d@x.com"}`, "")
	if rec.Code != http.StatusBadRequest || body["message"] != MsgMissingCredentials {
		t.Errorf("missing password: got %d %v", rec.Code, body)
	}

	rec, body = do(t, e, http.MethodPost, "/api/users/login", `{"email":"d@x.com","password":"Passw0rd!"}`, "")
	if rec.Code != http.StatusUnauthorized || body["message"] != MsgIncorrectLogin {
		t.Errorf("unknown user: got %d %v", rec.Code, body)
	}
}

func TestHandler_ProtectedRouteWithoutToken(t *testing.T) {
	e, _ := newTestServer(t)

	rec, body := do(t, e, http.MethodPatch, "/api/users/updateMe", `{"name":"x"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body["message"] != "You are not logged in! Please log in to get access." {
		t.Errorf("unexpected message %v", body["message"])
	}
}

func TestHandler_ForgotAndResetPassword(t *testing.T) {
	e, env := newTestServer(t)
	do(t, e, http.MethodPost, "/api/users/signupAsDoctor", doctorSignup, "")

	rec, body := do(t, e, http.MethodPost, "/api/users/forgotPassword", `{"email":"d@x.com"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot: expected 200, got %d", rec.Code)
	}
	if body["message"] != MsgTokenSent {
		t.Errorf("unexpected message %v", body["message"])
	}
	if _, ok := body["token"]; ok {
		t.Error("reset token must not be echoed")
	}

	calls := env.mail.Calls()
	if !strings.Contains(calls[len(calls)-1].Body, "http://example.com/api/users/resetPassword/") {
		t.Errorf("reset URL should point at this server, got %q", calls[len(calls)-1].Body)
	}
	plain := env.lastResetToken(t)

	reset := `{"password":"N3wPassword!","passwordConfirm":"N3wPassword!"}`
	rec, body = do(t, e, http.MethodPatch, "/api/users/resetPassword/"+plain, reset, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if tok, _ := body["token"].(string); tok == "" {
		t.Error("reset should log the user in")
	}

	rec, body = do(t, e, http.MethodPatch, "/api/users/resetPassword/"+plain, reset, "")
	if rec.Code != http.StatusBadRequest || body["message"] != MsgInvalidResetToken {
		t.Errorf("second reset: got %d %v", rec.Code, body)
	}
}

func TestHandler_ForgotPasswordDispatchFailure(t *testing.T) {
	e, env := newTestServer(t)
	do(t, e, http.MethodPost, "/api/users/signupAsDoctor", doctorSignup, "")
	env.mail.ShouldFail = true

	rec, body := do(t, e, http.MethodPost, "/api/users/forgotPassword", `{"email":"d@x.com"}`, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body["status"] != "error" || body["message"] != MsgEmailFailed {
		t.Errorf("unexpected envelope %v", body)
	}
}

func TestHandler_UpdateMeAndDeleteMe(t *testing.T) {
	e, _ := newTestServer(t)
	_, body := do(t, e, http.MethodPost, "/api/users/signupAsDoctor", doctorSignup, "")
	token := body["token"].(string)

	rec, body := do(t, e, http.MethodPatch, "/api/users/updateMe", `{"password":"x"}`, token)
	if rec.Code != http.StatusBadRequest || body["message"] != MsgNotForPasswords {
		t.Errorf("password via updateMe: got %d %v", rec.Code, body)
	}

	rec, body = do(t, e, http.MethodPatch, "/api/users/updateMe", `{"name":"Dr Y","role":"patient"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("updateMe: expected 200, got %d", rec.Code)
	}
	user := body["data"].(map[string]interface{})["user"].(map[string]interface{})
	if user["name"] != "Dr Y" || user["role"] != "doctor" {
		t.Errorf("unexpected user after update: %v", user)
	}

	rec, _ = do(t, e, http.MethodDelete, "/api/users/deleteMe", "", token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("deleteMe: expected 204, got %d", rec.Code)
	}

	rec, _ = do(t, e, http.MethodGet, "/api/users/", "", token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("deleted user's token should be rejected, got %d", rec.Code)
	}
}

func TestHandler_UpdateMyPassword(t *testing.T) {
	e, _ := newTestServer(t)
	_, body := do(t, e, http.MethodPost, "/api/users/signupAsDoctor", doctorSignup, "")
	token := body["token"].(string)

	rec, _ := do(t, e, http.MethodPatch, "/api/users/updateMyPassword",
		`{"passwordCurrent":"wrong-one","password":"N3wPassword!","passwordConfirm":"N3wPassword!"}`, token)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password: expected 401, got %d", rec.Code)
	}

	rec, body = do(t, e, http.MethodPatch, "/api/users/updateMyPassword",
		`{"passwordCurrent":"Passw0rd!","password":"N3wPassword!","passwordConfirm":"N3wPassword!"}`, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if tok, _ := body["token"].(string); tok == "" || tok == token {
		t.Error("expected a new token")
	}
}

func TestHandler_ListUsers(t *testing.T) {
	e, _ := newTestServer(t)
	_, body := do(t, e, http.MethodPost, "/api/users/signupAsDoctor", doctorSignup, "")
	token := body["token"].(string)
	do(t, e, http.MethodPost, "/api/users/signupAsPatient",
		`{"name":"P","email":"p@x.com","password":"Passw0rd!","passwordConfirm":"Passw0rd!"}`, "")

	rec, body := do(t, e, http.MethodGet, "/api/users/?limit=1", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["results"] != float64(1) || body["total"] != float64(2) {
		t.Errorf("expected 1 of 2 users, got results=%v total=%v", body["results"], body["total"])
	}
	if body["hasMore"] != true {
		t.Errorf("expected hasMore, got %v", body["hasMore"])
	}

	rec, _ = do(t, e, http.MethodGet, "/api/users/?offset=-1", "", token)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative offset: expected 400, got %d", rec.Code)
	}
}
