package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
)

type contextKey string

const sessionKey contextKey = "auth_session"

const (
	MsgNotLoggedIn  = "You are not logged in! Please log in to get access."
	MsgInvalidToken = "Invalid token. Please log in again!"
	MsgTokenExpired = "Your token has expired! Please log in again."
	MsgTokenRevoked = "This session has been logged out. Please log in again."
	MsgUserGone     = "The user belonging to this token does no longer exist."
	MsgStaleSession = "User recently changed password! Please log in again."
)

// ErrPrincipalNotFound is returned by a PrincipalLoader when the user does not
// exist or has been deactivated.
var ErrPrincipalNotFound = errors.New("principal not found")

// Principal is the authentication view of an active user.
type Principal struct {
	ID                string
	Role              Role
	PasswordChangedAt *time.Time
}

// ChangedPasswordAfter reports whether the password was changed after a token
// issued at iat. Both sides are compared in milliseconds, the precision of
// the iat_ms claim.
func (p *Principal) ChangedPasswordAfter(iat time.Time) bool {
	if p.PasswordChangedAt == nil {
		return false
	}
	return p.PasswordChangedAt.UnixMilli() > iat.UnixMilli()
}

// PrincipalLoader resolves active users by id.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID string) (*Principal, error)
}

// Session is what a successful authentication attaches to the request.
type Session struct {
	Token     string
	Claims    *Claims
	Principal *Principal
}

// gate is one step of the authentication pipeline. It either fills in more of
// the session and returns nil, or stops the pipeline with an error.
type gate func(ctx context.Context, authorization string, s *Session) error

// Authenticator runs the ordered gate pipeline shared by protect and logout:
// bearer extraction, signature and expiry, revocation, active user, stale
// session.
type Authenticator struct {
	codec       *TokenCodec
	loader      PrincipalLoader
	revocations *TokenRevocationStore
	gates       []gate
}

// NewAuthenticator wires the pipeline. revocations may be nil.
func NewAuthenticator(codec *TokenCodec, loader PrincipalLoader, revocations *TokenRevocationStore) *Authenticator {
	a := &Authenticator{codec: codec, loader: loader, revocations: revocations}
	a.gates = []gate{a.bearer, a.verify, a.notRevoked, a.loadPrincipal, a.freshSession}
	return a
}

func (a *Authenticator) Codec() *TokenCodec { return a.codec }

func (a *Authenticator) Revocations() *TokenRevocationStore { return a.revocations }

// Authenticate runs every gate in order and stops at the first failure.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (*Session, error) {
	s := &Session{}
	for _, g := range a.gates {
		if err := g(ctx, authorization, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Protect rejects requests without a valid session and attaches the session
// to the request context for downstream handlers.
func (a *Authenticator) Protect() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, err := a.Authenticate(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), s)))
			return next(c)
		}
	}
}

func (a *Authenticator) bearer(_ context.Context, authorization string, s *Session) error {
	token, ok := BearerToken(authorization)
	if !ok {
		return apperror.Unauthenticated(MsgNotLoggedIn)
	}
	s.Token = token
	return nil
}

func (a *Authenticator) verify(_ context.Context, _ string, s *Session) error {
	claims, err := a.codec.Verify(s.Token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return apperror.Wrap(apperror.KindUnauthenticated, MsgTokenExpired, err)
		}
		return apperror.Wrap(apperror.KindUnauthenticated, MsgInvalidToken, err)
	}
	s.Claims = claims
	return nil
}

func (a *Authenticator) notRevoked(_ context.Context, _ string, s *Session) error {
	if a.revocations != nil && s.Claims.ID != "" && a.revocations.IsRevoked(s.Claims.ID) {
		return apperror.Unauthenticated(MsgTokenRevoked)
	}
	return nil
}

func (a *Authenticator) loadPrincipal(ctx context.Context, _ string, s *Session) error {
	p, err := a.loader.LoadPrincipal(ctx, s.Claims.UserID())
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return apperror.Wrap(apperror.KindUnauthenticated, MsgUserGone, err)
		}
		return apperror.Unexpected(err)
	}
	s.Principal = p
	return nil
}

func (a *Authenticator) freshSession(_ context.Context, _ string, s *Session) error {
	if s.Principal.ChangedPasswordAfter(s.Claims.IssuedAtTime()) {
		return apperror.New(apperror.KindStaleSession, MsgStaleSession)
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(authorization string) (string, bool) {
	if authorization == "" {
		return "", false
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session attached by Protect.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil && s.Principal != nil
}
