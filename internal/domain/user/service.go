package user

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
	"github.com/aimedicare/aimedicare/internal/platform/auth"
	"github.com/aimedicare/aimedicare/internal/platform/notification"
	"github.com/aimedicare/aimedicare/internal/platform/telemetry"
)

// Client-facing messages.
const (
	MsgMissingCredentials = "Please provide email and password!"
	MsgIncorrectLogin     = "Incorrect email or password"
	MsgWrongCurrent       = "Your current password is wrong."
	MsgDuplicateEmail     = "This email is already registered. Please use another email!"
	MsgMissingEmail       = "Please provide your email address"
	MsgNoUserWithEmail    = "There is no user with that email address."
	MsgTokenSent          = "Token sent to email!"
	MsgEmailFailed        = "There was an error sending the email. Try again later!"
	MsgInvalidResetToken  = "Token is invalid or has expired"
	MsgNotForPasswords    = "This is not for password updates. Please use /updateMyPassword."
)

// Options configures a Service. Repo, Authenticator, Hasher and Mailer are
// required.
type Options struct {
	Repo          Repository
	Authenticator *auth.Authenticator
	Hasher        *auth.PasswordHasher
	Mailer        *notification.Mailer
	Metrics       *telemetry.Metrics
	Logger        zerolog.Logger
	ResetTTL      time.Duration
}

type Service struct {
	repo     Repository
	authn    *auth.Authenticator
	codec    *auth.TokenCodec
	hasher   *auth.PasswordHasher
	mailer   *notification.Mailer
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	resetTTL time.Duration
	now      func() time.Time
}

func NewService(opts Options) *Service {
	ttl := opts.ResetTTL
	if ttl <= 0 {
		ttl = auth.DefaultResetTTL
	}
	return &Service{
		repo:     opts.Repo,
		authn:    opts.Authenticator,
		codec:    opts.Authenticator.Codec(),
		hasher:   opts.Hasher,
		mailer:   opts.Mailer,
		metrics:  opts.Metrics,
		logger:   opts.Logger.With().Str("component", "user").Logger(),
		resetTTL: ttl,
		now:      time.Now,
	}
}

// passwordChangedAt is truncated to the microsecond precision of timestamptz
// so the stored value never rounds past a token issued right after it.
func (s *Service) passwordChangedAt() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) issue(u *User) (*AuthResult, error) {
	token, _, err := s.codec.Issue(u.ID.String())
	if err != nil {
		return nil, apperror.Unexpected(fmt.Errorf("issue token: %w", err))
	}
	return &AuthResult{Token: token, User: u}, nil
}

// Signup creates an account with a fixed role and logs it in.
func (s *Service) Signup(ctx context.Context, role auth.Role, req SignupRequest) (*AuthResult, error) {
	if !role.Valid() {
		return nil, apperror.Unexpected(fmt.Errorf("signup with invalid role %q", role))
	}
	req.Email = NormalizeEmail(req.Email)
	if err := validateRequest(req); err != nil {
		s.metrics.AuthEvent("signup", "rejected")
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperror.Unexpected(err)
	}

	u := &User{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			s.metrics.AuthEvent("signup", "rejected")
			return nil, apperror.Wrap(apperror.KindDuplicateEmail, MsgDuplicateEmail, err)
		}
		return nil, apperror.Unexpected(fmt.Errorf("create user: %w", err))
	}

	s.metrics.AuthEvent("signup", "success")
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", role.String()).Msg("user signed up")

	if s.mailer != nil {
		err := s.mailer.SendTemplate(ctx, notification.TemplateWelcome, u.Email, map[string]string{
			"name": u.Name,
			"role": role.String(),
		})
		s.metrics.EmailDispatch(notification.TemplateWelcome, err)
		if err != nil {
			s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("welcome email not sent")
		}
	}

	return s.issue(u)
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	email := NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperror.New(apperror.KindMissingCredentials, MsgMissingCredentials)
	}

	u, err := s.repo.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.AuthEvent("login", "failure")
			return nil, apperror.New(apperror.KindInvalidCredentials, MsgIncorrectLogin)
		}
		return nil, apperror.Unexpected(fmt.Errorf("lookup user: %w", err))
	}

	ok, err := s.hasher.Compare(u.PasswordHash, req.Password)
	if err != nil {
		return nil, apperror.Unexpected(err)
	}
	if !ok {
		s.metrics.AuthEvent("login", "failure")
		s.logger.Warn().Str("user_id", u.ID.String()).Msg("login with wrong password")
		return nil, apperror.New(apperror.KindInvalidCredentials, MsgIncorrectLogin)
	}

	s.metrics.AuthEvent("login", "success")
	return s.issue(u)
}

// Logout authenticates the presented token, revokes it for the rest of its
// lifetime and returns an already-expired replacement.
func (s *Service) Logout(ctx context.Context, authorization string) (string, error) {
	sess, err := s.authn.Authenticate(ctx, authorization)
	if err != nil {
		s.metrics.AuthEvent("logout", "failure")
		return "", err
	}

	if rs := s.authn.Revocations(); rs != nil {
		rs.Revoke(sess.Claims.ID, sess.Claims.ExpiresAtTime())
	}

	token, _, err := s.codec.IssueRevoked(sess.Principal.ID)
	if err != nil {
		return "", apperror.Unexpected(fmt.Errorf("issue revoked token: %w", err))
	}
	s.metrics.AuthEvent("logout", "success")
	return token, nil
}

// ForgotPassword stores a reset secret and mails it to the user. resetURL is
// the absolute URL the plaintext token is appended to.
func (s *Service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest, resetURL string) error {
	email := NormalizeEmail(req.Email)
	if email == "" {
		return apperror.Validation(MsgMissingEmail)
	}

	u, err := s.repo.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperror.New(apperror.KindUserNotFound, MsgNoUserWithEmail)
		}
		return apperror.Unexpected(fmt.Errorf("lookup user: %w", err))
	}

	rt, err := auth.NewResetToken(s.now(), s.resetTTL)
	if err != nil {
		return apperror.Unexpected(err)
	}
	if err := s.repo.SetResetToken(ctx, u.ID, rt.Hash, rt.ExpiresAt); err != nil {
		return apperror.Unexpected(fmt.Errorf("store reset token: %w", err))
	}

	err = s.mailer.SendTemplate(ctx, notification.TemplatePasswordReset, u.Email, map[string]string{
		"reset_url":   resetURL + rt.Plain,
		"ttl_minutes": strconv.Itoa(int(s.resetTTL.Minutes())),
	})
	s.metrics.EmailDispatch(notification.TemplatePasswordReset, err)
	if err != nil {
		// The rollback must run even if the request was cancelled.
		rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if cerr := s.repo.ClearResetToken(rollbackCtx, u.ID, rt.Hash); cerr != nil {
			s.logger.Error().Err(cerr).Str("user_id", u.ID.String()).Msg("reset token rollback failed")
			return apperror.Unexpected(errors.Join(err, cerr))
		}
		s.logger.Error().Err(err).Str("user_id", u.ID.String()).Msg("reset email failed, token rolled back")
		return apperror.Wrap(apperror.KindEmailDispatchFailed, MsgEmailFailed, err)
	}

	s.metrics.AuthEvent("forgot_password", "success")
	s.logger.Info().Str("user_id", u.ID.String()).Msg("password reset requested")
	return nil
}

// ResetPassword consumes a reset secret, sets the new password and logs the
// user in.
func (s *Service) ResetPassword(ctx context.Context, plain string, req ResetPasswordRequest) (*AuthResult, error) {
	if plain == "" {
		return nil, apperror.New(apperror.KindInvalidOrExpiredToken, MsgInvalidResetToken)
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperror.Unexpected(err)
	}

	now := s.now()
	u, err := s.repo.ConsumeResetToken(ctx, auth.HashResetToken(plain), hash, s.passwordChangedAt(), now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.AuthEvent("reset_password", "failure")
			return nil, apperror.New(apperror.KindInvalidOrExpiredToken, MsgInvalidResetToken)
		}
		return nil, apperror.Unexpected(fmt.Errorf("consume reset token: %w", err))
	}

	s.metrics.AuthEvent("reset_password", "success")
	s.logger.Info().Str("user_id", u.ID.String()).Msg("password reset completed")
	return s.issue(u)
}

// UpdatePassword changes the password of the session's user after checking
// the current one. The presented token is revoked and a new one returned.
func (s *Service) UpdatePassword(ctx context.Context, sess *auth.Session, req UpdatePasswordRequest) (*AuthResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	u, err := s.currentUser(ctx, sess)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Compare(u.PasswordHash, req.PasswordCurrent)
	if err != nil {
		return nil, apperror.Unexpected(err)
	}
	if !ok {
		s.metrics.AuthEvent("update_password", "failure")
		return nil, apperror.New(apperror.KindInvalidCredentials, MsgWrongCurrent)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperror.Unexpected(err)
	}
	u, err = s.repo.UpdatePassword(ctx, u.ID, hash, s.passwordChangedAt())
	if err != nil {
		return nil, s.lookupError(err)
	}

	s.revokeSession(sess)
	s.metrics.AuthEvent("update_password", "success")
	s.logger.Info().Str("user_id", u.ID.String()).Msg("password changed")
	return s.issue(u)
}

// UpdateMe changes the name and email of the session's user.
func (s *Service) UpdateMe(ctx context.Context, sess *auth.Session, req UpdateMeRequest) (*User, error) {
	if req.Password != nil || req.PasswordConfirm != nil {
		return nil, apperror.Validation(MsgNotForPasswords)
	}
	if req.Email != nil {
		e := NormalizeEmail(*req.Email)
		req.Email = &e
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	id, err := sessionUserID(sess)
	if err != nil {
		return nil, err
	}
	if req.Name == nil && req.Email == nil {
		return s.currentUser(ctx, sess)
	}

	u, err := s.repo.UpdateProfile(ctx, id, req.Name, req.Email)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, apperror.Wrap(apperror.KindDuplicateEmail, MsgDuplicateEmail, err)
		}
		return nil, s.lookupError(err)
	}
	return u, nil
}

// DeleteMe deactivates the session's user. The record is kept; every lookup
// treats it as gone from now on.
func (s *Service) DeleteMe(ctx context.Context, sess *auth.Session) error {
	id, err := sessionUserID(sess)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return s.lookupError(err)
	}
	s.revokeSession(sess)
	s.logger.Info().Str("user_id", id.String()).Msg("user deactivated")
	return nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	users, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperror.Unexpected(fmt.Errorf("list users: %w", err))
	}
	return users, total, nil
}

// PurgeExpiredResetTokens clears reset secrets whose expiry has passed.
func (s *Service) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	return s.repo.PurgeExpiredResetTokens(ctx, s.now())
}

func (s *Service) currentUser(ctx context.Context, sess *auth.Session) (*User, error) {
	id, err := sessionUserID(sess)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetActiveByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(err)
	}
	return u, nil
}

func (s *Service) revokeSession(sess *auth.Session) {
	if rs := s.authn.Revocations(); rs != nil && sess.Claims != nil {
		rs.Revoke(sess.Claims.ID, sess.Claims.ExpiresAtTime())
	}
}

// lookupError maps a repository failure for the session's own user.
func (s *Service) lookupError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperror.Wrap(apperror.KindUnauthenticated, auth.MsgUserGone, err)
	}
	return apperror.Unexpected(err)
}

func sessionUserID(sess *auth.Session) (uuid.UUID, error) {
	if sess == nil || sess.Principal == nil {
		return uuid.Nil, apperror.Unauthenticated(auth.MsgNotLoggedIn)
	}
	id, err := uuid.Parse(sess.Principal.ID)
	if err != nil {
		return uuid.Nil, apperror.Wrap(apperror.KindUnauthenticated, auth.MsgInvalidToken, err)
	}
	return id, nil
}
