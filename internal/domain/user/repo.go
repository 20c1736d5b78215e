package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repository is the credential store. Every lookup ignores deactivated users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetActiveByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	// UpdateProfile changes the non-nil fields and returns the updated user.
	UpdateProfile(ctx context.Context, id uuid.UUID, name, email *string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) (*User, error)
	// SetResetToken stores a reset hash and expiry; the latest call wins.
	SetResetToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error
	// ClearResetToken removes the reset fields only while hash is still the
	// stored one, so a rollback never erases a newer token.
	ClearResetToken(ctx context.Context, id uuid.UUID, hash string) error
	// ConsumeResetToken atomically matches an unexpired hash, sets the new
	// password and clears the reset fields. ErrNotFound when nothing matched.
	ConsumeResetToken(ctx context.Context, hash, passwordHash string, changedAt, now time.Time) (*User, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}
