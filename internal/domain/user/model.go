package user

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aimedicare/aimedicare/internal/platform/auth"
)

// User is the identity and credential record. Credential fields never leave
// the process: they are tagged out of every JSON representation.
type User struct {
	ID                   uuid.UUID  `json:"id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	Role                 auth.Role  `json:"role"`
	PasswordHash         string     `json:"-"`
	PasswordChangedAt    *time.Time `json:"-"`
	PasswordResetToken   *string    `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`
	Active               bool       `json:"-"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Principal returns the authentication view of u.
func (u *User) Principal() *auth.Principal {
	return &auth.Principal{
		ID:                u.ID.String(),
		Role:              u.Role,
		PasswordChangedAt: u.PasswordChangedAt,
	}
}

// NormalizeEmail trims and lowercases an address; emails are unique in this
// form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type SignupRequest struct {
	Name            string `json:"name" validate:"required,max=255"`
	Email           string `json:"email" validate:"required,email,max=320"`
	Password        string `json:"password" validate:"required,min=8,bcryptlen"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required,min=8,bcryptlen"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,bcryptlen"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// UpdateMeRequest carries the profile fields a user may change themselves.
// Password fields are decoded only so their presence can be rejected.
type UpdateMeRequest struct {
	Name            *string `json:"name" validate:"omitnil,min=1,max=255"`
	Email           *string `json:"email" validate:"omitnil,email,max=320"`
	Password        *string `json:"password" validate:"-"`
	PasswordConfirm *string `json:"passwordConfirm" validate:"-"`
}

// AuthResult is returned by every operation that logs the user in.
type AuthResult struct {
	Token string
	User  *User
}
