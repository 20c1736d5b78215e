package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/aimedicare/aimedicare/internal/platform/auth"
)

// PrincipalLoader resolves token subjects against the credential store for
// the auth pipeline.
type PrincipalLoader struct {
	repo Repository
}

func NewPrincipalLoader(repo Repository) *PrincipalLoader {
	return &PrincipalLoader{repo: repo}
}

func (l *PrincipalLoader) LoadPrincipal(ctx context.Context, userID string) (*auth.Principal, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subject", auth.ErrPrincipalNotFound)
	}
	u, err := l.repo.GetActiveByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", auth.ErrPrincipalNotFound, userID)
		}
		return nil, err
	}
	return u.Principal(), nil
}
