package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aimedicare/aimedicare/internal/platform/auth"
)

const pgUniqueViolation = "23505"

// queryable abstracts pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(_ context.Context) queryable {
	return r.pool
}

const userColumns = `id, name, email, role, password_hash, password_changed_at,
	password_reset_token, password_reset_expires, active, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, name, email, role, password_hash, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Email, string(u.Role), u.PasswordHash,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	u.Active = true
	return nil
}

func (r *repoPG) GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND active`, id))
}

func (r *repoPG) GetActiveByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND active`, email))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE active`).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE active ORDER BY created_at, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *repoPG) UpdateProfile(ctx context.Context, id uuid.UUID, name, email *string) (*User, error) {
	u, err := r.scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			updated_at = NOW()
		WHERE id = $1 AND active
		RETURNING `+userColumns,
		id, name, email,
	))
	return u, mapError(err)
}

func (r *repoPG) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, changedAt time.Time) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET
			password_hash = $2,
			password_changed_at = $3,
			password_reset_token = NULL,
			password_reset_expires = NULL,
			updated_at = NOW()
		WHERE id = $1 AND active
		RETURNING `+userColumns,
		id, passwordHash, changedAt,
	))
}

func (r *repoPG) SetResetToken(ctx context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET password_reset_token = $2, password_reset_expires = $3, updated_at = NOW()
		WHERE id = $1 AND active`,
		id, hash, expiresAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ClearResetToken(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET password_reset_token = NULL, password_reset_expires = NULL, updated_at = NOW()
		WHERE id = $1 AND password_reset_token = $2`,
		id, hash,
	)
	return err
}

func (r *repoPG) ConsumeResetToken(ctx context.Context, hash, passwordHash string, changedAt, now time.Time) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `
		UPDATE users SET
			password_hash = $2,
			password_changed_at = $3,
			password_reset_token = NULL,
			password_reset_expires = NULL,
			updated_at = NOW()
		WHERE password_reset_token = $1 AND password_reset_expires > $4 AND active
		RETURNING `+userColumns,
		hash, passwordHash, changedAt, now,
	))
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET active = FALSE, password_reset_token = NULL, password_reset_expires = NULL, updated_at = NOW()
		WHERE id = $1 AND active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) PurgeExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET password_reset_token = NULL, password_reset_expires = NULL
		WHERE password_reset_expires IS NOT NULL AND password_reset_expires <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &role, &u.PasswordHash, &u.PasswordChangedAt,
		&u.PasswordResetToken, &u.PasswordResetExpires, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.Role = parsed
	return &u, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, pgErr.ConstraintName)
	}
	return err
}
