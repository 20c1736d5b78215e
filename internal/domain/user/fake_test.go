package user

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memRepo is an in-memory Repository honouring the same contract as repoPG.
type memRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
	err   error // returned by every call when set
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[uuid.UUID]*User)}
}

func clone(u *User) *User {
	c := *u
	return &c
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Active = true
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = clone(u)
	return nil
}

func (m *memRepo) GetActiveByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok || !u.Active {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (m *memRepo) GetActiveByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Email == email && u.Active {
			return clone(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	var active []*User
	for _, u := range m.users {
		if u.Active {
			active = append(active, clone(u))
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Email < active[j].Email })
	total := len(active)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return active[offset:end], total, nil
}

func (m *memRepo) UpdateProfile(_ context.Context, id uuid.UUID, name, email *string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok || !u.Active {
		return nil, ErrNotFound
	}
	if email != nil {
		for otherID, other := range m.users {
			if otherID != id && other.Email == *email {
				return nil, ErrDuplicateEmail
			}
		}
		u.Email = *email
	}
	if name != nil {
		u.Name = *name
	}
	return clone(u), nil
}

func (m *memRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string, changedAt time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok || !u.Active {
		return nil, ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = &changedAt
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return clone(u), nil
}

func (m *memRepo) SetResetToken(_ context.Context, id uuid.UUID, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[id]
	if !ok || !u.Active {
		return ErrNotFound
	}
	u.PasswordResetToken = &hash
	u.PasswordResetExpires = &expiresAt
	return nil
}

func (m *memRepo) ClearResetToken(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[id]
	if ok && u.PasswordResetToken != nil && *u.PasswordResetToken == hash {
		u.PasswordResetToken = nil
		u.PasswordResetExpires = nil
	}
	return nil
}

func (m *memRepo) ConsumeResetToken(_ context.Context, hash, passwordHash string, changedAt, now time.Time) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if !u.Active || u.PasswordResetToken == nil || *u.PasswordResetToken != hash {
			continue
		}
		if !u.PasswordResetExpires.After(now) {
			return nil, ErrNotFound
		}
		u.PasswordHash = passwordHash
		u.PasswordChangedAt = &changedAt
		u.PasswordResetToken = nil
		u.PasswordResetExpires = nil
		return clone(u), nil
	}
	return nil, ErrNotFound
}

func (m *memRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[id]
	if !ok || !u.Active {
		return ErrNotFound
	}
	u.Active = false
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
	return nil
}

func (m *memRepo) PurgeExpiredResetTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, u := range m.users {
		if u.PasswordResetExpires != nil && !u.PasswordResetExpires.After(now) {
			u.PasswordResetToken = nil
			u.PasswordResetExpires = nil
			n++
		}
	}
	return n, nil
}

// raw returns the stored record, including inactive users.
func (m *memRepo) raw(id uuid.UUID) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return clone(u)
	}
	return nil
}
