// Package memory keeps users in process memory. It backs local runs with
// STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/models"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
)

type UserRepository struct {
	mu         sync.RWMutex
	nextID     int64
	byID       map[int64]*models.User
	byUsername map[string]int64
	byEmail    map[string]int64
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:       make(map[int64]*models.User),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
	}
}

func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[user.Username]; ok {
		return pkgerrors.ErrDuplicateUsername
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return pkgerrors.ErrDuplicateEmail
	}

	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now().UTC()

	stored := cloneUser(user)
	r.byID[user.ID] = stored
	r.byUsername[user.Username] = user.ID
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	id, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) SetRefreshToken(_ context.Context, userID int64, jti string, expiresAt time.Time) error {
	return r.update(userID, func(u *models.User) {
		u.RefreshToken = &jti
		u.RefreshTokenExpires = &expiresAt
	})
}

func (r *UserRepository) ClearRefreshToken(_ context.Context, userID int64) error {
	return r.update(userID, func(u *models.User) {
		u.RefreshToken = nil
		u.RefreshTokenExpires = nil
	})
}

func (r *UserRepository) TouchLastLogin(_ context.Context, userID int64, at time.Time) error {
	return r.update(userID, func(u *models.User) {
		u.LastLogin = &at
	})
}

func (r *UserRepository) SetActive(_ context.Context, userID int64, active bool) error {
	return r.update(userID, func(u *models.User) {
		u.IsActive = active
	})
}

func (r *UserRepository) update(userID int64, apply func(u *models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return pkgerrors.ErrUserNotFound
	}
	apply(user)
	return nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.RefreshToken != nil {
		s := *u.RefreshToken
		c.RefreshToken = &s
	}
	if u.RefreshTokenExpires != nil {
		t := *u.RefreshTokenExpires
		c.RefreshTokenExpires = &t
	}
	return &c
}
