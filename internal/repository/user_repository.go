package repository

import (
	"context"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/models"
)

// UserRepository persists user identity and the refresh token identifier.
// Create reports uniqueness violations as ErrDuplicateUsername or
// ErrDuplicateEmail, lookups report a missing row as ErrUserNotFound.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetRefreshToken(ctx context.Context, userID int64, jti string, expiresAt time.Time) error
	ClearRefreshToken(ctx context.Context, userID int64) error
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) error
	SetActive(ctx context.Context, userID int64, active bool) error
}
