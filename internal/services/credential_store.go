package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/models"
	"github.com/honeynil/LibraryAuthService/internal/repository"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore owns user records, password hashes and the single
// outstanding refresh token identifier per user.
type CredentialStore struct {
	repo repository.UserRepository
	cost int
	now  func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

func NewCredentialStore(repo repository.UserRepository, bcryptCost int) *CredentialStore {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &CredentialStore{repo: repo, cost: bcryptCost, now: time.Now}
}

func (s *CredentialStore) CreateUser(ctx context.Context, username, email, password, fullName string) (*models.User, error) {
	return s.createUser(ctx, username, email, password, fullName, false)
}

// CreateAdmin is CreateUser with the admin flag set.
func (s *CredentialStore) CreateAdmin(ctx context.Context, username, email, password, fullName string) (*models.User, error) {
	return s.createUser(ctx, username, email, password, fullName, true)
}

// EnsureAdmin creates the configured admin account once. An existing
// account with that username is left untouched.
func (s *CredentialStore) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if username == "" {
		return nil
	}
	user, err := s.CreateAdmin(ctx, username, email, password, "")
	if stderrors.Is(err, pkgerrors.ErrDuplicateUsername) {
		slog.Info("admin account already exists", "username", username)
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("admin account created", "user_id", user.ID, "username", username)
	return nil
}

func (s *CredentialStore) createUser(ctx context.Context, username, email, password, fullName string, isAdmin bool) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", pkgerrors.ErrInvalidInput)
	}
	if len(password) > MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password exceeds %d bytes", pkgerrors.ErrInvalidInput, MaxPasswordBytes)
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, pkgerrors.ErrDuplicateUsername
	} else if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: failed to check username: %w", pkgerrors.ErrInternal, err)
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, pkgerrors.ErrDuplicateEmail
	} else if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: failed to check email: %w", pkgerrors.ErrInternal, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to hash password: %w", pkgerrors.ErrInternal, err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(fullName),
		IsAdmin:      isAdmin,
		IsActive:     true,
	}
	// The unique constraints decide races between the checks above and this insert.
	if err := s.repo.Create(ctx, user); err != nil {
		if stderrors.Is(err, pkgerrors.ErrDuplicateUsername) || stderrors.Is(err, pkgerrors.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to create user: %w", pkgerrors.ErrInternal, err)
	}
	return user, nil
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *CredentialStore) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// VerifyPassword compares in constant time. A nil user is still compared
// against a throwaway hash so unknown usernames cost the same as known ones.
func (s *CredentialStore) VerifyPassword(user *models.User, plaintext string) bool {
	hash := s.fallbackHash()
	if user != nil && user.PasswordHash != "" {
		hash = []byte(user.PasswordHash)
	}
	err := bcrypt.CompareHashAndPassword(hash, []byte(plaintext))
	return err == nil && user != nil
}

func (s *CredentialStore) SetRefreshToken(ctx context.Context, user *models.User, jti string, expiresAt time.Time) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if err := s.repo.SetRefreshToken(ctx, user.ID, jti, expiresAt); err != nil {
		return err
	}
	user.RefreshToken = &jti
	user.RefreshTokenExpires = &expiresAt
	return nil
}

func (s *CredentialStore) ClearRefreshToken(ctx context.Context, user *models.User) error {
	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if err := s.repo.ClearRefreshToken(ctx, user.ID); err != nil {
		return err
	}
	user.RefreshToken = nil
	user.RefreshTokenExpires = nil
	return nil
}

// TouchLastLogin is best effort: failures are logged and swallowed.
func (s *CredentialStore) TouchLastLogin(ctx context.Context, user *models.User) {
	if user == nil {
		return
	}
	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("failed to update last login", "user_id", user.ID, "error", err)
		return
	}
	user.LastLogin = &now
}

func (s *CredentialStore) fallbackHash() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("library-auth-placeholder"), s.cost)
		if err != nil {
			slog.Error("failed to prepare placeholder hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
