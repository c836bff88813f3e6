package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/auth"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/observability"
	"github.com/honeynil/LibraryAuthService/internal/models"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour

	jtiBytes = 32
)

type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// TokenService issues, verifies and revokes access and refresh tokens.
type TokenService struct {
	store      *CredentialStore
	jwt        *auth.JWTManager
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenService(store *CredentialStore, cfg TokenConfig) (*TokenService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: credential store is required", pkgerrors.ErrInvalidInput)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	manager, err := auth.NewJWTManager(cfg.Secret, now)
	if err != nil {
		return nil, err
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		store:      store,
		jwt:        manager,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        now,
	}, nil
}

func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Authenticate returns ErrInvalidCredentials for an unknown user, an inactive
// account and a wrong password alike. The specific cause stays wrapped for logs.
func (s *TokenService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if !stderrors.Is(err, pkgerrors.ErrUserNotFound) && !stderrors.Is(err, pkgerrors.ErrInvalidInput) {
			slog.Error("failed to load user for login", "username", username, "error", err)
			return nil, fmt.Errorf("%w: %w", pkgerrors.ErrInternal, err)
		}
		s.store.VerifyPassword(nil, password)
		return nil, s.credentialFailure(username, pkgerrors.ErrUserNotFound)
	}

	if !user.IsActive {
		return nil, s.credentialFailure(username, pkgerrors.ErrUserInactive)
	}

	if !s.store.VerifyPassword(user, password) {
		return nil, s.credentialFailure(username, pkgerrors.ErrInvalidPassword)
	}

	s.store.TouchLastLogin(ctx, user)
	return user, nil
}

func (s *TokenService) IssueAccessToken(user *models.User) (string, error) {
	if user == nil {
		return "", pkgerrors.ErrNilUser
	}
	issued := s.issuedAt()
	token, err := s.jwt.Sign(&auth.Claims{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		IsAdmin:   user.IsAdmin,
		TokenType: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.accessTTL)),
		},
	})
	if err != nil {
		return "", err
	}
	observability.TokensIssued.WithLabelValues(string(models.TokenTypeAccess)).Inc()
	return token, nil
}

// IssueRefreshToken persists a fresh jti before signing, which revokes any
// refresh token issued to the user earlier.
func (s *TokenService) IssueRefreshToken(ctx context.Context, user *models.User) (string, error) {
	if user == nil {
		return "", pkgerrors.ErrNilUser
	}
	jti, err := newTokenID()
	if err != nil {
		return "", fmt.Errorf("%w: failed to generate token id: %w", pkgerrors.ErrInternal, err)
	}

	issued := s.issuedAt()
	expiresAt := issued.Add(s.refreshTTL)
	if err := s.store.SetRefreshToken(ctx, user, jti, expiresAt); err != nil {
		return "", fmt.Errorf("%w: failed to store refresh token: %w", pkgerrors.ErrInternal, err)
	}

	token, err := s.jwt.Sign(&auth.Claims{
		UserID:    user.ID,
		TokenType: models.TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return "", err
	}
	observability.TokensIssued.WithLabelValues(string(models.TokenTypeRefresh)).Inc()
	return token, nil
}

// VerifyToken checks signature, expiry and type tag in that order. Refresh
// tokens are also matched against the stored identifier and expiry.
func (s *TokenService) VerifyToken(ctx context.Context, token string, expected models.TokenType) (*auth.Claims, error) {
	claims, _, err := s.verify(ctx, token, expected)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new access token.
// The refresh token itself is not rotated.
func (s *TokenService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	claims, user, err := s.verify(ctx, refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		observability.AuthFailures.WithLabelValues(pkgerrors.Reason(pkgerrors.ErrUserInactive)).Inc()
		slog.Warn("refresh rejected for inactive user", "user_id", claims.UserID)
		return "", fmt.Errorf("%w: %w", pkgerrors.ErrUserInactiveOrMissing, pkgerrors.ErrUserInactive)
	}
	return s.IssueAccessToken(user)
}

// RevokeRefreshToken is idempotent.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, user *models.User) error {
	if err := s.store.ClearRefreshToken(ctx, user); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *TokenService) verify(ctx context.Context, token string, expected models.TokenType) (*auth.Claims, *models.User, error) {
	claims, err := s.jwt.Parse(token)
	if err != nil {
		return nil, nil, s.tokenFailure(expected, err)
	}
	if claims.TokenType != expected {
		return nil, nil, s.tokenFailure(expected, fmt.Errorf("%w: expected %s, got %q", pkgerrors.ErrTokenWrongType, expected, claims.TokenType))
	}
	if expected != models.TokenTypeRefresh {
		return claims, nil, nil
	}

	if claims.ID == "" {
		return nil, nil, s.tokenFailure(expected, fmt.Errorf("%w: missing jti", pkgerrors.ErrTokenMalformed))
	}
	user, err := s.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			return nil, nil, s.tokenFailure(expected, fmt.Errorf("%w: %w", pkgerrors.ErrTokenRevoked, err))
		}
		return nil, nil, fmt.Errorf("%w: failed to load user: %w", pkgerrors.ErrInternal, err)
	}
	if !user.HasRefreshToken() || subtle.ConstantTimeCompare([]byte(*user.RefreshToken), []byte(claims.ID)) != 1 {
		return nil, nil, s.tokenFailure(expected, pkgerrors.ErrTokenRevoked)
	}
	if user.RefreshTokenExpires != nil && !s.now().Before(*user.RefreshTokenExpires) {
		return nil, nil, s.tokenFailure(expected, pkgerrors.ErrTokenExpired)
	}
	return claims, user, nil
}

func (s *TokenService) issuedAt() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *TokenService) credentialFailure(username string, cause error) error {
	observability.AuthFailures.WithLabelValues(pkgerrors.Reason(cause)).Inc()
	slog.Warn("authentication failed", "username", username, "cause", cause)
	return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidCredentials, cause)
}

func (s *TokenService) tokenFailure(expected models.TokenType, err error) error {
	observability.AuthFailures.WithLabelValues(pkgerrors.Reason(err)).Inc()
	slog.Debug("token rejected", "expected_type", expected, "error", err)
	return err
}

func newTokenID() (string, error) {
	b := make([]byte, jtiBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
