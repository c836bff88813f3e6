package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/LibraryAuthService/internal/models"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "library-auth-service"

// EventPublisher delivers auth events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event models.AuthEvent) error
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
}

// AuthService is what the HTTP layer calls.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*models.TokenPair, error)
	Login(ctx context.Context, username, password string) (*models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, userID int64) error
	CurrentUser(ctx context.Context, userID int64) (*models.User, error)
	GetUser(ctx context.Context, userID int64) (*models.User, error)
}

type authService struct {
	store     *CredentialStore
	tokens    *TokenService
	publisher EventPublisher
	retries   int
}

func NewAuthService(store *CredentialStore, tokens *TokenService, publisher EventPublisher) *authService {
	return &authService{
		store:     store,
		tokens:    tokens,
		publisher: publisher,
		retries:   3,
	}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*models.TokenPair, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "Register", trace.WithAttributes(attribute.String("user.name", in.Username)))
	defer span.End()

	user, err := s.store.CreateUser(ctx, in.Username, in.Email, in.Password, in.FullName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		if stderrors.Is(err, pkgerrors.ErrInternal) {
			slog.Error("failed to register user", "username", in.Username, "error", err)
		} else {
			slog.Warn("registration rejected", "username", in.Username, "error", err)
		}
		return nil, err
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token issuance failed")
		slog.Error("failed to issue tokens after registration", "user_id", user.ID, "error", err)
		return nil, err
	}

	s.publishAsync(models.EventUserRegistered, user)
	slog.Info("user registered successfully", "user_id", user.ID, "username", user.Username)
	return pair, nil
}

func (s *authService) Login(ctx context.Context, username, password string) (*models.TokenPair, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "Login", trace.WithAttributes(attribute.String("user.name", username)))
	defer span.End()

	if username == "" || password == "" {
		span.SetStatus(codes.Error, "empty username or password")
		return nil, fmt.Errorf("%w: username and password are required", pkgerrors.ErrInvalidInput)
	}

	user, err := s.tokens.Authenticate(ctx, username, password)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return nil, err
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token issuance failed")
		slog.Error("failed to issue tokens", "user_id", user.ID, "error", err)
		return nil, err
	}

	s.publishAsync(models.EventUserLoggedIn, user)
	slog.Info("user logged in", "username", username, "user_id", user.ID)
	return pair, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "Refresh")
	defer span.End()

	if refreshToken == "" {
		span.SetStatus(codes.Error, "empty refresh token")
		return "", fmt.Errorf("%w: refresh token is required", pkgerrors.ErrInvalidInput)
	}

	access, err := s.tokens.RefreshAccessToken(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		slog.Warn("refresh rejected", "reason", pkgerrors.Reason(err), "error", err)
		return "", err
	}
	return access, nil
}

// Logout revokes the refresh token. An unknown user is not an error.
func (s *authService) Logout(ctx context.Context, userID int64) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "Logout", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if stderrors.Is(err, pkgerrors.ErrUserNotFound) {
			slog.Warn("logout for unknown user", "user_id", userID)
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		return fmt.Errorf("%w: %w", pkgerrors.ErrInternal, err)
	}

	if err := s.tokens.RevokeRefreshToken(ctx, user); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revoke failed")
		slog.Error("failed to revoke refresh token", "user_id", userID, "error", err)
		return fmt.Errorf("%w: %w", pkgerrors.ErrInternal, err)
	}

	s.publishAsync(models.EventUserLoggedOut, user)
	slog.Info("user logged out", "user_id", userID)
	return nil
}

func (s *authService) CurrentUser(ctx context.Context, userID int64) (*models.User, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "CurrentUser", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		return nil, err
	}
	return user, nil
}

// GetUser is the admin lookup of any account by id.
func (s *authService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "GetUser", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		return nil, err
	}
	return user, nil
}

func (s *authService) issuePair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrInternal, err)
	}
	refresh, err := s.tokens.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}
	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		User:         user.View(),
	}, nil
}

// publishAsync never blocks the request: delivery is retried in the
// background and a final failure is only logged.
func (s *authService) publishAsync(eventType models.AuthEventType, user *models.User) {
	if s.publisher == nil {
		return
	}
	event := models.AuthEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		UserID:     user.ID,
		Username:   user.Username,
		OccurredAt: time.Now().UTC(),
	}
	go func() {
		for i := 0; i < s.retries; i++ {
			if err := s.publisher.Publish(context.Background(), event); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to publish auth event after retries",
			"event_type", event.Type,
			"event_id", event.EventID,
			"user_id", event.UserID)
	}()
}
