package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/honeynil/LibraryAuthService/internal/models"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
)

type contextKey struct{}

var claimsKey = contextKey{}

// TokenVerifier is satisfied by the token service.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string, expected models.TokenType) (*Claims, error)
}

// AuthMiddleware requires a valid access token in the Authorization header.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := BearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "Token is missing", "")
				return
			}

			claims, err := verifier.VerifyToken(r.Context(), tokenStr, models.TokenTypeAccess)
			if err != nil {
				slog.Warn("access token rejected", "reason", pkgerrors.Reason(err), "path", r.URL.Path, "error", err)
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired token", pkgerrors.ClientReason(err))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "Token is missing", "")
			return
		}
		if !claims.IsAdmin {
			slog.Warn("admin privileges required", "user_id", claims.UserID, "path", r.URL.Path)
			writeAuthError(w, http.StatusForbidden, "Admin privileges required", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok && claims != nil
}

// WithClaims is used by tests and internal callers that already verified a token.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func writeAuthError(w http.ResponseWriter, status int, message, reason string) {
	body := map[string]interface{}{
		"success": false,
		"message": message,
	}
	if reason != "" {
		body["reason"] = reason
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
