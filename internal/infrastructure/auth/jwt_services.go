package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/honeynil/LibraryAuthService/internal/models"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
)

// Claims is the payload of both token kinds. Access tokens carry the user
// identity fields, refresh tokens carry the jti in RegisteredClaims.ID.
type Claims struct {
	UserID    int64            `json:"user_id"`
	Username  string           `json:"username,omitempty"`
	Email     string           `json:"email,omitempty"`
	IsAdmin   bool             `json:"is_admin,omitempty"`
	TokenType models.TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTManager signs and parses HS256 tokens with a process-wide secret.
type JWTManager struct {
	secret []byte
	now    func() time.Time
}

func NewJWTManager(secret []byte, now func() time.Time) (*JWTManager, error) {
	if len(secret) == 0 {
		return nil, pkgerrors.ErrSigningKeyMissing
	}
	if now == nil {
		now = time.Now
	}
	return &JWTManager{secret: secret, now: now}, nil
}

func (m *JWTManager) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse checks the signature before any claim, then expiry. Every failure
// other than expiry is reported as ErrTokenMalformed.
func (m *JWTManager) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", pkgerrors.ErrTokenMalformed, err)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user_id", pkgerrors.ErrTokenMalformed)
	}
	return claims, nil
}
