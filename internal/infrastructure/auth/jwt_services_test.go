package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/honeynil/LibraryAuthService/internal/models"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func accessClaims(userID int64, issued time.Time, ttl time.Duration) *Claims {
	return &Claims{
		UserID:    userID,
		Username:  "alice",
		Email:     "alice@x.com",
		TokenType: models.TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}
}

func TestNewJWTManager_EmptySecret(t *testing.T) {
	m, err := NewJWTManager(nil, nil)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, pkgerrors.ErrSigningKeyMissing)
}

func TestJWTManager_SignAndParse(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m, err := NewJWTManager([]byte("secret"), fixedClock(now))
	require.NoError(t, err)

	token, err := m.Sign(accessClaims(7, now, 15*time.Minute))
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, models.TokenTypeAccess, claims.TokenType)
	assert.Equal(t, now.Add(15*time.Minute), claims.ExpiresAt.Time.UTC())
}

func TestJWTManager_Parse(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	signer, err := NewJWTManager([]byte("secret"), nil)
	require.NoError(t, err)

	t.Run("Expired", func(t *testing.T) {
		token, err := signer.Sign(accessClaims(1, issued, time.Minute))
		require.NoError(t, err)

		m, _ := NewJWTManager([]byte("secret"), fixedClock(issued.Add(time.Minute)))
		_, err = m.Parse(token)
		assert.ErrorIs(t, err, pkgerrors.ErrTokenExpired)
	})

	t.Run("OneSecondBeforeExpiry", func(t *testing.T) {
		token, err := signer.Sign(accessClaims(1, issued, time.Minute))
		require.NoError(t, err)

		m, _ := NewJWTManager([]byte("secret"), fixedClock(issued.Add(time.Minute-time.Second)))
		_, err = m.Parse(token)
		assert.NoError(t, err)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other, _ := NewJWTManager([]byte("other-secret"), nil)
		token, err := other.Sign(accessClaims(1, issued, time.Minute))
		require.NoError(t, err)

		m, _ := NewJWTManager([]byte("secret"), fixedClock(issued))
		_, err = m.Parse(token)
		assert.ErrorIs(t, err, pkgerrors.ErrTokenMalformed)
	})

	t.Run("TamperedAndExpiredReportsSignatureFirst", func(t *testing.T) {
		other, _ := NewJWTManager([]byte("other-secret"), nil)
		token, err := other.Sign(accessClaims(1, issued, time.Minute))
		require.NoError(t, err)

		m, _ := NewJWTManager([]byte("secret"), fixedClock(issued.Add(time.Hour)))
		_, err = m.Parse(token)
		assert.ErrorIs(t, err, pkgerrors.ErrTokenMalformed)
		assert.NotErrorIs(t, err, pkgerrors.ErrTokenExpired)
	})

	t.Run("NoneAlgorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, accessClaims(1, issued, time.Hour))
		unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		m, _ := NewJWTManager([]byte("secret"), fixedClock(issued))
		_, err = m.Parse(unsigned)
		assert.ErrorIs(t, err, pkgerrors.ErrTokenMalformed)
	})

	t.Run("Garbage", func(t *testing.T) {
		m, _ := NewJWTManager([]byte("secret"), fixedClock(issued))
		_, err := m.Parse("not.a.jwt")
		assert.ErrorIs(t, err, pkgerrors.ErrTokenMalformed)
	})

	t.Run("MissingExpiry", func(t *testing.T) {
		c := accessClaims(1, issued, time.Hour)
		c.ExpiresAt = nil
		token, err := signer.Sign(c)
		require.NoError(t, err)

		m, _ := NewJWTManager([]byte("secret"), fixedClock(issued))
		_, err = m.Parse(token)
		assert.ErrorIs(t, err, pkgerrors.ErrTokenMalformed)
	})

	t.Run("MissingUserID", func(t *testing.T) {
		token, err := signer.Sign(accessClaims(0, issued, time.Hour))
		require.NoError(t, err)

		m, _ := NewJWTManager([]byte("secret"), fixedClock(issued))
		_, err = m.Parse(token)
		assert.ErrorIs(t, err, pkgerrors.ErrTokenMalformed)
	})
}
