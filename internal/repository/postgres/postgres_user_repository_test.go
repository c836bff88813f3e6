package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/LibraryAuthService/internal/models"
	repository "github.com/honeynil/LibraryAuthService/internal/repository/postgres"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{
	"id", "username", "email", "password_hash", "full_name", "is_admin", "is_active",
	"last_login", "refresh_token", "refresh_token_expires", "created_at",
}

func newMock(t *testing.T) (*repository.PostgresUserRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return repository.NewPostgresUserRepository(db), mock
}

func TestPostgresUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	insert := regexp.QuoteMeta(`INSERT INTO users (username, email, password_hash, full_name, is_admin, is_active) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`)

	t.Run("NilUser", func(t *testing.T) {
		repo, mock := newMock(t)
		err := repo.Create(ctx, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrNilUser)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success", func(t *testing.T) {
		repo, mock := newMock(t)
		created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		user := &models.User{Username: "alice", Email: "alice@x.com", PasswordHash: "hash", FullName: "Alice", IsActive: true}

		mock.ExpectQuery(insert).
			WithArgs("alice", "alice@x.com", "hash", "Alice", false, true).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), created))

		require.NoError(t, repo.Create(ctx, user))
		assert.Equal(t, int64(1), user.ID)
		assert.Equal(t, created, user.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyFullNameStoredAsNull", func(t *testing.T) {
		repo, mock := newMock(t)
		user := &models.User{Username: "bob", Email: "bob@x.com", PasswordHash: "hash", IsActive: true}

		mock.ExpectQuery(insert).
			WithArgs("bob", "bob@x.com", "hash", nil, false, true).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), time.Now()))

		require.NoError(t, repo.Create(ctx, user))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	duplicates := []struct {
		name       string
		constraint string
		want       error
	}{
		{"DuplicateUsername", "users_username_key", pkgerrors.ErrDuplicateUsername},
		{"DuplicateEmail", "users_email_key", pkgerrors.ErrDuplicateEmail},
	}
	for _, tt := range duplicates {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMock(t)
			user := &models.User{Username: "alice", Email: "alice@x.com", PasswordHash: "hash", IsActive: true}

			mock.ExpectQuery(insert).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			err := repo.Create(ctx, user)
			assert.ErrorIs(t, err, tt.want)
			assert.NotContains(t, err.Error(), "pq:")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}

	t.Run("DatabaseError", func(t *testing.T) {
		repo, mock := newMock(t)
		user := &models.User{Username: "alice", Email: "alice@x.com", PasswordHash: "hash"}

		mock.ExpectQuery(insert).WillReturnError(errors.New("connection reset"))

		err := repo.Create(ctx, user)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create user")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	invalid := []struct {
		name string
		user *models.User
		msg  string
	}{
		{"MissingUsername", &models.User{Email: "a@x.com", PasswordHash: "h"}, "username is required"},
		{"LongUsername", &models.User{Username: strings.Repeat("a", 81), Email: "a@x.com", PasswordHash: "h"}, "username too long"},
		{"MissingEmail", &models.User{Username: "a", PasswordHash: "h"}, "email is required"},
		{"LongEmail", &models.User{Username: "a", Email: strings.Repeat("e", 121), PasswordHash: "h"}, "email too long"},
		{"MissingHash", &models.User{Username: "a", Email: "a@x.com"}, "password_hash is required"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMock(t)
			err := repo.Create(ctx, tt.user)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.msg)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresUserRepository_Get(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastLogin := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	expires := time.Date(2026, 3, 31, 8, 0, 0, 0, time.UTC)

	fullRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(userColumns).
			AddRow(int64(1), "alice", "alice@x.com", "hash", "Alice", true, true, lastLogin, "jti", expires, created)
	}

	t.Run("ByIDAllFields", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).
			WithArgs(int64(1)).
			WillReturnRows(fullRow())

		user, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, "Alice", user.FullName)
		assert.True(t, user.IsAdmin)
		require.NotNil(t, user.LastLogin)
		assert.Equal(t, lastLogin, *user.LastLogin)
		require.NotNil(t, user.RefreshToken)
		assert.Equal(t, "jti", *user.RefreshToken)
		require.NotNil(t, user.RefreshTokenExpires)
		assert.Equal(t, expires, *user.RefreshTokenExpires)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ByUsernameNullableFields", func(t *testing.T) {
		repo, mock := newMock(t)
		rows := sqlmock.NewRows(userColumns).
			AddRow(int64(2), "bob", "bob@x.com", "hash", nil, false, true, nil, nil, nil, created)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).
			WithArgs("bob").
			WillReturnRows(rows)

		user, err := repo.GetByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, user.FullName)
		assert.Nil(t, user.LastLogin)
		assert.Nil(t, user.RefreshToken)
		assert.Nil(t, user.RefreshTokenExpires)
		assert.False(t, user.HasRefreshToken())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ByEmail", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).
			WithArgs("alice@x.com").
			WillReturnRows(fullRow())

		user, err := repo.GetByEmail(ctx, "alice@x.com")
		require.NoError(t, err)
		assert.Equal(t, int64(1), user.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE username = $1`)).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email = $1`)).WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, 404)
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		_, err = repo.GetByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		_, err = repo.GetByEmail(ctx, "ghost@x.com")
		assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("EmptyKeys", func(t *testing.T) {
		repo, mock := newMock(t)
		_, err := repo.GetByUsername(ctx, "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		_, err = repo.GetByEmail(ctx, "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = $1`)).WillReturnError(errors.New("timeout"))

		_, err := repo.GetByID(ctx, 1)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, pkgerrors.ErrUserNotFound)
		assert.Contains(t, err.Error(), "failed to get user by id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresUserRepository_Updates(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("SetRefreshToken", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET refresh_token = $1, refresh_token_expires = $2 WHERE id = $3`)).
			WithArgs("jti", at, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetRefreshToken(ctx, 1, "jti", at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ClearRefreshToken", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET refresh_token = NULL, refresh_token_expires = NULL WHERE id = $1`)).
			WithArgs(int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.ClearRefreshToken(ctx, 1))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("TouchLastLogin", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET last_login = $1 WHERE id = $2`)).
			WithArgs(at, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.TouchLastLogin(ctx, 1, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("SetActive", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_active = $1 WHERE id = $2`)).
			WithArgs(false, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetActive(ctx, 1, false))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownUser", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET refresh_token = NULL`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.ClearRefreshToken(ctx, 99), pkgerrors.ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExecError", func(t *testing.T) {
		repo, mock := newMock(t)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET is_active`)).
			WillReturnError(errors.New("read-only transaction"))

		err := repo.SetActive(ctx, 1, true)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to update active flag")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
