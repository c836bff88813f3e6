package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/infrastructure/observability"
	"github.com/honeynil/LibraryAuthService/internal/models"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
	"github.com/lib/pq"
)

const (
	uniqueViolation   = "23505"
	emailUniqueIndex  = "users_email_key"
	maxUsernameLength = 80
	maxEmailLength    = 120
	userSelectColumns = `id, username, email, password_hash, full_name, is_admin, is_active, last_login, refresh_token, refresh_token_expires, created_at`
)

type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (err error) {
	defer observability.ObserveRepositoryCall("users.Create", time.Now(), &err)

	if user == nil {
		return pkgerrors.ErrNilUser
	}
	if user.Username == "" {
		return fmt.Errorf("%w: username is required", pkgerrors.ErrInvalidInput)
	}
	if len(user.Username) > maxUsernameLength {
		return fmt.Errorf("%w: username too long", pkgerrors.ErrInvalidInput)
	}
	if user.Email == "" {
		return fmt.Errorf("%w: email is required", pkgerrors.ErrInvalidInput)
	}
	if len(user.Email) > maxEmailLength {
		return fmt.Errorf("%w: email too long", pkgerrors.ErrInvalidInput)
	}
	if user.PasswordHash == "" {
		return fmt.Errorf("%w: password_hash is required", pkgerrors.ErrInvalidInput)
	}

	query := `INSERT INTO users (username, email, password_hash, full_name, is_admin, is_active) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`
	err = r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.PasswordHash,
		nullString(user.FullName),
		user.IsAdmin,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			if pqErr.Constraint == emailUniqueIndex {
				return pkgerrors.ErrDuplicateEmail
			}
			return pkgerrors.ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (user *models.User, err error) {
	defer observability.ObserveRepositoryCall("users.GetByID", time.Now(), &err)

	query := `SELECT ` + userSelectColumns + ` FROM users WHERE id = $1`
	user, err = scanUser(r.db.QueryRowContext(ctx, query, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) GetByUsername(ctx context.Context, username string) (user *models.User, err error) {
	defer observability.ObserveRepositoryCall("users.GetByUsername", time.Now(), &err)

	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", pkgerrors.ErrInvalidInput)
	}

	query := `SELECT ` + userSelectColumns + ` FROM users WHERE username = $1`
	user, err = scanUser(r.db.QueryRowContext(ctx, query, username))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (user *models.User, err error) {
	defer observability.ObserveRepositoryCall("users.GetByEmail", time.Now(), &err)

	if email == "" {
		return nil, fmt.Errorf("%w: email cannot be empty", pkgerrors.ErrInvalidInput)
	}

	query := `SELECT ` + userSelectColumns + ` FROM users WHERE email = $1`
	user, err = scanUser(r.db.QueryRowContext(ctx, query, email))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// SetRefreshToken overwrites the outstanding identifier in one statement, so
// of two racing logins the later write wins.
func (r *PostgresUserRepository) SetRefreshToken(ctx context.Context, userID int64, jti string, expiresAt time.Time) (err error) {
	defer observability.ObserveRepositoryCall("users.SetRefreshToken", time.Now(), &err)

	query := `UPDATE users SET refresh_token = $1, refresh_token_expires = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, jti, expiresAt.UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set refresh token: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresUserRepository) ClearRefreshToken(ctx context.Context, userID int64) (err error) {
	defer observability.ObserveRepositoryCall("users.ClearRefreshToken", time.Now(), &err)

	query := `UPDATE users SET refresh_token = NULL, refresh_token_expires = NULL WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresUserRepository) TouchLastLogin(ctx context.Context, userID int64, at time.Time) (err error) {
	defer observability.ObserveRepositoryCall("users.TouchLastLogin", time.Now(), &err)

	query := `UPDATE users SET last_login = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, at.UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return requireRow(res)
}

func (r *PostgresUserRepository) SetActive(ctx context.Context, userID int64, active bool) (err error) {
	defer observability.ObserveRepositoryCall("users.SetActive", time.Now(), &err)

	query := `UPDATE users SET is_active = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, active, userID)
	if err != nil {
		return fmt.Errorf("failed to update active flag: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user       models.User
		fullName   sql.NullString
		lastLogin  sql.NullTime
		refresh    sql.NullString
		refreshExp sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&fullName,
		&user.IsAdmin,
		&user.IsActive,
		&lastLogin,
		&refresh,
		&refreshExp,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.FullName = fullName.String
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	if refresh.Valid {
		s := refresh.String
		user.RefreshToken = &s
	}
	if refreshExp.Valid {
		t := refreshExp.Time
		user.RefreshTokenExpires = &t
	}
	return &user, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return pkgerrors.ErrUserNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
