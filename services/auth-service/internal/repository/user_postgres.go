package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/database"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
)

const (
	usersEmailConstraint    = "users_email_key"
	usersGoogleIDConstraint = "users_google_id_key"
)

const userColumns = `id, email, name, picture, password_hash, google_id, email_verified, status, created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Picture, &u.PasswordHash, &u.GoogleID,
		&u.EmailVerified, &u.Status, &u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}

	return &u, nil
}

type userPostgresRepository struct {
	db database.DBTX
}

// NewUserPostgresRepository creates a PostgreSQL user repository.
func NewUserPostgresRepository(db database.DBTX) UserRepository {
	return &userPostgresRepository{db: db}
}

func (r *userPostgresRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return r.queryOne(ctx, query, normalizeEmail(email))
}

func (r *userPostgresRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return r.queryOne(ctx, query, id)
}

func (r *userPostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *userPostgresRepository) CreateWithPassword(ctx context.Context, params CreateUserParams) (*model.User, error) {
	query := `INSERT INTO users (id, email, name, password_hash, email_verified, status)
		VALUES ($1, $2, $3, $4, false, 'active')
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), normalizeEmail(params.Email), params.Name, params.PasswordHash))
	if err != nil {
		if uniqueViolation(err, "") {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *userPostgresRepository) UpsertByFederatedSubject(
	ctx context.Context,
	params UpsertFederatedUserParams,
) (*model.User, error) {
	// A racing first login of the same subject can trip the email index
	// before the google_id arbiter sees the winner's row; the retry then
	// takes the conflict path.
	user, err := r.upsertBySubject(ctx, params)
	if uniqueViolation(err, usersEmailConstraint) {
		user, err = r.upsertBySubject(ctx, params)
	}
	if err == nil {
		return user, nil
	}
	if !uniqueViolation(err, usersEmailConstraint) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	// The email is taken; link it if it has no subject yet.
	return r.linkSubject(ctx, params)
}

func (r *userPostgresRepository) upsertBySubject(
	ctx context.Context,
	params UpsertFederatedUserParams,
) (*model.User, error) {
	query := `INSERT INTO users (id, email, name, picture, google_id, email_verified, status, last_login_at)
		VALUES ($1, $2, $3, $4, $5, true, 'active', now())
		ON CONFLICT (google_id) DO UPDATE
		SET name = EXCLUDED.name, picture = EXCLUDED.picture, last_login_at = now(), updated_at = now()
		RETURNING ` + userColumns

	return scanUser(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), normalizeEmail(params.Email), params.Name, optionalString(params.Picture), params.Subject))
}

func (r *userPostgresRepository) linkSubject(ctx context.Context, params UpsertFederatedUserParams) (*model.User, error) {
	query := `UPDATE users
		SET google_id = $1, email_verified = true, name = $2, picture = COALESCE($3, picture),
			last_login_at = now(), updated_at = now()
		WHERE email = $4 AND google_id IS NULL
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRowContext(ctx, query,
		params.Subject, params.Name, optionalString(params.Picture), normalizeEmail(params.Email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || uniqueViolation(err, usersGoogleIDConstraint) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *userPostgresRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`

	return r.execOne(ctx, query, id, passwordHash)
}

func (r *userPostgresRepository) TouchLastLogin(ctx context.Context, id string) error {
	query := `UPDATE users SET last_login_at = now() WHERE id = $1`

	return r.execOne(ctx, query, id)
}

func (r *userPostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if affected == 0 {
		return ErrNotFound
	}

	return nil
}
