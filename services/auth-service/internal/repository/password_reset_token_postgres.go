package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/database"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
)

type passwordResetTokenPostgresRepository struct {
	db database.DBTX
}

// NewPasswordResetTokenPostgresRepository creates a PostgreSQL repository for password reset tokens.
func NewPasswordResetTokenPostgresRepository(db database.DBTX) PasswordResetTokenRepository {
	return &passwordResetTokenPostgresRepository{db: db}
}

func (r *passwordResetTokenPostgresRepository) Upsert(ctx context.Context, token *model.PasswordResetToken) error {
	query := `INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (user_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, used = false, updated_at = now()`

	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), token.UserID, token.TokenHash, token.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *passwordResetTokenPostgresRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	query := `UPDATE password_reset_tokens
		SET used = true, updated_at = now()
		WHERE token_hash = $1 AND used = false AND expires_at > $2
		RETURNING user_id`

	var userID string
	if err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return userID, nil
}

func (r *passwordResetTokenPostgresRepository) InvalidateUserTokens(ctx context.Context, userID string) error {
	query := `UPDATE password_reset_tokens SET used = true, updated_at = now() WHERE user_id = $1 AND used = false`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *passwordResetTokenPostgresRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE expires_at <= $1 OR used = true`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}
