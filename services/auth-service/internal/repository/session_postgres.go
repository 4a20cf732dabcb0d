package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/database"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
)

type sessionPostgresRepository struct {
	db database.DBTX
}

// NewSessionPostgresRepository creates a PostgreSQL session repository.
func NewSessionPostgresRepository(db database.DBTX) SessionRepository {
	return &sessionPostgresRepository{db: db}
}

func (r *sessionPostgresRepository) Create(ctx context.Context, session *model.Session) (*model.Session, error) {
	query := `INSERT INTO sessions (id, user_id, token_hash, expires_at, ip_address, user_agent, is_valid)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		session.ID, session.UserID, session.TokenHash, session.ExpiresAt, session.IPAddress, session.UserAgent,
	).Scan(&session.CreatedAt)
	if err != nil {
		if uniqueViolation(err, "") {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	session.IsValid = true

	return session, nil
}

func (r *sessionPostgresRepository) IsUsable(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM sessions WHERE token_hash = $1 AND is_valid = true AND expires_at > $2
	)`

	var usable bool
	if err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&usable); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return usable, nil
}

func (r *sessionPostgresRepository) Invalidate(ctx context.Context, tokenHash string) error {
	query := `UPDATE sessions SET is_valid = false WHERE token_hash = $1`

	if _, err := r.db.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *sessionPostgresRepository) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE sessions SET is_valid = false WHERE user_id = $1 AND is_valid = true`

	return r.execCount(ctx, query, userID)
}

func (r *sessionPostgresRepository) Sweep(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= $1 OR is_valid = false`

	return r.execCount(ctx, query, now)
}

func (r *sessionPostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return n, nil
}

func (r *sessionPostgresRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*model.Session, error) {
	query := `SELECT id, user_id, token_hash, expires_at, created_at, ip_address, user_agent, is_valid
		FROM sessions
		WHERE user_id = $1 AND is_valid = true AND expires_at > $2
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	sessions := []*model.Session{}
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt, &s.IPAddress, &s.UserAgent, &s.IsValid,
		); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		sessions = append(sessions, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return sessions, nil
}
