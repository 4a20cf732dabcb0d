package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/repository"
)

// SweepResult counts the rows removed by one sweep.
type SweepResult struct {
	Sessions    int64
	ResetTokens int64
}

// SessionSweeper periodically deletes expired or invalidated sessions and
// dead password reset tokens. Sweeps are idempotent and may overlap.
type SessionSweeper struct {
	logger      *zerolog.Logger
	sessionRepo repository.SessionRepository
	tokenRepo   repository.PasswordResetTokenRepository
	interval    time.Duration
	now         func() time.Time
}

// NewSessionSweeper creates a sweeper that runs every interval.
func NewSessionSweeper(
	logger *zerolog.Logger,
	sessionRepo repository.SessionRepository,
	tokenRepo repository.PasswordResetTokenRepository,
	interval time.Duration,
) *SessionSweeper {
	return &SessionSweeper{
		logger:      logger,
		sessionRepo: sessionRepo,
		tokenRepo:   tokenRepo,
		interval:    interval,
		now:         time.Now,
	}
}

// Sweep runs a single cleanup pass.
func (s *SessionSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()

	sessions, err := s.sessionRepo.Sweep(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	tokens, err := s.tokenRepo.DeleteExpiredTokens(ctx, now)
	if err != nil {
		return SweepResult{Sessions: sessions}, err
	}

	return SweepResult{Sessions: sessions, ResetTokens: tokens}, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepAndLog(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *SessionSweeper) sweepAndLog(ctx context.Context) {
	result, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("session sweep failed")
		return
	}

	s.logger.Info().
		Int64("sessions", result.Sessions).
		Int64("reset_tokens", result.ResetTokens).
		Msg("session sweep completed")
}
