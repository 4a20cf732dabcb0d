package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/config"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/credential-authority/shared/apperror"
	"github.com/vasapolrittideah/credential-authority/shared/auth"
	"github.com/vasapolrittideah/credential-authority/shared/security"
)

// PasswordResetUsecase defines the business logic for password reset token operations.
type PasswordResetUsecase interface {
	// RequestPasswordReset issues a reset token for email and hands it to the
	// notifier. It reports success whether or not the account exists.
	RequestPasswordReset(ctx context.Context, email string) error

	// ConfirmPasswordReset consumes resetToken and replaces the password. All
	// sessions of the user are invalidated.
	ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error
}

// ResetNotifier delivers password reset tokens to users.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, user *model.User, resetToken string, expiresAt time.Time) error
}

type passwordResetUsecase struct {
	logger         *zerolog.Logger
	userRepo       repository.UserRepository
	sessionRepo    repository.SessionRepository
	tokenRepo      repository.PasswordResetTokenRepository
	notifier       ResetNotifier
	authServiceCfg *config.AuthServiceConfig
	now            func() time.Time
}

// NewPasswordResetUsecase creates a new instance of PasswordResetUsecase.
func NewPasswordResetUsecase(
	logger *zerolog.Logger,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokenRepo repository.PasswordResetTokenRepository,
	notifier ResetNotifier,
	authServiceCfg *config.AuthServiceConfig,
) PasswordResetUsecase {
	return &passwordResetUsecase{
		logger:         logger,
		userRepo:       userRepo,
		sessionRepo:    sessionRepo,
		tokenRepo:      tokenRepo,
		notifier:       notifier,
		authServiceCfg: authServiceCfg,
		now:            time.Now,
	}
}

func (u *passwordResetUsecase) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := u.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperror.ErrUnavailable.Wrap(err)
	}

	resetToken, err := generateResetToken()
	if err != nil {
		return apperror.ErrInternal.Wrap(err)
	}

	// Replaces any earlier token of the user
	expiresAt := u.now().Add(u.authServiceCfg.PasswordResetTokenExpiresIn)
	if err := u.tokenRepo.Upsert(ctx, &model.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: auth.HashToken(resetToken),
		ExpiresAt: expiresAt,
	}); err != nil {
		return apperror.ErrUnavailable.Wrap(err)
	}

	if err := u.notifier.SendPasswordReset(ctx, user, resetToken, expiresAt); err != nil {
		u.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to deliver password reset token")
	}

	return nil
}

func (u *passwordResetUsecase) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if resetToken == "" {
		return apperror.ErrInvalidOrExpiredToken
	}

	// Checked first so a weak password does not burn the token
	if err := security.ValidatePasswordStrength(newPassword); err != nil {
		return apperror.ErrValidationFailed.WithMessage(err.Error())
	}

	userID, err := u.tokenRepo.Consume(ctx, auth.HashToken(resetToken), u.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.ErrInvalidOrExpiredToken
		}
		return apperror.ErrUnavailable.Wrap(err)
	}

	return replacePassword(ctx, u.userRepo, u.sessionRepo, u.tokenRepo, userID, newPassword)
}

// replacePassword stores a new password for userID and revokes every session
// and outstanding reset token of the user.
func replacePassword(
	ctx context.Context,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokenRepo repository.PasswordResetTokenRepository,
	userID, password string,
) error {
	// Hash new password
	passwordHash, err := security.HashPassword(password)
	if err != nil {
		return apperror.ErrInternal.Wrap(err)
	}

	if err := userRepo.UpdatePassword(ctx, userID, passwordHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.ErrInvalidOrExpiredToken
		}
		return apperror.ErrUnavailable.Wrap(err)
	}

	if _, err := sessionRepo.InvalidateAll(ctx, userID); err != nil {
		return apperror.ErrUnavailable.Wrap(err)
	}

	if err := tokenRepo.InvalidateUserTokens(ctx, userID); err != nil {
		return apperror.ErrUnavailable.Wrap(err)
	}

	return nil
}

// generateResetToken returns 32 random bytes, hex encoded.
func generateResetToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
