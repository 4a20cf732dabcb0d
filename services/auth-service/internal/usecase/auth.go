package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/config"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/credential-authority/shared/apperror"
	"github.com/vasapolrittideah/credential-authority/shared/auth"
	"github.com/vasapolrittideah/credential-authority/shared/provider"
	"github.com/vasapolrittideah/credential-authority/shared/security"
)

// AuthUsecase defines the interface for authentication-related use cases.
type AuthUsecase interface {
	Register(ctx context.Context, params RegisterParams) (*AuthResult, error)
	Login(ctx context.Context, params LoginParams) (*AuthResult, error)
	LoginWithGoogle(ctx context.Context, params GoogleLoginParams) (*AuthResult, error)

	// Logout invalidates the session of token. It is idempotent.
	Logout(ctx context.Context, token string) error

	// Authenticate resolves a bearer token to its principal. The token must
	// verify and its session must still be usable.
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)

	ChangePassword(ctx context.Context, params ChangePasswordParams) error
	GetProfile(ctx context.Context, userID string) (*PublicUser, error)
	ListSessions(ctx context.Context, userID, currentToken string) ([]*SessionInfo, error)
}

// TokenCodec issues and verifies bearer tokens.
type TokenCodec interface {
	Issue(userID string) (string, *auth.Claims, error)
	Verify(token string) (*auth.Claims, error)
}

// IdentityVerifier verifies federated identity assertions.
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (*provider.FederatedIdentity, error)
}

// RegisterParams defines the parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string
	Name     string
	Origin   model.ClientOrigin
}

// LoginParams defines the parameters for user login.
type LoginParams struct {
	Email    string
	Password string
	Origin   model.ClientOrigin
}

// GoogleLoginParams defines the parameters for a Google sign-in.
type GoogleLoginParams struct {
	Credential string
	Origin     model.ClientOrigin
}

// ChangePasswordParams defines the parameters for changing a password.
type ChangePasswordParams struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
}

// PublicUser is the view of a user returned to clients.
type PublicUser struct {
	ID            string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
	HasPassword   bool
	HasGoogle     bool
	CreatedAt     time.Time
	LastLoginAt   *time.Time
}

// SessionInfo describes one active login of a user.
type SessionInfo struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
	Current   bool
}

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *PublicUser
}

var errSessionNotUsable = errors.New("session is invalidated or expired")

// dummyHash is compared against when a login names no password account so the
// response time does not depend on whether the account exists.
var dummyHash = sync.OnceValue(func() string {
	hash, err := security.HashPassword(uuid.NewString())
	if err != nil {
		return ""
	}
	return hash
})

type authUsecase struct {
	logger         *zerolog.Logger
	userRepo       repository.UserRepository
	sessionRepo    repository.SessionRepository
	resetTokenRepo repository.PasswordResetTokenRepository
	tokens         TokenCodec
	identity       IdentityVerifier
	authServiceCfg *config.AuthServiceConfig
	now            func() time.Time
}

// NewAuthUsecase creates a new AuthUsecase.
func NewAuthUsecase(
	logger *zerolog.Logger,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	resetTokenRepo repository.PasswordResetTokenRepository,
	tokens TokenCodec,
	identity IdentityVerifier,
	authServiceCfg *config.AuthServiceConfig,
) AuthUsecase {
	return &authUsecase{
		logger:         logger,
		userRepo:       userRepo,
		sessionRepo:    sessionRepo,
		resetTokenRepo: resetTokenRepo,
		tokens:         tokens,
		identity:       identity,
		authServiceCfg: authServiceCfg,
		now:            time.Now,
	}
}

func (u *authUsecase) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	name := strings.TrimSpace(params.Name)

	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.ErrValidationFailed.WithMessage("a valid email is required")
	}
	if name == "" {
		return nil, apperror.ErrValidationFailed.WithMessage("name is required")
	}
	if err := security.ValidatePasswordStrength(params.Password); err != nil {
		return nil, apperror.ErrValidationFailed.WithMessage(err.Error())
	}

	// Fast path; the unique index decides under concurrency
	if _, err := u.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, apperror.ErrEmailExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.ErrUnavailable.Wrap(err)
	}

	passwordHash, err := security.HashPassword(params.Password)
	if err != nil {
		return nil, apperror.ErrInternal.Wrap(err)
	}

	user, err := u.userRepo.CreateWithPassword(ctx, repository.CreateUserParams{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.ErrEmailExists
		}
		return nil, apperror.ErrUnavailable.Wrap(err)
	}

	return u.startSession(ctx, user, params.Origin)
}

func (u *authUsecase) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	user, err := u.userRepo.FindByEmail(ctx, params.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.ErrUnavailable.Wrap(err)
	}

	if user == nil || !user.HasPassword() {
		_, _ = security.VerifyPassword(params.Password, dummyHash())
		return nil, apperror.ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(params.Password, *user.PasswordHash)
	if err != nil {
		u.logger.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash is unusable")
	}
	if !ok {
		return nil, apperror.ErrInvalidCredentials
	}

	if err := u.userRepo.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, apperror.ErrUnavailable.Wrap(err)
	}

	if security.NeedsRehash(*user.PasswordHash) {
		u.rehash(ctx, user.ID, params.Password)
	}

	now := u.now()
	user.LastLoginAt = &now

	return u.startSession(ctx, user, params.Origin)
}

func (u *authUsecase) rehash(ctx context.Context, userID, password string) {
	passwordHash, err := security.HashPassword(password)
	if err == nil {
		err = u.userRepo.UpdatePassword(ctx, userID, passwordHash)
	}
	if err != nil {
		u.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to upgrade password hash")
		return
	}

	u.logger.Info().Str("user_id", userID).Msg("upgraded legacy password hash")
}

func (u *authUsecase) LoginWithGoogle(ctx context.Context, params GoogleLoginParams) (*AuthResult, error) {
	identity, err := u.identity.Verify(ctx, params.Credential)
	if err != nil {
		return nil, apperror.ErrFederatedAuthFailed.Wrap(err)
	}

	user, err := u.userRepo.UpsertByFederatedSubject(ctx, repository.UpsertFederatedUserParams{
		Subject: identity.Subject,
		Email:   identity.Email,
		Name:    identity.Name,
		Picture: identity.Picture,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.ErrFederatedAuthFailed.Wrap(
				fmt.Errorf("email %s is linked to another google account", identity.Email),
			)
		}
		return nil, apperror.ErrUnavailable.Wrap(err)
	}

	return u.startSession(ctx, user, params.Origin)
}

// startSession issues a token for user and records its session.
func (u *authUsecase) startSession(ctx context.Context, user *model.User, origin model.ClientOrigin) (*AuthResult, error) {
	token, claims, err := u.tokens.Issue(user.ID)
	if err != nil {
		return nil, apperror.ErrInternal.Wrap(err)
	}

	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: auth.HashToken(token),
		ExpiresAt: u.now().Add(u.authServiceCfg.Session.TTL),
		IPAddress: optional(origin.IPAddress),
		UserAgent: optional(origin.UserAgent),
	}
	if _, err := u.sessionRepo.Create(ctx, session); err != nil {
		return nil, apperror.ErrUnavailable.Wrap(err)
	}

	return &AuthResult{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
		User:      toPublicUser(user),
	}, nil
}

func (u *authUsecase) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := u.sessionRepo.Invalidate(ctx, auth.HashToken(token)); err != nil {
		return apperror.ErrUnavailable.Wrap(err)
	}

	return nil
}

func (u *authUsecase) Authenticate(ctx context.Context, token string) (*auth.Principal, error) {
	claims, err := u.tokens.Verify(token)
	if err != nil {
		return nil, apperror.ErrUnauthorized.Wrap(err)
	}

	usable, err := u.sessionRepo.IsUsable(ctx, auth.HashToken(token), u.now())
	if err != nil {
		return nil, apperror.ErrUnavailable.Wrap(err)
	}
	if !usable {
		return nil, apperror.ErrUnauthorized.Wrap(errSessionNotUsable)
	}

	return &auth.Principal{
		UserID:    claims.UserID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (u *authUsecase) ChangePassword(ctx context.Context, params ChangePasswordParams) error {
	user, err := u.userRepo.FindByID(ctx, params.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.ErrInvalidCredentials
		}
		return apperror.ErrUnavailable.Wrap(err)
	}

	if !user.HasPassword() {
		return apperror.ErrInvalidCredentials
	}

	// Verify current password
	ok, err := security.VerifyPassword(params.CurrentPassword, *user.PasswordHash)
	if err != nil {
		u.logger.Error().Err(err).Str("user_id", user.ID).Msg("stored password hash is unusable")
	}
	if !ok {
		return apperror.ErrInvalidCredentials
	}

	if err := security.ValidatePasswordStrength(params.NewPassword); err != nil {
		return apperror.ErrValidationFailed.WithMessage(err.Error())
	}

	return replacePassword(ctx, u.userRepo, u.sessionRepo, u.resetTokenRepo, user.ID, params.NewPassword)
}

func (u *authUsecase) GetProfile(ctx context.Context, userID string) (*PublicUser, error) {
	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, apperror.ErrUnavailable.Wrap(err)
	}

	return toPublicUser(user), nil
}

func (u *authUsecase) ListSessions(ctx context.Context, userID, currentToken string) ([]*SessionInfo, error) {
	sessions, err := u.sessionRepo.ListActive(ctx, userID, u.now())
	if err != nil {
		return nil, apperror.ErrUnavailable.Wrap(err)
	}

	currentHash := auth.HashToken(currentToken)

	infos := make([]*SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, &SessionInfo{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
			IPAddress: deref(s.IPAddress),
			UserAgent: deref(s.UserAgent),
			Current:   s.TokenHash == currentHash,
		})
	}

	return infos, nil
}

func toPublicUser(user *model.User) *PublicUser {
	return &PublicUser{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Picture:       deref(user.Picture),
		EmailVerified: user.EmailVerified,
		HasPassword:   user.HasPassword(),
		HasGoogle:     user.GoogleID != nil,
		CreatedAt:     user.CreatedAt,
		LastLoginAt:   user.LastLoginAt,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
