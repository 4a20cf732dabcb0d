package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/model"
	"github.com/vasapolrittideah/credential-authority/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/credential-authority/shared/provider"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	err   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}}
}

func copyUser(u *model.User) *model.User {
	c := *u
	return &c
}

func (r *fakeUserRepo) byEmail(email string) *model.User {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (r *fakeUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *fakeUserRepo) get(id string) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return copyUser(u)
	}
	return nil
}

func (r *fakeUserRepo) put(u *model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = copyUser(u)
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if u := r.byEmail(email); u != nil {
		return copyUser(u), nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if u, ok := r.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUserRepo) CreateWithPassword(_ context.Context, params repository.CreateUserParams) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if r.byEmail(params.Email) != nil {
		return nil, repository.ErrDuplicate
	}

	now := time.Now()
	hash := params.PasswordHash
	u := &model.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(params.Email),
		Name:         params.Name,
		PasswordHash: &hash,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.users[u.ID] = u
	return copyUser(u), nil
}

func (r *fakeUserRepo) UpsertByFederatedSubject(
	_ context.Context,
	params repository.UpsertFederatedUserParams,
) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	now := time.Now()
	picture := params.Picture

	for _, u := range r.users {
		if u.GoogleID != nil && *u.GoogleID == params.Subject {
			u.Name = params.Name
			u.Picture = &picture
			u.LastLoginAt = &now
			return copyUser(u), nil
		}
	}

	if u := r.byEmail(params.Email); u != nil {
		if u.GoogleID != nil {
			return nil, repository.ErrDuplicate
		}
		subject := params.Subject
		u.GoogleID = &subject
		u.EmailVerified = true
		u.Name = params.Name
		u.LastLoginAt = &now
		return copyUser(u), nil
	}

	subject := params.Subject
	u := &model.User{
		ID:            uuid.NewString(),
		Email:         strings.ToLower(params.Email),
		Name:          params.Name,
		Picture:       &picture,
		GoogleID:      &subject,
		EmailVerified: true,
		Status:        model.UserStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastLoginAt:   &now,
	}
	r.users[u.ID] = u
	return copyUser(u), nil
}

func (r *fakeUserRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = &passwordHash
	return nil
}

func (r *fakeUserRepo) TouchLastLogin(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	err      error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*model.Session{}}
}

func (r *fakeSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeSessionRepo) Create(_ context.Context, session *model.Session) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if _, ok := r.sessions[session.TokenHash]; ok {
		return nil, repository.ErrDuplicate
	}
	session.CreatedAt = time.Now()
	session.IsValid = true
	c := *session
	r.sessions[session.TokenHash] = &c
	return session, nil
}

func (r *fakeSessionRepo) IsUsable(_ context.Context, tokenHash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	s, ok := r.sessions[tokenHash]
	return ok && s.IsUsable(now), nil
}

func (r *fakeSessionRepo) Invalidate(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if s, ok := r.sessions[tokenHash]; ok {
		s.IsValid = false
	}
	return nil
}

func (r *fakeSessionRepo) InvalidateAll(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var n int64
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsValid {
			s.IsValid = false
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) Sweep(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var n int64
	for hash, s := range r.sessions {
		if !s.IsUsable(now) {
			delete(r.sessions, hash)
			n++
		}
	}
	return n, nil
}

func (r *fakeSessionRepo) ListActive(_ context.Context, userID string, now time.Time) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*model.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.IsUsable(now) {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

type fakeResetTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.PasswordResetToken
	err    error
}

func newFakeResetTokenRepo() *fakeResetTokenRepo {
	return &fakeResetTokenRepo{tokens: map[string]*model.PasswordResetToken{}}
}

func (r *fakeResetTokenRepo) get(userID string) *model.PasswordResetToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[userID]; ok {
		c := *t
		return &c
	}
	return nil
}

func (r *fakeResetTokenRepo) Upsert(_ context.Context, token *model.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	c := *token
	c.Used = false
	r.tokens[token.UserID] = &c
	return nil
}

func (r *fakeResetTokenRepo) Consume(_ context.Context, tokenHash string, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash && !t.Used && now.Before(t.ExpiresAt) {
			t.Used = true
			return t.UserID, nil
		}
	}
	return "", repository.ErrNotFound
}

func (r *fakeResetTokenRepo) InvalidateUserTokens(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if t, ok := r.tokens[userID]; ok {
		t.Used = true
	}
	return nil
}

func (r *fakeResetTokenRepo) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	var n int64
	for userID, t := range r.tokens {
		if t.Used || !now.Before(t.ExpiresAt) {
			delete(r.tokens, userID)
			n++
		}
	}
	return n, nil
}

type fakeVerifier struct {
	identity *provider.FederatedIdentity
	err      error
}

func (v *fakeVerifier) Verify(_ context.Context, _ string) (*provider.FederatedIdentity, error) {
	if v.err != nil {
		return nil, v.err
	}
	c := *v.identity
	return &c, nil
}

type sentReset struct {
	email string
	token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentReset
	err  error
}

func (n *fakeNotifier) SendPasswordReset(_ context.Context, user *model.User, resetToken string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{email: user.Email, token: resetToken})
	return n.err
}

func (n *fakeNotifier) last() (sentReset, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentReset{}, false
	}
	return n.sent[len(n.sent)-1], true
}
