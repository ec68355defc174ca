package service

import (
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/port"
)

var (
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailInUse         = errors.New("email already in use")
	ErrUsernameNotFound   = errors.New("username not found")
	ErrIncorrectPassword  = errors.New("incorrect password, please try again")
	ErrNoAccountForEmail  = errors.New("no user found with this email")
	ErrResetTokenInvalid  = errors.New("password reset link is invalid or has expired")
	ErrSessionRevoked     = errors.New("session has been signed out")
	ErrRegistrationBusy   = errors.New("username is being registered, try again")
	errAccountUnavailable = errors.New("account no longer exists")
)

type AuthService struct {
	accounts port.AccountRepository
	cache    port.CacheRepository
	sessions port.SessionStore
	mailer   port.Mailer
	tokens   *TokenManager
	resetTTL time.Duration
	now      func() time.Time
}

func NewAuthService(
	accounts port.AccountRepository,
	cache port.CacheRepository,
	sessions port.SessionStore,
	mailer port.Mailer,
	tokens *TokenManager,
	resetTTL time.Duration,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		cache:    cache,
		sessions: sessions,
		mailer:   mailer,
		tokens:   tokens,
		resetTTL: resetTTL,
		now:      time.Now,
	}
}

// Register creates an account. A Redis reservation serialises concurrent
// registrations of one username; the unique index is the final guard.
func (s *AuthService) Register(ctx context.Context, in domain.RegisterInput) (domain.Account, error) {
	in, err := in.Validate()
	if err != nil {
		return domain.Account{}, err
	}

	reservation, ok, err := s.cache.ReserveUsername(ctx, in.Username)
	if err != nil {
		return domain.Account{}, fmt.Errorf("reserve username: %w", err)
	}
	if !ok {
		return domain.Account{}, ErrRegistrationBusy
	}
	defer func() {
		if err := s.cache.ReleaseUsername(context.WithoutCancel(ctx), in.Username, reservation); err != nil {
			log.Printf("auth: release username %q: %v", in.Username, err)
		}
	}()

	exists, err := s.accounts.UsernameExists(ctx, in.Username)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.Account{}, ErrUsernameTaken
	}

	exists, err = s.accounts.EmailExists(ctx, in.Email)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.Account{}, ErrEmailInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, port.ErrDuplicate) {
			return domain.Account{}, s.duplicateCause(ctx, in)
		}
		return domain.Account{}, fmt.Errorf("create account: %w", err)
	}

	log.Printf("auth: registered account %s (%s)", account.ID, account.Username)
	return account, nil
}

// duplicateCause tells which unique index rejected the insert. The username
// wins when both are taken.
func (s *AuthService) duplicateCause(ctx context.Context, in domain.RegisterInput) error {
	if exists, err := s.accounts.UsernameExists(ctx, in.Username); err == nil && exists {
		return ErrUsernameTaken
	}
	if exists, err := s.accounts.EmailExists(ctx, in.Email); err == nil && exists {
		return ErrEmailInUse
	}
	return ErrUsernameTaken
}

// SignIn looks the account up by username and issues a session token.
func (s *AuthService) SignIn(ctx context.Context, username, password string) (domain.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Session{}, domain.ErrMissingUsername
	}
	if password == "" {
		return domain.Session{}, domain.ErrMissingPassword
	}

	account, err := s.accounts.GetAccountByUsername(ctx, username)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Session{}, ErrUsernameNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("lookup username: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return domain.Session{}, ErrIncorrectPassword
	}

	token, tokenID, expiresAt, err := s.tokens.Issue(account.ID, account.PasswordHash)
	if err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		Token:     token,
		TokenID:   tokenID,
		Account:   account,
		ExpiresAt: expiresAt,
	}, nil
}

// SignOut revokes the token for the rest of its lifetime.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return err
	}
	ttl := s.tokens.Remaining(claims)
	if ttl == 0 {
		return nil
	}
	if err := s.sessions.RevokeSession(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Authenticate resolves a session token to its account.
func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.Account, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return domain.Account{}, err
	}

	revoked, err := s.sessions.IsSessionRevoked(ctx, claims.ID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("check session: %w", err)
	}
	if revoked {
		return domain.Account{}, ErrSessionRevoked
	}

	account, err := s.accounts.GetAccount(ctx, claims.UserID)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Account{}, fmt.Errorf("%w: %v", ErrInvalidToken, errAccountUnavailable)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	// A password change ends every session issued before it.
	if !hmac.Equal([]byte(claims.Stamp), []byte(s.tokens.Stamp(account.PasswordHash))) {
		return domain.Account{}, ErrSessionRevoked
	}
	return account, nil
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.ErrMissingEmail
	}

	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if errors.Is(err, port.ErrNotFound) {
		return ErrNoAccountForEmail
	}
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}

	token := uuid.NewString()
	if err := s.sessions.StoreResetToken(ctx, token, account.ID, s.resetTTL); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if err := s.mailer.SendPasswordReset(ctx, account, token); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < domain.MinPasswordLength {
		return domain.ErrWeakPassword
	}

	accountID, ok, err := s.sessions.ConsumeResetToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		return ErrResetTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, accountID, string(hash)); err != nil {
		if errors.Is(err, port.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("update password: %w", err)
	}
	log.Printf("auth: password reset for account %s, earlier sessions ended", accountID)
	return nil
}

// DisplayName returns the account's username, or domain.UnknownUser.
func (s *AuthService) DisplayName(ctx context.Context, accountID string) string {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil || account.Username == "" {
		return domain.UnknownUser
	}
	return account.Username
}
