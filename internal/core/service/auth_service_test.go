package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/port/porttest"
)

type authFixture struct {
	db     *porttest.Database
	cache  *porttest.Cache
	mailer *porttest.Mailer
	svc    *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		db:     porttest.NewDatabase(),
		cache:  porttest.NewCache(),
		mailer: porttest.NewMailer(),
	}
	tokens := NewTokenManager("test-secret-0123456789", time.Hour)
	f.svc = NewAuthService(f.db, f.cache, f.cache, f.mailer, tokens, time.Hour)
	return f
}

func (f *authFixture) register(t *testing.T, username, email string) domain.Account {
	t.Helper()
	a, err := f.svc.Register(context.Background(), domain.RegisterInput{
		Username: username,
		Email:    email,
		Password: "secret123",
	})
	require.NoError(t, err)
	return a
}

func TestRegister_Validation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   domain.RegisterInput
		want error
	}{
		{"blank username", domain.RegisterInput{Username: "  ", Email: "a@b.co", Password: "secret1"}, domain.ErrMissingUsername},
		{"bad email", domain.RegisterInput{Username: "alice", Email: "nope", Password: "secret1"}, domain.ErrInvalidEmail},
		{"short password", domain.RegisterInput{Username: "alice", Email: "a@b.co", Password: "12345"}, domain.ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, f.db.CallCount())
}

func TestRegister_DuplicateUsernameAndEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")

	_, err := f.svc.Register(ctx, domain.RegisterInput{Username: "alice", Email: "other@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Equal(t, "username already exists", err.Error())

	_, err = f.svc.Register(ctx, domain.RegisterInput{Username: "bob", Email: "alice@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrEmailInUse)
}

func TestRegister_EmailRaceReportsEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	// Another registration claims the email after the existence checks pass.
	f.db.BeforeCreateAccount = func() {
		require.NoError(t, f.db.CreateAccount(ctx, domain.Account{ID: "other", Username: "carol", Email: "shared@example.com"}))
	}

	_, err := f.svc.Register(ctx, domain.RegisterInput{Username: "dave", Email: "shared@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrEmailInUse)
	assert.Equal(t, "email already in use", err.Error())
}

func TestRegister_UsernameRaceReportsUsername(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	f.db.BeforeCreateAccount = func() {
		require.NoError(t, f.db.CreateAccount(ctx, domain.Account{ID: "other", Username: "erin", Email: "first@example.com"}))
	}

	_, err := f.svc.Register(ctx, domain.RegisterInput{Username: "erin", Email: "second@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegister_ExpiredReservationKeepsNewHolder(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	var secondToken string
	f.db.BeforeCreateAccount = func() {
		// The first holder's TTL lapses and a second registration reserves the name.
		f.cache.ExpireReservation("frank")
		token, ok, err := f.cache.ReserveUsername(ctx, "frank")
		require.NoError(t, err)
		require.True(t, ok)
		secondToken = token
	}

	_, err := f.svc.Register(ctx, domain.RegisterInput{Username: "frank", Email: "frank@example.com", Password: "secret123"})
	require.NoError(t, err)

	assert.True(t, f.cache.Reserved("frank"), "first registration must not drop the second holder's reservation")
	require.NoError(t, f.cache.ReleaseUsername(ctx, "frank", secondToken))
	assert.False(t, f.cache.Reserved("frank"))
}

func TestRegister_ReleasesReservation(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "gina", "gina@example.com")
	assert.False(t, f.cache.Reserved("gina"))
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	f := newAuthFixture(t)

	const attempts = 20
	var successes atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), domain.RegisterInput{
				Username: "racer",
				Email:    fmt.Sprintf("racer%d@example.com", n),
				Password: "secret123",
			})
			if err == nil {
				successes.Add(1)
				return
			}
			if !errors.Is(err, ErrUsernameTaken) && !errors.Is(err, ErrRegistrationBusy) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestSignIn(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	account := f.register(t, "alice", "alice@example.com")

	_, err := f.svc.SignIn(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, ErrUsernameNotFound)

	_, err = f.svc.SignIn(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrIncorrectPassword)

	_, err = f.svc.SignIn(ctx, "", "secret123")
	assert.ErrorIs(t, err, domain.ErrMissingUsername)

	session, err := f.svc.SignIn(ctx, " alice ", "secret123")
	require.NoError(t, err)
	assert.Equal(t, account.ID, session.Account.ID)
	assert.NotEmpty(t, session.Token)

	got, err := f.svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestSignOut_RevokesToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")

	session, err := f.svc.SignIn(ctx, "alice", "secret123")
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, session.Token))

	_, err = f.svc.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestAuthenticate_RejectsGarbage(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordReset(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")

	assert.ErrorIs(t, f.svc.RequestPasswordReset(ctx, ""), domain.ErrMissingEmail)
	assert.ErrorIs(t, f.svc.RequestPasswordReset(ctx, "ghost@example.com"), ErrNoAccountForEmail)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com"))
	token := f.mailer.TokenFor("alice@example.com")
	require.NotEmpty(t, token)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "123"), domain.ErrWeakPassword)
	require.NoError(t, f.svc.ResetPassword(ctx, token, "new-secret"))

	// Tokens are single use.
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "another-secret"), ErrResetTokenInvalid)

	_, err := f.svc.SignIn(ctx, "alice", "secret123")
	assert.ErrorIs(t, err, ErrIncorrectPassword)
	_, err = f.svc.SignIn(ctx, "alice", "new-secret")
	assert.NoError(t, err)
}

func TestResetPassword_EndsEarlierSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "alice@example.com")

	before, err := f.svc.SignIn(ctx, "alice", "secret123")
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, before.Token)
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com"))
	require.NoError(t, f.svc.ResetPassword(ctx, f.mailer.TokenFor("alice@example.com"), "new-secret"))

	_, err = f.svc.Authenticate(ctx, before.Token)
	assert.ErrorIs(t, err, ErrSessionRevoked)

	after, err := f.svc.SignIn(ctx, "alice", "new-secret")
	require.NoError(t, err)
	got, err := f.svc.Authenticate(ctx, after.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestDisplayName(t *testing.T) {
	f := newAuthFixture(t)
	account := f.register(t, "alice", "alice@example.com")

	assert.Equal(t, "alice", f.svc.DisplayName(context.Background(), account.ID))
	assert.Equal(t, domain.UnknownUser, f.svc.DisplayName(context.Background(), "missing"))
}
