package authentication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/br-cmd/MerNproject/internal/user"
)

func newTestService(t *testing.T) (AuthenticationService, RecordRepository) {
	t.Helper()
	users := user.NewUserService(user.NewMemoryRepository(), zap.NewNop(), user.WithBcryptCost(bcrypt.MinCost))
	records := NewMemoryRecordRepository()
	return NewAuthenticationService(users, records, newTestIssuer(t), zap.NewNop()), records
}

// failingRecordRepo simulates a store that is down.
type failingRecordRepo struct{}

func (failingRecordRepo) Store(context.Context, uint, string, time.Time) error {
	return ErrStoreUnavailable
}
func (failingRecordRepo) Find(context.Context, uint, string) (*RefreshTokenRecord, error) {
	return nil, ErrStoreUnavailable
}
func (failingRecordRepo) Update(context.Context, uint, string, time.Time) error {
	return ErrStoreUnavailable
}
func (failingRecordRepo) Remove(context.Context, string) error { return ErrStoreUnavailable }

func TestLogin_Success(t *testing.T) {
	svc, records := newTestService(t)
	ctx := context.Background()

	registered, _, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)

	u, pair, err := svc.Login(ctx, "jane@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
	assert.NotEmpty(t, pair.AccessToken)

	// login supersedes the token issued at registration
	_, err = records.Find(ctx, u.ID, HashToken(pair.RefreshToken))
	assert.NoError(t, err)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)

	_, pair, err := svc.Login(ctx, "jane@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, pair.AccessToken)

	_, _, err = svc.Login(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegister_Twice(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)
	_, _, err = svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	assert.ErrorIs(t, err, user.ErrEmailAlreadyExists)
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, records := newTestService(t)
	ctx := context.Background()

	u, first, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = records.Find(ctx, u.ID, HashToken(first.RefreshToken))
	assert.ErrorIs(t, err, ErrRecordNotFound)
	_, err = records.Find(ctx, u.ID, HashToken(second.RefreshToken))
	assert.NoError(t, err)

	authed, err := svc.Authenticate(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, authed.ID)
}

func TestRefresh_StaleTokenRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, first, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	// still a validly signed token, but rotated out
	_, err = svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrStaleRefreshToken)
}

func TestRefresh_Rejections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrNoRefreshToken)

	_, err = svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	foreign, err := NewTokenIssuer("access-secret", time.Minute, "other-secret", time.Hour)
	require.NoError(t, err)
	pair, err := foreign.Issue(1, "a@b.com")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_ExpiredRecord(t *testing.T) {
	svc, records := newTestService(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)
	hash := HashToken(pair.RefreshToken)
	require.NoError(t, records.Store(ctx, u.ID, hash, time.Now().Add(-time.Minute)))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrStaleRefreshToken)

	_, err = records.Find(ctx, u.ID, hash)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

// removeFailingRepo serves records from memory but cannot delete them.
type removeFailingRepo struct {
	RecordRepository
}

func (removeFailingRepo) Remove(context.Context, string) error { return ErrStoreUnavailable }

func TestRefresh_ExpiredRecordCleanupFailureLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	users := user.NewUserService(user.NewMemoryRepository(), zap.NewNop(), user.WithBcryptCost(bcrypt.MinCost))
	records := removeFailingRepo{RecordRepository: NewMemoryRecordRepository()}
	svc := NewAuthenticationService(users, records, newTestIssuer(t), zap.New(core))
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, records.Store(ctx, u.ID, HashToken(pair.RefreshToken), time.Now().Add(-time.Minute)))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrStaleRefreshToken)

	entries := logs.FilterMessage("failed to remove expired refresh token").All()
	require.Len(t, entries, 1)
	assert.Equal(t, ErrStoreUnavailable.Error(), entries[0].ContextMap()["error"])
}

func TestLogout_RemovesRecord(t *testing.T) {
	svc, records := newTestService(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	_, err = records.Find(ctx, u.ID, HashToken(pair.RefreshToken))
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrStaleRefreshToken)

	// unknown and empty tokens are not errors
	assert.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	assert.NoError(t, svc.Logout(ctx, ""))
}

func TestStoreFailuresSurface(t *testing.T) {
	users := user.NewUserService(user.NewMemoryRepository(), zap.NewNop(), user.WithBcryptCost(bcrypt.MinCost))
	issuer := newTestIssuer(t)
	svc := NewAuthenticationService(users, failingRecordRepo{}, issuer, zap.NewNop())
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, _, err = svc.Login(ctx, "jane@example.com", "secret123")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	pair, err := issuer.Issue(1, "jane@example.com")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.False(t, errors.Is(err, ErrStaleRefreshToken))

	assert.ErrorIs(t, svc.Logout(ctx, pair.RefreshToken), ErrStoreUnavailable)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = svc.Authenticate(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}
