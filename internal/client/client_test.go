package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/br-cmd/MerNproject/internal/authentication"
	"github.com/br-cmd/MerNproject/internal/user"
	"github.com/br-cmd/MerNproject/internal/utils"
)

const testAccessSecret = "access-secret"

type testServer struct {
	srv          *httptest.Server
	refreshCalls atomic.Int32
}

// newTestServer runs the real auth routes over TLS so the Secure refresh cookie
// round-trips through the cookie jar.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := user.NewUserService(user.NewMemoryRepository(), zap.NewNop(), user.WithBcryptCost(bcrypt.MinCost))
	issuer, err := authentication.NewTokenIssuer(testAccessSecret, 15*time.Minute, "refresh-secret", 24*time.Hour)
	require.NoError(t, err)
	svc := authentication.NewAuthenticationService(users, authentication.NewMemoryRecordRepository(), issuer, zap.NewNop())

	ts := &testServer{}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if strings.HasSuffix(c.Request.URL.Path, refreshPath) {
			ts.refreshCalls.Add(1)
		}
		c.Next()
	})
	api := r.Group("/api/v1")
	authentication.NewAuthHandler(api.Group("/auth"), svc, authentication.CookieSettings{Secure: true}, zap.NewNop())
	user.NewUserHandler(api.Group("/user", authentication.AuthMiddleware(svc, zap.NewNop())), zap.NewNop())

	ts.srv = httptest.NewTLSServer(r)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) newClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseTransport(ts.srv.Client().Transport)}, opts...)
	c, err := New(ts.srv.URL+"/api/v1", opts...)
	require.NoError(t, err)
	return c
}

// expireAccessToken swaps the stored token for a correctly signed one that has expired.
func expireAccessToken(t *testing.T, c *Client, u *User) {
	t.Helper()
	token, err := utils.IssueAccessToken("1", u.Email, testAccessSecret, -time.Minute)
	require.NoError(t, err)
	c.tokens.SetAccessToken(token)
}

func TestClient_RegisterLoginGetUser(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)
	ctx := context.Background()

	u, err := c.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", u.Email)
	assert.NotEmpty(t, c.AccessToken())

	_, err = c.Register(ctx, "Jane", "jane@example.com", "secret123")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "User already exists", apiErr.Message)

	other := ts.newClient(t)
	_, err = other.Login(ctx, "jane@example.com", "wrong-pass")
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Unauthorized())
	assert.Equal(t, "Invalid credentials", apiErr.Message)

	_, err = other.Login(ctx, "jane@example.com", "secret123")
	require.NoError(t, err)
	me, err := other.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Jane", me.Name)
	assert.Zero(t, ts.refreshCalls.Load())
}

func TestClient_RefreshesExpiredAccessToken(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)
	ctx := context.Background()

	u, err := c.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)
	expireAccessToken(t, c, u)
	expired := c.AccessToken()

	me, err := c.GetUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, u.Email, me.Email)
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	assert.NotEqual(t, expired, c.AccessToken())

	// the rotated cookie is usable for the next refresh
	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), ts.refreshCalls.Load())
}

func TestClient_SessionExpiredAfterLogout(t *testing.T) {
	ts := newTestServer(t)
	var expiredHook atomic.Int32
	c := ts.newClient(t, WithOnSessionExpired(func() { expiredHook.Add(1) }))
	ctx := context.Background()

	u, err := c.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.AccessToken())

	expireAccessToken(t, c, u)
	_, err = c.GetUser(ctx)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	// the caller sees the original failure, not the refresh failure
	assert.Equal(t, "Invalid or expired access token", apiErr.Message)
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
	assert.Equal(t, int32(1), expiredHook.Load())
	assert.Empty(t, c.AccessToken())
}

func TestClient_StaleRefreshCookie(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	first := ts.newClient(t)
	u, err := first.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)

	// a second login replaces the single stored refresh token for this user
	second := ts.newClient(t)
	_, err = second.Login(ctx, "jane@example.com", "secret123")
	require.NoError(t, err)

	_, err = first.Refresh(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid refresh token.", apiErr.Message)

	expireAccessToken(t, second, u)
	_, err = second.GetUser(ctx)
	require.NoError(t, err)
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	ts := newTestServer(t)
	c := ts.newClient(t)
	ctx := context.Background()

	u, err := c.Register(ctx, "Jane", "jane@example.com", "secret123")
	require.NoError(t, err)
	expireAccessToken(t, c, u)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetUser(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), ts.refreshCalls.Load())
}

func TestClient_TransportError(t *testing.T) {
	c, err := New("https://portal.invalid/api/v1", WithBaseTransport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial failed")
	})))
	require.NoError(t, err)

	_, err = c.GetUser(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
