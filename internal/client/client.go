package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	registerPath = "/auth/register"
	loginPath    = "/auth/login"
	logoutPath   = "/auth/logout"
	refreshPath  = "/auth/refresh"
	getUserPath  = "/user/get-user"

	defaultTimeout = 30 * time.Second
)

var ErrUnexpectedResponse = errors.New("unexpected response from server")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Unauthorized reports whether the server rejected the credentials.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// User is the account as returned by the server.
type User struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type authResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	User        *User  `json:"user"`
	AccessToken string `json:"accessToken"`
}

type refreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken"`
}

type userResponse struct {
	Success bool  `json:"success"`
	User    *User `json:"user"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client talks to the authentication API rooted at baseURL (for example
// "https://portal.example.com/api/v1").
type Client struct {
	baseURL string
	http    *http.Client
	// raw shares the cookie jar but skips the refreshing transport.
	raw    *http.Client
	tokens TokenStore
	logger *zap.Logger

	base             http.RoundTripper
	timeout          time.Duration
	onSessionExpired func()
}

type Option func(*Client)

func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.tokens = store }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithBaseTransport sets the transport used for the actual network calls.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithOnSessionExpired registers a hook run when a refresh fails and the user
// must log in again.
func WithOnSessionExpired(fn func()) Option {
	return func(c *Client) { c.onSessionExpired = fn }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  NewMemoryTokenStore(),
		logger:  zap.NewNop(),
		base:    http.DefaultTransport,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c.raw = &http.Client{Transport: c.base, Jar: jar, Timeout: c.timeout}
	c.http = &http.Client{
		Transport: &refreshTransport{
			base:           c.base,
			tokens:         c.tokens,
			jar:            jar,
			refresh:        c.Refresh,
			refreshPath:    refreshPath,
			refreshTimeout: c.timeout,
			onExpired:      c.onSessionExpired,
			logger:         c.logger,
		},
		Jar:     jar,
		Timeout: c.timeout,
	}
	return c, nil
}

// AccessToken returns the stored access token, empty when logged out.
func (c *Client) AccessToken() string {
	return c.tokens.AccessToken()
}

func (c *Client) Register(ctx context.Context, name, email, password string) (*User, error) {
	var resp authResponse
	payload := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, c.http, http.MethodPost, registerPath, payload, &resp); err != nil {
		return nil, err
	}
	return c.acceptAuth(resp)
}

func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	var resp authResponse
	payload := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, c.http, http.MethodPost, loginPath, payload, &resp); err != nil {
		return nil, err
	}
	return c.acceptAuth(resp)
}

func (c *Client) acceptAuth(resp authResponse) (*User, error) {
	if resp.AccessToken == "" || resp.User == nil {
		return nil, ErrUnexpectedResponse
	}
	c.tokens.SetAccessToken(resp.AccessToken)
	return resp.User, nil
}

// Logout revokes the refresh token on the server. The local token is dropped
// even when the call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.tokens.Clear()
	var resp messageResponse
	return c.do(ctx, c.raw, http.MethodGet, logoutPath, nil, &resp)
}

// Refresh exchanges the refresh cookie for a new access token and stores it.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	var resp refreshResponse
	if err := c.do(ctx, c.raw, http.MethodGet, refreshPath, nil, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", ErrUnexpectedResponse
	}
	c.tokens.SetAccessToken(resp.AccessToken)
	return resp.AccessToken, nil
}

func (c *Client) GetUser(ctx context.Context) (*User, error) {
	var resp userResponse
	if err := c.do(ctx, c.http, http.MethodGet, getUserPath, nil, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, ErrUnexpectedResponse
	}
	return resp.User, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var msg messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err == nil && msg.Message != "" {
		apiErr.Message = msg.Message
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
