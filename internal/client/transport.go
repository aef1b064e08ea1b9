package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

type refreshFunc func(ctx context.Context) (string, error)

// refreshTransport attaches the access token and retries once after a refresh on 401.
type refreshTransport struct {
	base        http.RoundTripper
	tokens      TokenStore
	jar         http.CookieJar
	refresh     refreshFunc
	refreshPath string
	// refreshTimeout bounds the shared refresh, which outlives any single caller.
	refreshTimeout time.Duration
	onExpired      func()
	logger         *zap.Logger
	group          singleflight.Group
}

func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, t.refreshPath) {
		return t.base.RoundTrip(req)
	}

	sent := t.tokens.AccessToken()
	resp, err := t.base.RoundTrip(withBearer(req, sent))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || sent == "" {
		return resp, err
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		t.logger.Debug("401 on request with non-replayable body, not retrying", zap.String("path", req.URL.Path))
		return resp, nil
	}

	token, err := t.refreshShared(req.Context(), sent)
	if err != nil {
		t.logger.Info("access token not refreshed", zap.String("path", req.URL.Path), zap.Error(err))
		return resp, nil
	}

	retry, err := t.replay(req, token)
	if err != nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return t.base.RoundTrip(retry)
}

// refreshShared runs at most one refresh at a time. The refresh is detached from
// the caller that started it; each caller stops waiting when its own context ends.
// A caller whose token was already replaced by a finished refresh reuses the new token.
func (t *refreshTransport) refreshShared(ctx context.Context, sent string) (string, error) {
	ch := t.group.DoChan(refreshKey, func() (any, error) {
		if current := t.tokens.AccessToken(); current != "" && current != sent {
			return current, nil
		}

		refreshCtx := context.WithoutCancel(ctx)
		if t.refreshTimeout > 0 {
			var cancel context.CancelFunc
			refreshCtx, cancel = context.WithTimeout(refreshCtx, t.refreshTimeout)
			defer cancel()
		}

		token, err := t.refresh(refreshCtx)
		if err != nil {
			if sessionRejected(err) {
				t.logger.Info("session expired", zap.Error(err))
				t.tokens.Clear()
				if t.onExpired != nil {
					t.onExpired()
				}
			}
			return "", err
		}
		t.tokens.SetAccessToken(token)
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		t.logger.Debug("access token refreshed", zap.Bool("shared", res.Shared))
		return res.Val.(string), nil
	}
}

// sessionRejected reports whether the refresh endpoint itself refused the session,
// as opposed to the call failing on the way.
func sessionRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

func (t *refreshTransport) replay(req *http.Request, token string) (*http.Request, error) {
	retry := withBearer(req, token)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	// the refresh rotated the cookie after the client attached the old one
	if t.jar != nil {
		retry.Header.Del("Cookie")
		for _, c := range t.jar.Cookies(req.URL) {
			retry.AddCookie(c)
		}
	}
	return retry, nil
}

func withBearer(req *http.Request, token string) *http.Request {
	if token == "" {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return out
}
