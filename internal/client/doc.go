// Package client is a Go client for the job portal authentication API.
//
// # Overview
//
// Client keeps the short-lived access token in a TokenStore and the
// httpOnly refresh cookie in a cookie jar. Every request goes through a
// refreshing transport that:
//  1. attaches "Authorization: Bearer <access token>" when one is stored;
//  2. on a 401 for a request that carried a token, calls /auth/refresh once
//     and replays the original request with the new token;
//  3. when the refresh fails, clears the stored token, fires the
//     OnSessionExpired hook and hands back the original 401 response.
//
// Concurrent 401s share a single in-flight refresh.
//
// # Error Handling
//
// Non-2xx responses are returned as *APIError carrying the status code and the
// server message, suitable for showing to a user.
package client
