// Package users is the client for the Users backend: accounts, sessions and
// the legacy status endpoints.
package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
)

// Name identifies the Users backend.
const Name = "users"

// Client calls the Users backend.
type Client struct {
	up *upstream.Client
}

// New wraps up. It panics if up is nil.
func New(up *upstream.Client) *Client {
	if up == nil {
		panic("users.New: nil upstream client")
	}
	return &Client{up: up}
}

// Login opens a session (POST /sessions).
func (c *Client) Login(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/sessions", Body: body}, opts...)
}

// Create registers a user (POST /users).
func (c *Client) Create(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/users", Body: body}, opts...)
}

// Get fetches one user.
func (c *Client) Get(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: userPath(id)}, opts...)
}

// Update patches one user.
func (c *Client) Update(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPatch, Path: userPath(id), Body: body}, opts...)
}

// Delete removes one user.
func (c *Client) Delete(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodDelete, Path: userPath(id)}, opts...)
}

// GetStatus reads the legacy account status. The Users backend has retired
// this endpoint and answers 404; the call is kept for old clients.
func (c *Client) GetStatus(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: userPath(id) + "/status"}, opts...)
}

// UpdateStatus sets the legacy account status. lockedUntil is omitted when
// empty. Like GetStatus it is expected to answer 404.
func (c *Client) UpdateStatus(ctx context.Context, id, status, lockedUntil string, opts ...upstream.CallOption) (*model.CallResult, error) {
	q := url.Values{"status": {status}}
	if lockedUntil != "" {
		q.Set("locked_until", lockedUntil)
	}
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPatch, Path: userPath(id) + "/status", Query: q}, opts...)
}

// Exists reports whether the user can be fetched with a 200. Any error status
// reports false with a nil error; transport failures return the error.
func (c *Client) Exists(ctx context.Context, id string, opts ...upstream.CallOption) (bool, error) {
	res, err := c.Get(ctx, id, append(opts, upstream.Tolerant())...)
	if err != nil {
		return false, err
	}
	return res.StatusCode == http.StatusOK, nil
}

func userPath(id string) string {
	return "/users/" + url.PathEscape(id)
}
