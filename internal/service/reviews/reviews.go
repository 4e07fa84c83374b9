// Package reviews is the client for the Reviews backend.
package reviews

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
)

// Name identifies the Reviews backend.
const Name = "reviews"

// Client calls the Reviews backend.
type Client struct {
	up *upstream.Client
}

// New wraps up. It panics if up is nil.
func New(up *upstream.Client) *Client {
	if up == nil {
		panic("reviews.New: nil upstream client")
	}
	return &Client{up: up}
}

// List lists reviews; query (movie_id, user_id, limit, ...) is forwarded as is.
func (c *Client) List(ctx context.Context, query url.Values, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: "/reviews", Query: query}, opts...)
}

// Create posts a review. Callers validate its references first.
func (c *Client) Create(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/reviews", Body: body}, opts...)
}

func (c *Client) Get(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: reviewPath(id)}, opts...)
}

func (c *Client) Update(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPut, Path: reviewPath(id), Body: body}, opts...)
}

func (c *Client) Delete(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodDelete, Path: reviewPath(id)}, opts...)
}

// Health reads the backend health endpoint.
func (c *Client) Health(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: "/health"}, opts...)
}

func reviewPath(id string) string { return "/reviews/" + url.PathEscape(id) }
