// Package catalog is the client for the Catalog backend: movies, people and
// share-card jobs.
package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
)

// Name identifies the Catalog backend.
const Name = "catalog"

// Client calls the Catalog backend.
type Client struct {
	up *upstream.Client
}

// New wraps up. It panics if up is nil.
func New(up *upstream.Client) *Client {
	if up == nil {
		panic("catalog.New: nil upstream client")
	}
	return &Client{up: up}
}

// BaseURL is the Catalog base URL that relative share-card links resolve against.
func (c *Client) BaseURL() string { return c.up.BaseURL() }

// List lists movies; query is forwarded as is.
func (c *Client) List(ctx context.Context, query url.Values, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: "/movies", Query: query}, opts...)
}

func (c *Client) Create(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/movies", Body: body}, opts...)
}

func (c *Client) Get(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: moviePath(id)}, opts...)
}

func (c *Client) Update(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPut, Path: moviePath(id), Body: body}, opts...)
}

func (c *Client) Delete(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodDelete, Path: moviePath(id)}, opts...)
}

// People lists the cast and crew of a movie.
func (c *Client) People(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: moviePath(id) + "/people"}, opts...)
}

// GenerateShareCard starts an asynchronous share-card job. The backend
// answers 202 with a job status link.
func (c *Client) GenerateShareCard(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPost, Path: moviePath(id) + "/generate-share-card"}, opts...)
}

// ShareCardJob polls a share-card job.
func (c *Client) ShareCardJob(ctx context.Context, id, jobID string, opts ...upstream.CallOption) (*model.CallResult, error) {
	path := moviePath(id) + "/share-card-jobs/" + url.PathEscape(jobID)
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: path}, opts...)
}

func (c *Client) ListPeople(ctx context.Context, query url.Values, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: "/people", Query: query}, opts...)
}

func (c *Client) CreatePerson(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPost, Path: "/people", Body: body}, opts...)
}

func (c *Client) GetPerson(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: personPath(id)}, opts...)
}

func (c *Client) UpdatePerson(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodPut, Path: personPath(id), Body: body}, opts...)
}

func (c *Client) DeletePerson(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodDelete, Path: personPath(id)}, opts...)
}

// PersonMovies lists the movies a person worked on.
func (c *Client) PersonMovies(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error) {
	return c.up.Do(ctx, upstream.Request{Method: http.MethodGet, Path: personPath(id) + "/movies"}, opts...)
}

// MovieExists reports whether the movie can be fetched with a 200. Any error
// status reports false with a nil error; transport failures return the error.
func (c *Client) MovieExists(ctx context.Context, id string, opts ...upstream.CallOption) (bool, error) {
	res, err := c.Get(ctx, id, append(opts, upstream.Tolerant())...)
	if err != nil {
		return false, err
	}
	return res.StatusCode == http.StatusOK, nil
}

func moviePath(id string) string { return "/movies/" + url.PathEscape(id) }

func personPath(id string) string { return "/people/" + url.PathEscape(id) }
