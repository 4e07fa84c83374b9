package users

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliamunaev/movie-composite-gateway/internal/apperr"
	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
)

type call struct {
	method string
	uri    string
	body   string
}

func newServer(t *testing.T, status int) (*Client, <-chan call) {
	t.Helper()
	calls := make(chan call, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls <- call{method: r.Method, uri: r.URL.RequestURI(), body: string(b)}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"id":"u1"}`)
	}))
	t.Cleanup(srv.Close)
	up := upstream.New(upstream.Config{Name: Name, BaseURL: srv.URL, Timeout: time.Second})
	return New(up), calls
}

func TestClientRoutes(t *testing.T) {
	t.Parallel()

	body := json.RawMessage(`{"name":"ann"}`)
	tests := []struct {
		name     string
		do       func(c *Client) (*model.CallResult, error)
		wantCall call
	}{
		{
			name:     "login",
			do:       func(c *Client) (*model.CallResult, error) { return c.Login(context.Background(), body) },
			wantCall: call{method: http.MethodPost, uri: "/sessions", body: `{"name":"ann"}`},
		},
		{
			name:     "create",
			do:       func(c *Client) (*model.CallResult, error) { return c.Create(context.Background(), body) },
			wantCall: call{method: http.MethodPost, uri: "/users", body: `{"name":"ann"}`},
		},
		{
			name:     "get",
			do:       func(c *Client) (*model.CallResult, error) { return c.Get(context.Background(), "u1") },
			wantCall: call{method: http.MethodGet, uri: "/users/u1"},
		},
		{
			name:     "update",
			do:       func(c *Client) (*model.CallResult, error) { return c.Update(context.Background(), "u1", body) },
			wantCall: call{method: http.MethodPatch, uri: "/users/u1", body: `{"name":"ann"}`},
		},
		{
			name:     "delete",
			do:       func(c *Client) (*model.CallResult, error) { return c.Delete(context.Background(), "u1") },
			wantCall: call{method: http.MethodDelete, uri: "/users/u1"},
		},
		{
			name:     "get_status",
			do:       func(c *Client) (*model.CallResult, error) { return c.GetStatus(context.Background(), "u1") },
			wantCall: call{method: http.MethodGet, uri: "/users/u1/status"},
		},
		{
			name: "update_status",
			do: func(c *Client) (*model.CallResult, error) {
				return c.UpdateStatus(context.Background(), "u1", "locked", "2030-01-01")
			},
			wantCall: call{method: http.MethodPatch, uri: "/users/u1/status?locked_until=2030-01-01&status=locked"},
		},
		{
			name: "update_status_without_lock",
			do: func(c *Client) (*model.CallResult, error) {
				return c.UpdateStatus(context.Background(), "u1", "active", "")
			},
			wantCall: call{method: http.MethodPatch, uri: "/users/u1/status?status=active"},
		},
		{
			name:     "escaped_id",
			do:       func(c *Client) (*model.CallResult, error) { return c.Get(context.Background(), "a/b") },
			wantCall: call{method: http.MethodGet, uri: "/users/a%2Fb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, calls := newServer(t, http.StatusOK)

			res, err := tt.do(c)
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, tt.wantCall, <-calls)
		})
	}
}

func TestDeprecatedStatusIsNotFound(t *testing.T) {
	t.Parallel()

	c, _ := newServer(t, http.StatusNotFound)
	_, err := c.GetStatus(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
}

func TestExists(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		status int
		want   bool
	}{
		{status: http.StatusOK, want: true},
		{status: http.StatusNotFound, want: false},
		{status: http.StatusInternalServerError, want: false},
	} {
		c, _ := newServer(t, tt.status)
		got, err := c.Exists(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "status %d", tt.status)
	}
}

func TestNewPanicsOnNil(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { New(nil) })
}
