package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/iliamunaev/movie-composite-gateway/internal/apperr"
	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
)

type callFunc func(ctx context.Context) (*model.CallResult, error)

type fakeBackends struct {
	movie   callFunc
	people  callFunc
	reviews callFunc

	mu    sync.Mutex
	query url.Values
}

func (f *fakeBackends) Get(ctx context.Context, _ string, _ ...upstream.CallOption) (*model.CallResult, error) {
	return f.movie(ctx)
}

func (f *fakeBackends) People(ctx context.Context, _ string, _ ...upstream.CallOption) (*model.CallResult, error) {
	return f.people(ctx)
}

func (f *fakeBackends) List(ctx context.Context, q url.Values, _ ...upstream.CallOption) (*model.CallResult, error) {
	f.mu.Lock()
	f.query = q
	f.mu.Unlock()
	return f.reviews(ctx)
}

func respond(status int, body string) callFunc {
	return func(context.Context) (*model.CallResult, error) {
		res := &model.CallResult{StatusCode: status, Header: http.Header{}}
		if body != "" {
			res.Body = json.RawMessage(body)
		}
		return res, nil
	}
}

func fail(status int) callFunc {
	return func(context.Context) (*model.CallResult, error) {
		return nil, &apperr.UpstreamError{Backend: "x", StatusCode: status, Cause: apperr.ErrUnreachable}
	}
}

func healthy() *fakeBackends {
	return &fakeBackends{
		movie:   respond(http.StatusOK, `{"id":"m1","title":"Heat"}`),
		people:  respond(http.StatusOK, `[{"name":"Al Pacino","role":"actor"}]`),
		reviews: respond(http.StatusOK, `{"total":12,"items":[{"id":"r1","rating":5}]}`),
	}
}

func newService(f *fakeBackends, opts ...Option) *Service {
	return New(f, f, opts...)
}

func TestMovieDetailsAllBranchesOK(t *testing.T) {
	t.Parallel()

	f := healthy()
	got, err := newService(f).MovieDetails(context.Background(), "m1")
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":"m1","title":"Heat"}`, string(got.Movie))
	require.Len(t, got.CastAndCrew, 1)
	assert.JSONEq(t, `{"name":"Al Pacino","role":"actor"}`, string(got.CastAndCrew[0]))
	assert.Equal(t, 12, got.Reviews.Total)
	require.Len(t, got.Reviews.Items, 1)
	assert.Equal(t, map[string]string{
		"self":          "/composite/movie-details/m1",
		"movie":         "/composite/movies/m1",
		"cast_and_crew": "/composite/movies/m1/people",
		"reviews":       "/composite/reviews?movie_id=m1",
	}, got.Links)

	assert.Equal(t, url.Values{"movie_id": {"m1"}, "limit": {"10"}}, f.query)
}

func TestMovieDetailsMovieMissing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		movie callFunc
	}{
		{name: "not_found", movie: respond(http.StatusNotFound, `{"detail":"Movie not found"}`)},
		{name: "server_error", movie: respond(http.StatusInternalServerError, "")},
		{name: "unreachable", movie: fail(http.StatusBadGateway)},
		{name: "timeout", movie: fail(http.StatusGatewayTimeout)},
		{name: "empty_body", movie: respond(http.StatusOK, "")},
		{name: "null_body", movie: respond(http.StatusOK, "null")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := healthy()
			f.movie = tt.movie

			got, err := newService(f).MovieDetails(context.Background(), "m1")
			assert.Nil(t, got)

			var nf *apperr.NotFoundError
			require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
			assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
			assert.Equal(t, "Movie with id m1 not found", apperr.Detail(err))
		})
	}
}

func TestMovieDetailsMovieMissingWhateverOtherBranchesDo(t *testing.T) {
	t.Parallel()

	f := &fakeBackends{
		movie:   respond(http.StatusNotFound, ""),
		people:  fail(http.StatusBadGateway),
		reviews: fail(http.StatusGatewayTimeout),
	}
	_, err := newService(f).MovieDetails(context.Background(), "m1")
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))
}

func TestMovieDetailsPeopleDegraded(t *testing.T) {
	t.Parallel()

	for name, people := range map[string]callFunc{
		"error_status": respond(http.StatusInternalServerError, `{"detail":"boom"}`),
		"unreachable":  fail(http.StatusBadGateway),
		"not_a_list":   respond(http.StatusOK, `"oops"`),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := healthy()
			f.people = people

			got, err := newService(f).MovieDetails(context.Background(), "m1")
			require.NoError(t, err)
			assert.NotNil(t, got.CastAndCrew)
			assert.Empty(t, got.CastAndCrew)
			assert.Equal(t, 12, got.Reviews.Total)

			out, err := json.Marshal(got)
			require.NoError(t, err)
			assert.Contains(t, string(out), `"cast_and_crew":[]`)
		})
	}
}

func TestMovieDetailsReviewsDegraded(t *testing.T) {
	t.Parallel()

	for name, reviews := range map[string]callFunc{
		"error_status": respond(http.StatusServiceUnavailable, ""),
		"timeout":      fail(http.StatusGatewayTimeout),
		"unparseable":  respond(http.StatusOK, `{"unexpected":true}`),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := healthy()
			f.reviews = reviews

			got, err := newService(f).MovieDetails(context.Background(), "m1")
			require.NoError(t, err)
			assert.NotNil(t, got.Movie)
			assert.Len(t, got.CastAndCrew, 1)

			out, err := json.Marshal(got.Reviews)
			require.NoError(t, err)
			assert.JSONEq(t, `{"total":0,"items":[]}`, string(out))
		})
	}
}

func TestMovieDetailsReviewShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantTotal int
		wantItems int
	}{
		{name: "bare_array", body: `[{"id":"r1"},{"id":"r2"}]`, wantTotal: 2, wantItems: 2},
		{name: "page", body: `{"total":40,"items":[{"id":"r1"}]}`, wantTotal: 40, wantItems: 1},
		{name: "page_without_total", body: `{"items":[{"id":"r1"},{"id":"r2"},{"id":"r3"}]}`, wantTotal: 3, wantItems: 3},
		{name: "empty_page", body: `{"total":0,"items":[]}`, wantTotal: 0, wantItems: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := healthy()
			f.reviews = respond(http.StatusOK, tt.body)

			got, err := newService(f).MovieDetails(context.Background(), "m1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, got.Reviews.Total)
			assert.Len(t, got.Reviews.Items, tt.wantItems)
		})
	}
}

func TestMovieDetailsPeoplePage(t *testing.T) {
	t.Parallel()

	f := healthy()
	f.people = respond(http.StatusOK, `{"items":[{"name":"a"},{"name":"b"}]}`)

	got, err := newService(f).MovieDetails(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, got.CastAndCrew, 2)
}

// All three calls must be in flight at the same time: each one blocks until
// the other two have started.
func TestMovieDetailsBranchesRunConcurrently(t *testing.T) {
	t.Parallel()

	var started sync.WaitGroup
	started.Add(3)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	gate := func(next callFunc) callFunc {
		return func(ctx context.Context) (*model.CallResult, error) {
			started.Done()
			select {
			case <-allStarted:
			case <-time.After(2 * time.Second):
				return nil, errors.New("branches did not overlap")
			}
			return next(ctx)
		}
	}

	h := healthy()
	f := &fakeBackends{movie: gate(h.movie), people: gate(h.people), reviews: gate(h.reviews)}

	got, err := newService(f).MovieDetails(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, got.CastAndCrew, 1)
	assert.Equal(t, 12, got.Reviews.Total)
}

// The merge waits for the slowest branch instead of returning early.
func TestMovieDetailsWaitsForSlowBranch(t *testing.T) {
	t.Parallel()

	f := healthy()
	slow := f.reviews
	f.reviews = func(ctx context.Context) (*model.CallResult, error) {
		time.Sleep(50 * time.Millisecond)
		return slow(ctx)
	}
	f.people = fail(http.StatusBadGateway)

	got, err := newService(f).MovieDetails(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 12, got.Reviews.Total)
}

func TestMovieDetailsIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := newService(healthy())

	first, err := svc.MovieDetails(context.Background(), "m1")
	require.NoError(t, err)
	second, err := svc.MovieDetails(context.Background(), "m1")
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestMovieDetailsBranchPanicIsInternal(t *testing.T) {
	t.Parallel()

	f := healthy()
	f.people = func(context.Context) (*model.CallResult, error) { panic("nil map") }

	got, err := newService(f).MovieDetails(context.Background(), "m1")
	assert.Nil(t, got)
	assert.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(err))
	assert.Equal(t, apperr.InternalMessage, apperr.Detail(err))
}

func TestMovieDetailsRecordsBranchOutcomes(t *testing.T) {
	t.Parallel()

	m := observability.NewMetrics(prometheus.NewRegistry())
	f := healthy()
	f.people = respond(http.StatusInternalServerError, "")
	f.reviews = fail(http.StatusBadGateway)

	_, err := newService(f, WithMetrics(m), WithLogger(observability.NopLogger())).MovieDetails(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BranchOutcomes.WithLabelValues(BranchMovie, OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BranchOutcomes.WithLabelValues(BranchCastAndCrew, OutcomeDegraded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BranchOutcomes.WithLabelValues(BranchReviews, OutcomeFailed)))
}

func TestMovieDetailsSpan(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	f := healthy()
	svc := newService(f, WithTracerProvider(tp))
	_, err := svc.MovieDetails(context.Background(), "m1")
	require.NoError(t, err)

	f.movie = respond(http.StatusNotFound, `{"detail":"nope"}`)
	_, err = svc.MovieDetails(context.Background(), "m1")
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "aggregate movie_details", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestLinksEscapeIDs(t *testing.T) {
	t.Parallel()

	links := Links("a b")
	assert.Equal(t, "/composite/movie-details/a%20b", links["self"])
	assert.Equal(t, "/composite/reviews?movie_id=a+b", links["reviews"])
}

func TestNewPanicsOnNil(t *testing.T) {
	t.Parallel()

	f := healthy()
	assert.Panics(t, func() { New(nil, f) })
	assert.Panics(t, func() { New(f, nil) })
}
