// Package aggregate builds the composite movie-details view from the Catalog
// and Reviews backends.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/iliamunaev/movie-composite-gateway/internal/apperr"
	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
)

// ReviewsPageSize is the number of reviews embedded in a movie-details view.
const ReviewsPageSize = 10

// Branch names, in merge order.
const (
	BranchMovie       = "movie"
	BranchCastAndCrew = "cast_and_crew"
	BranchReviews     = "reviews"
)

// Branch outcomes recorded in metrics.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Catalog is the part of the Catalog client the aggregator reads from.
type Catalog interface {
	Get(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	People(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
}

// Reviews is the part of the Reviews client the aggregator reads from.
type Reviews interface {
	List(ctx context.Context, query url.Values, opts ...upstream.CallOption) (*model.CallResult, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for branch outcomes.
func WithLogger(l observability.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records branch outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracerProvider sets the provider for the fan-out span.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = observability.Tracer(tp) }
}

// Service assembles movie-details views.
type Service struct {
	catalog Catalog
	reviews Reviews
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// New creates a Service. It panics if a client is nil.
func New(catalog Catalog, reviews Reviews, opts ...Option) *Service {
	if catalog == nil {
		panic("aggregate.New: nil catalog client")
	}
	if reviews == nil {
		panic("aggregate.New: nil reviews client")
	}
	s := &Service{
		catalog: catalog,
		reviews: reviews,
		logger:  observability.NopLogger(),
		tracer:  observability.Tracer(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// branch is the captured outcome of one fan-out call.
type branch struct {
	result   *model.CallResult
	err      error
	duration time.Duration
}

// MovieDetails fetches the movie, its cast and crew, and the first page of
// its reviews concurrently, waits for all three, and merges them.
//
// The movie is mandatory: if it cannot be fetched the result is an
// *apperr.NotFoundError. Cast and crew and reviews are best effort and fall
// back to empty values. opts are applied to every backend call.
func (s *Service) MovieDetails(ctx context.Context, movieID string, opts ...upstream.CallOption) (details *model.MovieDetails, err error) {
	ctx, span := s.tracer.Start(ctx, "aggregate movie_details",
		trace.WithAttributes(attribute.String("movie.id", movieID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "movie details failed")
		}
		span.End()
	}()

	callOpts := append(append([]upstream.CallOption(nil), opts...), upstream.Tolerant())

	var movie, people, reviews branch

	// Branches never return an error so that Wait is a plain barrier.
	var g errgroup.Group
	g.Go(record(&movie, func() (*model.CallResult, error) {
		return s.catalog.Get(ctx, movieID, callOpts...)
	}))
	g.Go(record(&people, func() (*model.CallResult, error) {
		return s.catalog.People(ctx, movieID, callOpts...)
	}))
	g.Go(record(&reviews, func() (*model.CallResult, error) {
		q := url.Values{
			"movie_id": {movieID},
			"limit":    {fmt.Sprint(ReviewsPageSize)},
		}
		return s.reviews.List(ctx, q, callOpts...)
	}))
	_ = g.Wait()

	defer func() {
		if r := recover(); r != nil {
			details = nil
			err = &apperr.InternalError{Op: "merge movie details", Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.merge(ctx, movieID, movie, people, reviews)
}

// record runs fn and stores its outcome in dst. A panic in fn is stored as
// an error.
func record(dst *branch, fn func() (*model.CallResult, error)) func() error {
	return func() error {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				dst.result = nil
				dst.err = &apperr.InternalError{Op: "movie details branch", Cause: fmt.Errorf("panic: %v", r)}
			}
			dst.duration = time.Since(start)
		}()
		dst.result, dst.err = fn()
		return nil
	}
}

func (s *Service) merge(ctx context.Context, movieID string, movie, people, reviews branch) (*model.MovieDetails, error) {
	// A fault inside the gateway is not a degraded backend.
	for _, b := range []branch{movie, people, reviews} {
		var ie *apperr.InternalError
		if errors.As(b.err, &ie) {
			return nil, ie
		}
	}

	movieBody, movieOutcome := primary(movie)
	s.observe(ctx, BranchMovie, movieOutcome, movie)

	cast, castOutcome := castAndCrew(people)
	s.observe(ctx, BranchCastAndCrew, castOutcome, people)

	page, reviewsOutcome := reviewPage(reviews)
	s.observe(ctx, BranchReviews, reviewsOutcome, reviews)

	if movieOutcome != OutcomeOK {
		return nil, &apperr.NotFoundError{Resource: "Movie", ID: movieID}
	}

	return &model.MovieDetails{
		Movie:       movieBody,
		CastAndCrew: cast,
		Reviews:     page,
		Links:       Links(movieID),
	}, nil
}

// Links returns the navigation links of a movie-details view.
func Links(movieID string) map[string]string {
	id := url.PathEscape(movieID)
	return map[string]string{
		"self":          "/composite/movie-details/" + id,
		"movie":         "/composite/movies/" + id,
		"cast_and_crew": "/composite/movies/" + id + "/people",
		"reviews":       "/composite/reviews?" + url.Values{"movie_id": {movieID}}.Encode(),
	}
}

func (s *Service) observe(ctx context.Context, name, outcome string, b branch) {
	s.metrics.CountBranch(name, outcome)

	fields := []observability.Field{
		observability.String("branch", name),
		observability.String("outcome", outcome),
		observability.Duration("duration", b.duration),
	}
	if b.result != nil {
		fields = append(fields, observability.Int("status", b.result.StatusCode))
	}
	if b.err != nil {
		fields = append(fields, observability.Error(b.err))
	}
	s.logger.WithContext(ctx).Debug("movie details branch", fields...)
}

// primary returns the movie body when the call succeeded with a non-null
// payload.
func primary(b branch) (json.RawMessage, string) {
	if b.err != nil {
		return nil, OutcomeFailed
	}
	if !b.result.OK() || !b.result.HasBody() {
		return nil, OutcomeDegraded
	}
	if gjson.ParseBytes(b.result.Body).Type == gjson.Null {
		return nil, OutcomeDegraded
	}
	return b.result.Body, OutcomeOK
}

// castAndCrew accepts a bare array or an object with an items array.
func castAndCrew(b branch) ([]json.RawMessage, string) {
	if b.err != nil {
		return []json.RawMessage{}, OutcomeFailed
	}
	if !b.result.OK() || !b.result.HasBody() {
		return []json.RawMessage{}, OutcomeDegraded
	}
	doc := gjson.ParseBytes(b.result.Body)
	if doc.IsObject() {
		doc = doc.Get("items")
	}
	if !doc.IsArray() {
		return []json.RawMessage{}, OutcomeDegraded
	}
	return rawItems(doc), OutcomeOK
}

// reviewPage accepts {"total": N, "items": [...]} or a bare array.
func reviewPage(b branch) (model.ReviewPage, string) {
	if b.err != nil {
		return model.EmptyReviewPage(), OutcomeFailed
	}
	if !b.result.OK() || !b.result.HasBody() {
		return model.EmptyReviewPage(), OutcomeDegraded
	}

	doc := gjson.ParseBytes(b.result.Body)
	switch {
	case doc.IsArray():
		items := rawItems(doc)
		return model.ReviewPage{Total: len(items), Items: items}, OutcomeOK
	case doc.IsObject() && doc.Get("items").IsArray():
		items := rawItems(doc.Get("items"))
		total := len(items)
		if t := doc.Get("total"); t.Type == gjson.Number {
			total = int(t.Int())
		}
		return model.ReviewPage{Total: total, Items: items}, OutcomeOK
	default:
		return model.EmptyReviewPage(), OutcomeDegraded
	}
}

func rawItems(arr gjson.Result) []json.RawMessage {
	elems := arr.Array()
	out := make([]json.RawMessage, 0, len(elems))
	for _, e := range elems {
		out = append(out, json.RawMessage(e.Raw))
	}
	return out
}
