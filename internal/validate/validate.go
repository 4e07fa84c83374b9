// Package validate checks that the movie and user a write refers to exist
// before the write is forwarded.
package validate

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/iliamunaev/movie-composite-gateway/internal/apperr"
	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
)

// Message is the top-level message of every validation failure.
const Message = "Validation failed"

// MovieChecker reports whether a movie exists.
type MovieChecker interface {
	MovieExists(ctx context.Context, id string, opts ...upstream.CallOption) (bool, error)
}

// UserChecker reports whether a user exists.
type UserChecker interface {
	Exists(ctx context.Context, id string, opts ...upstream.CallOption) (bool, error)
}

// Refs are the references carried by a review. An empty ID is not checked.
type Refs struct {
	MovieID string
	UserID  string
}

// RefsFromBody extracts movie_id and user_id from a JSON object. String and
// number values are accepted; null, missing and other types are absent.
func RefsFromBody(raw []byte) (Refs, error) {
	if !gjson.ValidBytes(raw) {
		return Refs{}, errors.New("invalid JSON body")
	}
	return Refs{
		MovieID: refString(gjson.GetBytes(raw, "movie_id")),
		UserID:  refString(gjson.GetBytes(raw, "user_id")),
	}, nil
}

func refString(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used to report failed checks.
func WithLogger(l observability.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithMetrics records every check.
func WithMetrics(m *observability.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// Validator runs the existence checks for a review.
type Validator struct {
	movies  MovieChecker
	users   UserChecker
	logger  observability.Logger
	metrics *observability.Metrics
}

// New creates a Validator. It panics if a checker is nil.
func New(movies MovieChecker, users UserChecker, opts ...Option) *Validator {
	if movies == nil {
		panic("validate.New: nil movie checker")
	}
	if users == nil {
		panic("validate.New: nil user checker")
	}
	v := &Validator{
		movies: movies,
		users:  users,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type checkResult struct {
	failed bool
	cause  error
}

// Check runs the movie and user checks concurrently. It returns nil when
// every present reference exists and an *apperr.ValidationError otherwise.
// The movie message always precedes the user message.
//
// A check fails unless the backend answers 200, so an unreachable backend
// reads the same as a missing entity. The underlying error is kept in
// ValidationError.Causes.
func (v *Validator) Check(ctx context.Context, refs Refs, opts ...upstream.CallOption) error {
	var movie, user checkResult

	var g errgroup.Group
	if refs.MovieID != "" {
		g.Go(func() error {
			movie = v.check(ctx, "movie", refs.MovieID, v.movies.MovieExists, opts)
			return nil
		})
	}
	if refs.UserID != "" {
		g.Go(func() error {
			user = v.check(ctx, "user", refs.UserID, v.users.Exists, opts)
			return nil
		})
	}
	_ = g.Wait()

	var (
		msgs   []string
		causes []error
	)
	if movie.failed {
		msgs = append(msgs, fmt.Sprintf("Movie with id %s does not exist", refs.MovieID))
		causes = append(causes, movie.cause)
	}
	if user.failed {
		msgs = append(msgs, fmt.Sprintf("User with id %s does not exist", refs.UserID))
		causes = append(causes, user.cause)
	}
	if len(msgs) == 0 {
		return nil
	}
	return apperr.NewValidationError(Message, msgs, causes)
}

type existsFunc func(ctx context.Context, id string, opts ...upstream.CallOption) (bool, error)

func (v *Validator) check(ctx context.Context, entity, id string, exists existsFunc, opts []upstream.CallOption) checkResult {
	ok, err := exists(ctx, id, opts...)
	switch {
	case err != nil:
		v.metrics.CountCheck(entity, "error")
		v.logger.WithContext(ctx).Warn("existence check failed",
			observability.String("entity", entity),
			observability.String("id", id),
			observability.Error(err),
		)
		return checkResult{failed: true, cause: err}
	case !ok:
		v.metrics.CountCheck(entity, "missing")
		return checkResult{failed: true, cause: &apperr.NotFoundError{Resource: entity, ID: id}}
	default:
		v.metrics.CountCheck(entity, "found")
		return checkResult{}
	}
}
