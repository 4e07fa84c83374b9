// Package httptransport implements the gateway HTTP surface under
// /composite: single-hop relays to the backends, validated review creation
// and the movie-details composite read.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
	"github.com/iliamunaev/movie-composite-gateway/internal/service/upstream"
	"github.com/iliamunaev/movie-composite-gateway/internal/validate"
)

// Prefix is the path prefix of every gateway route.
const Prefix = "/composite"

// maxBodyBytes bounds inbound JSON bodies.
const maxBodyBytes = 1 << 20

// relayedHeaders are copied from the inbound request to backend calls.
var relayedHeaders = []string{"Authorization", "If-None-Match"}

// copiedHeaders are copied from backend responses to the client.
var copiedHeaders = []string{"ETag", "Location"}

type (
	call       func(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error)
	idCall     func(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	bodyCall   func(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	idBodyCall func(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	queryCall  func(ctx context.Context, query url.Values, opts ...upstream.CallOption) (*model.CallResult, error)
)

// Users is the Users backend client.
type Users interface {
	Login(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	Create(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	Get(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	Update(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	Delete(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	GetStatus(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	UpdateStatus(ctx context.Context, id, status, lockedUntil string, opts ...upstream.CallOption) (*model.CallResult, error)
}

// Catalog is the Catalog backend client.
type Catalog interface {
	BaseURL() string
	List(ctx context.Context, query url.Values, opts ...upstream.CallOption) (*model.CallResult, error)
	Create(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	Get(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	Update(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	Delete(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	People(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	GenerateShareCard(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	ShareCardJob(ctx context.Context, id, jobID string, opts ...upstream.CallOption) (*model.CallResult, error)
	ListPeople(ctx context.Context, query url.Values, opts ...upstream.CallOption) (*model.CallResult, error)
	CreatePerson(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	GetPerson(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	UpdatePerson(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	DeletePerson(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	PersonMovies(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
}

// Reviews is the Reviews backend client.
type Reviews interface {
	List(ctx context.Context, query url.Values, opts ...upstream.CallOption) (*model.CallResult, error)
	Create(ctx context.Context, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	Get(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	Update(ctx context.Context, id string, body json.RawMessage, opts ...upstream.CallOption) (*model.CallResult, error)
	Delete(ctx context.Context, id string, opts ...upstream.CallOption) (*model.CallResult, error)
	Health(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error)
}

// Validator checks review references.
type Validator interface {
	Check(ctx context.Context, refs validate.Refs, opts ...upstream.CallOption) error
}

// Aggregator builds movie-details views.
type Aggregator interface {
	MovieDetails(ctx context.Context, movieID string, opts ...upstream.CallOption) (*model.MovieDetails, error)
}

// Deps are the collaborators of a Handler. All but Logger are required.
type Deps struct {
	Users      Users
	Catalog    Catalog
	Reviews    Reviews
	Validator  Validator
	Aggregator Aggregator
	Logger     observability.Logger
}

// Handler serves the gateway routes.
type Handler struct {
	users      Users
	catalog    Catalog
	reviews    Reviews
	validator  Validator
	aggregator Aggregator
	logger     observability.Logger
}

// New returns a Handler. It panics if a required dependency is nil.
func New(d Deps) *Handler {
	switch {
	case d.Users == nil:
		panic("httptransport.New: nil users client")
	case d.Catalog == nil:
		panic("httptransport.New: nil catalog client")
	case d.Reviews == nil:
		panic("httptransport.New: nil reviews client")
	case d.Validator == nil:
		panic("httptransport.New: nil validator")
	case d.Aggregator == nil:
		panic("httptransport.New: nil aggregator")
	}
	if d.Logger == nil {
		d.Logger = observability.NopLogger()
	}
	return &Handler{
		users:      d.Users,
		catalog:    d.Catalog,
		reviews:    d.Reviews,
		validator:  d.Validator,
		aggregator: d.Aggregator,
		logger:     d.Logger,
	}
}

// Register adds every gateway route to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/", h.info).Methods(http.MethodGet)
	r.HandleFunc(Prefix, h.info).Methods(http.MethodGet)

	s := r.PathPrefix(Prefix).Subrouter()
	s.HandleFunc("/", h.info).Methods(http.MethodGet)
	s.HandleFunc("/health", h.health).Methods(http.MethodGet)

	s.HandleFunc("/sessions", h.withBody(h.users.Login)).Methods(http.MethodPost)
	s.HandleFunc("/users", h.withBody(h.users.Create)).Methods(http.MethodPost)
	s.HandleFunc("/users/{id}", h.withID(h.users.Get)).Methods(http.MethodGet)
	s.HandleFunc("/users/{id}", h.withIDBody(h.users.Update)).Methods(http.MethodPatch)
	s.HandleFunc("/users/{id}", h.withID(h.users.Delete)).Methods(http.MethodDelete)
	s.HandleFunc("/users/{id}/status", h.withID(h.users.GetStatus)).Methods(http.MethodGet)
	s.HandleFunc("/users/{id}/status", h.updateUserStatus).Methods(http.MethodPatch)

	s.HandleFunc("/movies", h.withQuery(h.catalog.List)).Methods(http.MethodGet)
	s.HandleFunc("/movies", h.withBody(h.catalog.Create)).Methods(http.MethodPost)
	s.HandleFunc("/movies/{id}", h.withID(h.catalog.Get)).Methods(http.MethodGet)
	s.HandleFunc("/movies/{id}", h.withIDBody(h.catalog.Update)).Methods(http.MethodPut)
	s.HandleFunc("/movies/{id}", h.withID(h.catalog.Delete)).Methods(http.MethodDelete)
	s.HandleFunc("/movies/{id}/people", h.withID(h.catalog.People)).Methods(http.MethodGet)
	s.HandleFunc("/movies/{id}/generate-share-card", h.generateShareCard).Methods(http.MethodPost)
	s.HandleFunc("/movies/{id}/share-card-jobs/{job_id}", h.shareCardJob).Methods(http.MethodGet)

	s.HandleFunc("/people", h.withQuery(h.catalog.ListPeople)).Methods(http.MethodGet)
	s.HandleFunc("/people", h.withBody(h.catalog.CreatePerson)).Methods(http.MethodPost)
	s.HandleFunc("/people/{id}", h.withID(h.catalog.GetPerson)).Methods(http.MethodGet)
	s.HandleFunc("/people/{id}", h.withIDBody(h.catalog.UpdatePerson)).Methods(http.MethodPut)
	s.HandleFunc("/people/{id}", h.withID(h.catalog.DeletePerson)).Methods(http.MethodDelete)
	s.HandleFunc("/people/{id}/movies", h.withID(h.catalog.PersonMovies)).Methods(http.MethodGet)

	s.HandleFunc("/reviews", h.withQuery(h.reviews.List)).Methods(http.MethodGet)
	s.HandleFunc("/reviews", h.createReview).Methods(http.MethodPost)
	s.HandleFunc("/reviews/{id}", h.withID(h.reviews.Get)).Methods(http.MethodGet)
	s.HandleFunc("/reviews/{id}", h.withIDBody(h.reviews.Update)).Methods(http.MethodPut)
	s.HandleFunc("/reviews/{id}", h.withID(h.reviews.Delete)).Methods(http.MethodDelete)

	s.HandleFunc("/movie-details/{id}", h.movieDetails).Methods(http.MethodGet)
}

func (h *Handler) withID(fn idCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		h.relay(w, r, func(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error) {
			return fn(ctx, id, opts...)
		})
	}
}

func (h *Handler) withQuery(fn queryCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		h.relay(w, r, func(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error) {
			return fn(ctx, q, opts...)
		})
	}
}

func (h *Handler) withBody(fn bodyCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}
		h.relay(w, r, func(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error) {
			return fn(ctx, body, opts...)
		})
	}
}

func (h *Handler) withIDBody(fn idBodyCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		body, ok := h.readBody(w, r)
		if !ok {
			return
		}
		h.relay(w, r, func(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error) {
			return fn(ctx, id, body, opts...)
		})
	}
}

// relay performs one strict backend call and writes its result.
func (h *Handler) relay(w http.ResponseWriter, r *http.Request, fn call) {
	res, err := fn(r.Context(), upstream.WithHeader(relayHeaders(r)))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeResult(w, res)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.relay(w, r, h.reviews.Health)
}

func (h *Handler) updateUserStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()
	status := q.Get("status")
	if status == "" {
		writeDetail(w, http.StatusBadRequest, "status query parameter is required")
		return
	}
	lockedUntil := q.Get("locked_until")
	h.relay(w, r, func(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error) {
		return h.users.UpdateStatus(ctx, id, status, lockedUntil, opts...)
	})
}

func (h *Handler) generateShareCard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, err := h.catalog.GenerateShareCard(r.Context(), id, upstream.WithHeader(relayHeaders(r)))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeResult(w, absolutize(h.catalog.BaseURL(), res))
}

func (h *Handler) shareCardJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := h.catalog.ShareCardJob(r.Context(), vars["id"], vars["job_id"], upstream.WithHeader(relayHeaders(r)))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeResult(w, absolutize(h.catalog.BaseURL(), res))
}

// createReview checks the review's movie and user before forwarding it.
// Reviews is not called when the check fails.
func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	refs, err := validate.RefsFromBody(body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, detailInvalidJSON)
		return
	}
	if err := h.validator.Check(r.Context(), refs, upstream.WithHeader(authHeader(r))); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.relay(w, r, func(ctx context.Context, opts ...upstream.CallOption) (*model.CallResult, error) {
		return h.reviews.Create(ctx, body, opts...)
	})
}

func (h *Handler) movieDetails(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	details, err := h.aggregator.MovieDetails(r.Context(), id, upstream.WithHeader(authHeader(r)))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *Handler) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, serviceInfo())
}

// readBody reads a JSON request body. On failure it writes the error
// response and returns false.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeDetail(w, http.StatusBadRequest, detailInvalidJSON)
		return nil, false
	}
	if !json.Valid(data) {
		writeDetail(w, http.StatusBadRequest, detailInvalidJSON)
		return nil, false
	}
	return data, true
}

// writeResult relays a backend response: status, selected headers and the
// body unchanged. A 304 has no body.
func writeResult(w http.ResponseWriter, res *model.CallResult) {
	for _, k := range copiedHeaders {
		if v := res.Header.Get(k); v != "" {
			w.Header().Set(k, v)
		}
	}
	if res.StatusCode == http.StatusNotModified || !res.HasBody() {
		w.WriteHeader(res.StatusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

func relayHeaders(r *http.Request) http.Header {
	out := http.Header{}
	for _, k := range relayedHeaders {
		if v := r.Header.Get(k); v != "" {
			out.Set(k, v)
		}
	}
	return out
}

func authHeader(r *http.Request) http.Header {
	out := http.Header{}
	if v := r.Header.Get("Authorization"); v != "" {
		out.Set("Authorization", v)
	}
	return out
}
