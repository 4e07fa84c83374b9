// Package model defines the payloads exchanged with backends and clients.
// It keeps transport-level types in one place for reuse.
package model

import (
	"encoding/json"
	"net/http"
)

// CallResult is the envelope returned for every completed backend call.
type CallResult struct {
	StatusCode int
	Header     http.Header
	// Body is nil when the backend sent no payload. A non-JSON payload is
	// carried as a JSON string.
	Body json.RawMessage
}

// HasBody reports whether the backend sent a payload.
func (r *CallResult) HasBody() bool {
	return r != nil && len(r.Body) > 0
}

// OK reports whether the backend answered with a 2xx status.
func (r *CallResult) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// MovieDetails is the composite movie read.
type MovieDetails struct {
	Movie       json.RawMessage   `json:"movie"`
	CastAndCrew []json.RawMessage `json:"cast_and_crew"`
	Reviews     ReviewPage        `json:"reviews"`
	Links       map[string]string `json:"links"`
}

// ReviewPage is the reviews section of MovieDetails.
type ReviewPage struct {
	Total int               `json:"total"`
	Items []json.RawMessage `json:"items"`
}

// EmptyReviewPage is the value substituted when the reviews branch fails.
func EmptyReviewPage() ReviewPage {
	return ReviewPage{Total: 0, Items: []json.RawMessage{}}
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail any `json:"detail"`
}

// ServiceInfo describes the gateway on its root route.
type ServiceInfo struct {
	Message  string              `json:"message"`
	Services map[string]string   `json:"services"`
	Routes   map[string][]string `json:"routes"`
}
