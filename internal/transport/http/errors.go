package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iliamunaev/movie-composite-gateway/internal/apperr"
	"github.com/iliamunaev/movie-composite-gateway/internal/model"
	"github.com/iliamunaev/movie-composite-gateway/internal/observability"
)

// detailInvalidJSON is returned for inbound bodies that are not valid JSON.
const detailInvalidJSON = "invalid JSON body"

// writeError maps err to its status and writes {"detail": ...}.
// Gateway faults are logged with their cause; the client only sees the
// generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger observability.Logger, err error) {
	status := apperr.HTTPStatus(err)
	kind := apperr.Kind(err)

	log := logger.WithContext(r.Context())
	fields := []observability.Field{
		observability.String("kind", kind),
		observability.Int("status", status),
		observability.String("path", r.URL.Path),
		observability.Error(err),
	}
	switch {
	case status >= http.StatusInternalServerError && kind != apperr.KindUpstream:
		log.Error("request failed", fields...)
	case kind == apperr.KindValidation:
		var ve *apperr.ValidationError
		if errors.As(err, &ve) && len(ve.Causes) > 0 {
			fields = append(fields, observability.Any("causes", causeStrings(ve.Causes)))
		}
		log.Info("request rejected", fields...)
	default:
		log.Debug("request failed", fields...)
	}

	writeJSON(w, status, model.ErrorResponse{Detail: apperr.Detail(err)})
}

func causeStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

// writeDetail writes an error response with a gateway-authored detail.
func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, model.ErrorResponse{Detail: detail})
}

// writeJSON writes v as a JSON response with the given status code.
// The Content-Type is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NotFound answers unknown routes with the JSON error shape.
func NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
}

// MethodNotAllowed answers known routes hit with the wrong method.
func MethodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})
}
