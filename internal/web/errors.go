package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"sinulogmap/internal/geo"
	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/model"
	"sinulogmap/internal/session"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		appLog.Error("failed to encode JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, session.ErrUnknownDate),
		errors.Is(err, session.ErrUnknownEvent),
		errors.Is(err, errUnknownVenue):
		return http.StatusNotFound
	case errors.Is(err, geo.ErrInvalidPosition),
		errors.Is(err, model.ErrInvalidRef),
		errors.Is(err, errBadRequest),
		errors.As(err, &verrs):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

var (
	errBadRequest   = errors.New("bad request")
	errUnknownVenue = errors.New("unknown venue")
)

// decodeJSON reads a bounded JSON body into dst and validates it. An empty
// body decodes as the zero value.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return s.validate.Struct(dst)
}
