package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/deskbook/internal/auth"
	"github.com/wolfeidau/deskbook/internal/cognito"
	httpmiddleware "github.com/wolfeidau/deskbook/internal/http"
	"github.com/wolfeidau/deskbook/internal/models"
	"github.com/wolfeidau/deskbook/internal/store"
)

var (
	errBadRequest      = errors.New("malformed request body")
	errPayloadTooLarge = errors.New("request body too large")
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error  errorBody `json:"error"`
	Errors []string  `json:"errors,omitempty"`
}

// fieldErrors reports every invalid field of a request at once.
type fieldErrors []string

func (e fieldErrors) Error() string {
	return fmt.Sprintf("%d invalid fields", len(e))
}

// classify maps an error onto a status code and machine readable kind.
func classify(err error) (int, string) {
	var fields fieldErrors
	switch {
	case errors.Is(err, auth.ErrMalformed),
		errors.Is(err, auth.ErrUnknownKey),
		errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrBadSignature),
		errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, auth.ErrorKind(err)
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.As(err, &fields), errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, store.ErrInvalidPatch):
		return http.StatusUnprocessableEntity, "invalid_patch"
	case errors.Is(err, store.ErrBatchTooLarge):
		return http.StatusUnprocessableEntity, "batch_too_large"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, cognito.ErrNotAuthorized), errors.Is(err, cognito.ErrChallenge):
		return http.StatusUnauthorized, "sign_in_failed"
	case errors.Is(err, cognito.ErrUserNotConfirmed):
		return http.StatusForbidden, "not_confirmed"
	case errors.Is(err, cognito.ErrUserExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, cognito.ErrInvalidCode), errors.Is(err, cognito.ErrInvalidParameter):
		return http.StatusUnprocessableEntity, "validation"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)

	resp := errorResponse{Error: errorBody{Kind: kind, Message: err.Error()}}
	var fields fieldErrors
	if errors.As(err, &fields) {
		resp.Errors = fields
	}

	event := zerolog.Ctx(r.Context()).Debug()
	if status >= http.StatusInternalServerError {
		event = zerolog.Ctx(r.Context()).Error()
		if status == http.StatusInternalServerError {
			resp.Error.Message = "internal error"
		}
	}
	event.Err(err).
		Int("status", status).
		Str("kind", kind).
		Str("client_ip", httpmiddleware.ClientIPFromContext(r.Context())).
		Msg("request failed")

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON object from the request body. strict rejects
// attributes the target type does not declare.
func decodeJSON(r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return fmt.Errorf("%w: limit is %d bytes", errPayloadTooLarge, maxBytes.Limit)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON object", errBadRequest)
	}
	return nil
}
