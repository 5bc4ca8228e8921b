// Package httputil maps domain errors to JSON responses so handlers stay thin.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "marquee/pkg/domain-errors"
)

// ErrorResponse is the error body shape for every failed request. Kind is the
// machine-readable error code; Error stays human-readable.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error code to an HTTP status and writes the error
// body. Internal errors get a generic message so causes never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	msg := err.Error()
	var de *dErrors.Error
	if errors.As(err, &de) {
		msg = de.Message()
	}
	if code == dErrors.CodeInternal {
		msg = "internal error"
	}

	WriteJSON(w, statusFor(code), ErrorResponse{Error: msg, Kind: string(code)})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeKeyNotFound, dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeIdentityMismatch:
		return http.StatusForbidden
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case dErrors.CodeAggregation, dErrors.CodeDispatch:
		return http.StatusBadGateway
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
