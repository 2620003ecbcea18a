// Package httpapi holds the JSON response envelope shared by the public and
// admin routers.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"relaymail/internal/domain"
	"relaymail/internal/log"
)

// Meta carries pagination for list responses.
type Meta struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset"`
}

type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Envelope is the standard response wrapper.
type Envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Meta  *Meta       `json:"meta,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

const (
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeForbidden      = "forbidden"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeRateLimited    = "rate_limited"
	CodeProvider       = "provider_error"
	CodeUnavailable    = "unavailable"
	CodeInternal       = "internal_error"
)

func WriteJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func WriteOK(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	WriteJSON(w, status, Envelope{OK: true, Data: data, Meta: meta})
}

func WriteError(w http.ResponseWriter, status int, code, message string, retryable bool) {
	WriteJSON(w, status, Envelope{Error: &Error{Code: code, Message: message, Retryable: retryable}})
}

// WriteDomainError maps the relay's error taxonomy onto a status code.
// Anything unrecognized is logged and reported as an internal error.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), false)
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error(), false)
	case errors.Is(err, domain.ErrUnauthorized):
		WriteError(w, http.StatusForbidden, CodeForbidden, err.Error(), false)
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		WriteError(w, http.StatusConflict, CodeConflict, err.Error(), false)
	case errors.Is(err, domain.ErrProvider):
		WriteError(w, http.StatusBadGateway, CodeProvider, err.Error(), true)
	default:
		log.Errorf("httpapi: unhandled error: %v", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error", true)
	}
}
