// Package api exposes the governance pipeline over HTTP. Error responses
// follow RFC 7807 (Problem Details for HTTP APIs).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Storemind-AI/trustcore/pkg/contracts"
)

// ProblemDetail implements RFC 7807. All API error responses use this
// format.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://trustcore.storemind.ai/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 error response.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteConflict writes a 409 error response.
func WriteConflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, "Conflict", detail)
}

// WriteInternal writes a 500 error response. The err parameter is logged
// but never exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error",
		"An unexpected error occurred. Please try again later.")
}

// writeDomainError maps pipeline errors to their HTTP form. The
// approval-required signal is not handled here: handlers surface it as a
// 202 Accepted payload, not a problem document.
func writeDomainError(w http.ResponseWriter, err error) {
	var stateErr *contracts.InvalidStateError
	var cmdErr *contracts.CommandExecutionError
	switch {
	case errors.Is(err, contracts.ErrPermissionDenied):
		WriteForbidden(w, err.Error())
	case errors.Is(err, contracts.ErrNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, contracts.ErrSignatureInvalid):
		WriteUnauthorized(w, "signature verification failed")
	case errors.Is(err, contracts.ErrNonceReplayed):
		WriteConflict(w, "nonce already used")
	case errors.Is(err, contracts.ErrOutcomeRecorded):
		WriteConflict(w, err.Error())
	case errors.As(err, &stateErr):
		WriteConflict(w, stateErr.Error())
	case errors.As(err, &cmdErr):
		WriteError(w, http.StatusBadGateway, "Command Failed", cmdErr.Error())
	default:
		WriteInternal(w, err)
	}
}
