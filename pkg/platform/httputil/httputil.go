// Package httputil is the shared JSON plumbing for HTTP handlers: response
// writing, error envelopes, and request decoding with validation.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "carebridge/pkg/domain-errors"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	State    string `json:"state,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError maps a domain error to its HTTP status and writes the standard
// error envelope. Internal errors hide their message so infrastructure
// details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := errorBody{Error: string(code)}

	var de *dErrors.Error
	if errors.As(err, &de) && code != dErrors.CodeInternal {
		body.Message = de.Message
		body.EntityID = de.EntityID
		body.State = de.State
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// Validatable lets request types run their own field checks after decoding.
type Validatable interface {
	Validate() error
}

// Decode parses the JSON request body into T, running T's Validate when it
// has one. On failure the error response has already been written and ok is
// false.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return req, false
	}
	if v, ok := any(req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			WriteError(w, err)
			return req, false
		}
	}
	return req, true
}
