// Package httputil holds the JSON response helpers shared by every
// handler package.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "anchorid/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the wire form of a failed request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteError maps a domain error onto its HTTP status and JSON body.
// Internal errors keep their description server-side; everything else is
// safe to echo because domain error messages carry no key material.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Description = err.Error()
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), resp)
}
