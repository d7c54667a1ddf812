package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/abx/internal/shared"
)

const maxBodyBytes = 1 << 20

// Response is the envelope every endpoint except /input and /health replies with.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Auth    string `json:"auth,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ProxyResponse is the success envelope of /get and /put. Data is always present, null for an empty upstream body.
type ProxyResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, Response{Success: false, Error: msg})
}

// writeFailure reports err with the status its kind calls for.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		writeError(w, http.StatusOK, "Not authenticated")
	case errors.Is(err, shared.ErrAuthFailed), errors.Is(err, shared.ErrUpstream):
		writeError(w, http.StatusOK, err.Error())
	case errors.Is(err, shared.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusOK, err.Error())
	}
}

// decodeBody reads a JSON object from the request into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)

	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", shared.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: malformed JSON body: %v", shared.ErrInvalidRequest, err)
	}
	return nil
}
