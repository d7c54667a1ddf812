package retailer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/abx/internal/shared"
)

// APIError is a non-2xx response from the retailer.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// Unwrap lets callers match [shared.ErrUpstream] with errors.Is.
func (e *APIError) Unwrap() error {
	return shared.ErrUpstream
}

// newAPIError extracts the most specific message the retailer put in body.
func newAPIError(status int, body []byte) *APIError {
	msg := http.StatusText(status)

	var payload struct {
		Message     string `json:"message"`
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.Description != "":
			msg = payload.Description
		case payload.Error != "":
			msg = payload.Error
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		msg = text
	}

	return &APIError{StatusCode: status, Message: msg}
}
