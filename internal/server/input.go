package server

import (
	"net/http"

	"github.com/charmbracelet/log"
)

// InputRequest carries the answer to the pending challenge. An empty answer is valid for approvals.
type InputRequest struct {
	Answer string `json:"answer"`
}

// InputHandler delivers challenge answers to the sign-in waiting on them.
// Implements the Handler interface for registration with a Router.
type InputHandler struct {
	sessions Sessions
	logger   *log.Logger
}

// NewInputHandler creates an [InputHandler] for sessions.
func NewInputHandler(sessions Sessions, logger *log.Logger) *InputHandler {
	return &InputHandler{sessions: sessions, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *InputHandler) Routes() []string {
	return []string{"/input"}
}

// ServeHTTP echoes the answer back after handing it to the pending challenge.
//
// An answer that arrives while nothing is pending is dropped with a warning; it is still echoed.
func (h *InputHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req InputRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, err)
		return
	}

	if !h.sessions.Answer(req.Answer) {
		h.logger.Warn("answer received with no pending challenge")
	}

	writeJSON(w, http.StatusOK, req)
}
