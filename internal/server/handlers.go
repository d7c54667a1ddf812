package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/abx/internal/session"
	"github.com/desertthunder/abx/internal/shared"
)

// ProxyRequest is the body of /put and /post.
type ProxyRequest struct {
	URL    string         `json:"url"`
	Params map[string]any `json:"params"`
}

// API serves authentication and the pass-through endpoints.
type API struct {
	sessions Sessions
	logger   *log.Logger
}

// NewAPI creates the handlers for sessions.
func NewAPI(sessions Sessions, logger *log.Logger) *API {
	return &API{sessions: sessions, logger: logger}
}

// Auth handles POST /auth.
//
// The request blocks for as long as the sign-in waits on challenges.
func (a *API) Auth(w http.ResponseWriter, r *http.Request) {
	var creds session.Credentials
	if err := decodeBody(w, r, &creds); err != nil {
		writeFailure(w, err)
		return
	}
	if err := creds.Validate(); err != nil {
		writeFailure(w, err)
		return
	}

	desc, err := a.sessions.Authenticate(r.Context(), creds)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Response{Success: true, Auth: desc.String()})
}

// Get handles GET /get?url=...&params=<JSON object>.
func (a *API) Get(w http.ResponseWriter, r *http.Request) {
	if !a.authenticated(w) {
		return
	}
	query := r.URL.Query()

	target := strings.TrimSpace(query.Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	params := map[string]any{}
	if raw := query.Get("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			writeFailure(w, fmt.Errorf("%w: params must be a JSON object: %v", shared.ErrInvalidRequest, err))
			return
		}
	}

	data, err := a.sessions.Forward(r.Context(), http.MethodGet, target, params)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ProxyResponse{Success: true, Data: data})
}

// Put handles PUT /put.
func (a *API) Put(w http.ResponseWriter, r *http.Request) {
	data, ok := a.forwardBody(w, r, http.MethodPut)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ProxyResponse{Success: true, Data: data})
}

// Post handles POST /post. The upstream response is not relayed.
func (a *API) Post(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.forwardBody(w, r, http.MethodPost); !ok {
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// forwardBody decodes a [ProxyRequest] and relays it, writing the failure response itself.
func (a *API) forwardBody(w http.ResponseWriter, r *http.Request, method string) (any, bool) {
	if !a.authenticated(w) {
		return nil, false
	}
	var req ProxyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeFailure(w, err)
		return nil, false
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return nil, false
	}

	data, err := a.sessions.Forward(r.Context(), method, req.URL, req.Params)
	if err != nil {
		writeFailure(w, err)
		return nil, false
	}
	return data, true
}

// authenticated writes NotAuthenticated when no session is active. Proxy calls check this before reading the request.
func (a *API) authenticated(w http.ResponseWriter) bool {
	if a.sessions.Status().Authenticated {
		return true
	}
	writeFailure(w, shared.ErrNotAuthenticated)
	return false
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string         `json:"status"`
	Authenticated bool           `json:"authenticated"`
	Source        session.Source `json:"source,omitempty"`
	Pending       string         `json:"pending,omitempty"`
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	st := a.sessions.Status()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Authenticated: st.Authenticated,
		Source:        st.Source,
		Pending:       st.Pending,
	})
}
