package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// FakeChallenge is one challenge the fake retailer raises during sign-in, with the answer it accepts.
type FakeChallenge struct {
	Type   string
	URL    string
	Answer string
}

// RecordedRequest is an authenticated API call received by the fake retailer.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Body          map[string]any
	Authorization string
}

// FakeRetailer is an httptest server speaking the retailer's sign-in, token and API endpoints.
type FakeRetailer struct {
	Server *httptest.Server

	Email          string
	Password       string
	Challenges     []FakeChallenge
	AccessToken    string
	RefreshToken   string
	ExpiresIn      int
	RefreshedToken string
	// Routes overrides API responses, keyed by "METHOD /path".
	Routes map[string]http.HandlerFunc

	mu           sync.Mutex
	sessions     map[string]int
	signinCalls  int
	refreshCalls int
	requests     []RecordedRequest
}

// NewFakeRetailer starts a fake retailer accepting a@b.com / pw and closes it when the test ends.
func NewFakeRetailer(t *testing.T) *FakeRetailer {
	t.Helper()
	f := &FakeRetailer{
		Email:          "a@b.com",
		Password:       "pw",
		AccessToken:    "Atna|access-token-1",
		RefreshToken:   "Atnr|refresh-token",
		ExpiresIn:      3600,
		RefreshedToken: "Atna|access-token-2",
		Routes:         map[string]http.HandlerFunc{},
		sessions:       map[string]int{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the server's base URL, used for both the API and auth hosts.
func (f *FakeRetailer) URL() string { return f.Server.URL }

func (f *FakeRetailer) SigninCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signinCalls
}

func (f *FakeRetailer) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *FakeRetailer) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RecordedRequest(nil), f.requests...)
}

func (f *FakeRetailer) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/signin":
		f.signin(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/signin/challenge":
		f.answer(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/auth/token":
		f.token(w, r)
	default:
		f.api(w, r)
	}
}

func (f *FakeRetailer) signin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed body"})
		return
	}

	f.mu.Lock()
	f.signinCalls++
	f.mu.Unlock()

	if body.Email != f.Email || body.Password != f.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid email or password"})
		return
	}

	f.mu.Lock()
	session := fmt.Sprintf("session-%d", f.signinCalls)
	f.sessions[session] = 0
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, f.step(session, 0))
}

func (f *FakeRetailer) answer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Session string `json:"session"`
		Type    string `json:"type"`
		Answer  string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed body"})
		return
	}

	f.mu.Lock()
	idx, ok := f.sessions[body.Session]
	f.mu.Unlock()
	if !ok || idx >= len(f.Challenges) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "unknown session"})
		return
	}

	want := f.Challenges[idx]
	if body.Type != want.Type || body.Answer != want.Answer {
		writeJSON(w, http.StatusOK, map[string]any{"session": body.Session, "error": "invalid " + want.Type + " answer"})
		return
	}

	f.mu.Lock()
	f.sessions[body.Session] = idx + 1
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, f.step(body.Session, idx+1))
}

func (f *FakeRetailer) step(session string, idx int) map[string]any {
	if idx < len(f.Challenges) {
		c := f.Challenges[idx]
		challenge := map[string]any{"type": c.Type}
		if c.URL != "" {
			challenge["url"] = c.URL
		}
		return map[string]any{"session": session, "challenge": challenge}
	}

	return map[string]any{
		"session": session,
		"registration": map[string]any{
			"access_token":  f.AccessToken,
			"refresh_token": f.RefreshToken,
			"expires_in":    f.ExpiresIn,
			"device_info": map[string]any{
				"device_name":          "Test's abx",
				"device_serial_number": "",
				"device_type":          "",
			},
			"customer_info": map[string]any{"user_id": "amzn1.account.TEST", "name": "Test User"},
		},
	}
}

func (f *FakeRetailer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()

	if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != f.RefreshToken {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "refresh token rejected"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": f.RefreshedToken,
		"token_type":   "bearer",
		"expires_in":   3600,
	})
}

func (f *FakeRetailer) api(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	token := strings.TrimPrefix(auth, "Bearer ")
	if token != f.AccessToken && token != f.RefreshedToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Unauthorized"})
		return
	}

	rec := RecordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Authorization: auth}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		json.Unmarshal(data, &rec.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	route := f.Routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if route != nil {
		route(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"method": rec.Method,
		"path":   rec.Path,
		"query":  r.URL.RawQuery,
		"body":   rec.Body,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
