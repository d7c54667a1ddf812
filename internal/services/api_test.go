package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/abx/internal/server"
	"github.com/desertthunder/abx/internal/session"
	"github.com/desertthunder/abx/internal/shared"
	tu "github.com/desertthunder/abx/internal/testing"
)

type forwardCall struct {
	method string
	url    string
	params map[string]any
}

// fakeSessions stands in for the session manager behind a real router.
type fakeSessions struct {
	mu         sync.Mutex
	authed     bool
	authErr    error
	authCalls  int
	forwardErr []error
	data       any
	calls      []forwardCall
	answers    []string
}

func (f *fakeSessions) Authenticate(_ context.Context, creds session.Credentials) (session.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	if f.authErr != nil {
		return session.Descriptor{}, fmt.Errorf("%w: %w", shared.ErrAuthFailed, f.authErr)
	}
	f.authed = true
	return session.Descriptor{Source: session.SourceOAuth, Summary: "device for " + creds.Email}, nil
}

func (f *fakeSessions) Forward(_ context.Context, method, url string, params map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, forwardCall{method, url, params})
	if !f.authed {
		return nil, shared.ErrNotAuthenticated
	}
	if len(f.forwardErr) > 0 {
		err := f.forwardErr[0]
		f.forwardErr = f.forwardErr[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.data, nil
}

func (f *fakeSessions) Answer(answer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer)
	return true
}

func (f *fakeSessions) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.authed {
		return session.Status{}
	}
	return session.Status{Authenticated: true, Source: session.SourceOAuth}
}

func (f *fakeSessions) forwardCalls() []forwardCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forwardCall(nil), f.calls...)
}

var account = shared.CredentialsConfig{Email: "a@b.com", Password: "pw", CountryCode: "us"}

func newShim(t *testing.T, sessions *fakeSessions, creds shared.CredentialsConfig) *ShimService {
	t.Helper()
	srv := httptest.NewServer(server.NewRouter(sessions, log.New(io.Discard)))
	t.Cleanup(srv.Close)
	return NewShimService(Options{BaseURL: srv.URL, HTTPClient: srv.Client(), Credentials: creds})
}

func TestShimService(t *testing.T) {
	ctx := context.Background()

	t.Run("New", func(t *testing.T) {
		t.Run("With Defaults", func(t *testing.T) {
			s := NewShimService(Options{})
			if s.http.BaseURL != defaultBaseURL {
				t.Errorf("expected default base URL %s, got %s", defaultBaseURL, s.http.BaseURL)
			}
			if s.creds.Complete() {
				t.Error("expected retries to be disabled without credentials")
			}
		})

		t.Run("Trims Trailing Slash", func(t *testing.T) {
			s := NewShimService(Options{BaseURL: "http://localhost:5001/"})
			if s.http.BaseURL != "http://localhost:5001" {
				t.Errorf("unexpected base URL %s", s.http.BaseURL)
			}
		})
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			s := newShim(t, &fakeSessions{}, shared.CredentialsConfig{})

			auth, err := s.Authenticate(ctx, session.Credentials{Email: "a@b.com", Password: "pw", CountryCode: "us"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if auth != "device for a@b.com from OAuth" {
				t.Errorf("unexpected auth description %q", auth)
			}
		})

		t.Run("Rejected", func(t *testing.T) {
			s := newShim(t, &fakeSessions{authErr: errors.New("invalid otp answer")}, shared.CredentialsConfig{})

			_, err := s.Authenticate(ctx, session.Credentials{Email: "a@b.com", Password: "pw", CountryCode: "us"})
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Fatalf("expected ErrAuthFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), "invalid otp answer") {
				t.Errorf("expected upstream reason in error, got %v", err)
			}
		})

		t.Run("Missing Field", func(t *testing.T) {
			sessions := &fakeSessions{}
			s := newShim(t, sessions, shared.CredentialsConfig{})

			_, err := s.Authenticate(ctx, session.Credentials{Email: "a@b.com", CountryCode: "us"})
			if !errors.Is(err, shared.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if sessions.authCalls != 0 {
				t.Error("expected the shim to reject the request before authenticating")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Relays Params And Data", func(t *testing.T) {
			sessions := &fakeSessions{authed: true, data: map[string]any{"items": []any{}}}
			s := newShim(t, sessions, shared.CredentialsConfig{})

			data, err := s.Get(ctx, "1.0/library", map[string]any{"num_results": 10.0})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, ok := data.(map[string]any)["items"]; !ok {
				t.Errorf("unexpected data %v", data)
			}

			calls := sessions.forwardCalls()
			if len(calls) != 1 {
				t.Fatalf("expected 1 forwarded call, got %d", len(calls))
			}
			if calls[0].method != http.MethodGet || calls[0].url != "1.0/library" {
				t.Errorf("unexpected call %+v", calls[0])
			}
			if calls[0].params["num_results"] != 10.0 {
				t.Errorf("expected params to survive the round trip, got %v", calls[0].params)
			}
		})

		t.Run("Not Authenticated Without Credentials", func(t *testing.T) {
			sessions := &fakeSessions{}
			s := newShim(t, sessions, shared.CredentialsConfig{})

			_, err := s.Get(ctx, "1.0/library", nil)
			if !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Fatalf("expected ErrNotAuthenticated, got %v", err)
			}
			if sessions.authCalls != 0 {
				t.Error("expected no re-authentication without credentials")
			}
		})

		t.Run("Re-authenticates Once And Retries", func(t *testing.T) {
			sessions := &fakeSessions{data: "ok"}
			s := newShim(t, sessions, account)

			data, err := s.Get(ctx, "1.0/library", nil)
			if err != nil {
				t.Fatalf("expected retry to succeed, got %v", err)
			}
			if data != "ok" {
				t.Errorf("unexpected data %v", data)
			}
			if sessions.authCalls != 1 {
				t.Errorf("expected 1 authentication, got %d", sessions.authCalls)
			}
			if n := len(sessions.forwardCalls()); n != 1 {
				t.Errorf("expected only the retry to be forwarded, got %d calls", n)
			}
		})

		t.Run("Retries Only Once", func(t *testing.T) {
			upstream := fmt.Errorf("%w: Requested resource not found (404)", shared.ErrUpstream)
			sessions := &fakeSessions{authed: true, forwardErr: []error{upstream, upstream}}
			s := newShim(t, sessions, account)

			_, err := s.Get(ctx, "1.0/missing", nil)
			if !errors.Is(err, shared.ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
			if !strings.Contains(err.Error(), "Requested resource not found (404)") {
				t.Errorf("expected upstream message, got %v", err)
			}
			if n := len(sessions.forwardCalls()); n != 2 {
				t.Errorf("expected 2 forwarded calls, got %d", n)
			}
		})

		t.Run("Re-authentication Failure", func(t *testing.T) {
			sessions := &fakeSessions{authErr: errors.New("bad password")}
			s := newShim(t, sessions, account)

			_, err := s.Get(ctx, "1.0/library", nil)
			if !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Fatalf("expected the original error, got %v", err)
			}
			if !strings.Contains(err.Error(), "re-authentication failed") {
				t.Errorf("expected re-authentication failure in error, got %v", err)
			}
		})

		t.Run("Invalid Request Is Not Retried", func(t *testing.T) {
			sessions := &fakeSessions{authed: true}
			s := newShim(t, sessions, account)

			_, err := s.Get(ctx, "", nil)
			if !errors.Is(err, shared.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if sessions.authCalls != 0 {
				t.Error("expected no re-authentication for an invalid request")
			}
		})
	})

	t.Run("Put", func(t *testing.T) {
		sessions := &fakeSessions{authed: true, data: map[string]any{"status": "updated"}}
		s := newShim(t, sessions, shared.CredentialsConfig{})

		data, err := s.Put(ctx, "1.0/lastpositions/B002V1OF70", map[string]any{"position_ms": 1000.0})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if data.(map[string]any)["status"] != "updated" {
			t.Errorf("unexpected data %v", data)
		}

		calls := sessions.forwardCalls()
		if calls[0].method != http.MethodPut || calls[0].params["position_ms"] != 1000.0 {
			t.Errorf("unexpected call %+v", calls[0])
		}
	})

	t.Run("Post", func(t *testing.T) {
		sessions := &fakeSessions{authed: true, data: "ignored"}
		s := newShim(t, sessions, shared.CredentialsConfig{})

		if err := s.Post(ctx, "/1.0/wishlist", map[string]any{"asin": "B002V1OF70"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		calls := sessions.forwardCalls()
		if calls[0].method != http.MethodPost || calls[0].url != "/1.0/wishlist" {
			t.Errorf("unexpected call %+v", calls[0])
		}
	})

	t.Run("Answer", func(t *testing.T) {
		sessions := &fakeSessions{}
		s := newShim(t, sessions, shared.CredentialsConfig{})

		echo, err := s.Answer(ctx, "123456")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if echo != "123456" {
			t.Errorf("expected echoed answer, got %q", echo)
		}
		if len(sessions.answers) != 1 || sessions.answers[0] != "123456" {
			t.Errorf("expected answer to be delivered, got %v", sessions.answers)
		}
	})

	t.Run("Health", func(t *testing.T) {
		s := newShim(t, &fakeSessions{authed: true}, shared.CredentialsConfig{})

		health, err := s.Health(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if health.Status != "ok" || !health.Authenticated || health.Source != session.SourceOAuth {
			t.Errorf("unexpected health %+v", health)
		}
	})

	t.Run("Transport Failure", func(t *testing.T) {
		rt := tu.NewMockRoundTripper(nil, errors.New("connection refused"))
		s := NewShimService(Options{HTTPClient: &http.Client{Transport: rt}, Credentials: account})

		_, err := s.Get(ctx, "1.0/library", nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("expected ErrServiceUnavailable, got %v", err)
		}
		if rt.Calls != 1 {
			t.Errorf("expected no retry when the shim is unreachable, got %d calls", rt.Calls)
		}

		if _, err := s.Health(ctx); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable from Health, got %v", err)
		}
	})

	t.Run("Non-JSON Response", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusBadGateway,
			Header:     http.Header{"Content-Type": []string{"text/html"}},
			Body:       io.NopCloser(strings.NewReader("<html>bad gateway</html>")),
		}
		s := NewShimService(Options{HTTPClient: &http.Client{Transport: tu.NewMockRoundTripper(resp, nil)}})

		_, err := s.Get(ctx, "1.0/library", nil)
		if !errors.Is(err, shared.ErrUpstream) {
			t.Fatalf("expected ErrUpstream, got %v", err)
		}
	})
}

func TestLibrary(t *testing.T) {
	ctx := context.Background()
	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newLibraryShim := func(t *testing.T, sessions *fakeSessions) *ShimService {
		srv := httptest.NewServer(server.NewRouter(sessions, log.New(io.Discard)))
		t.Cleanup(srv.Close)
		return NewShimService(Options{BaseURL: srv.URL, Now: func() time.Time { return fetched }})
	}

	t.Run("Simplifies Items", func(t *testing.T) {
		sessions := &fakeSessions{authed: true, data: map[string]any{
			"items": []any{
				map[string]any{
					"asin":               "B002V1OF70",
					"title":              "Dune",
					"runtime_length_min": 1263,
					"product_images":     map[string]any{"900": "https://img/900.jpg", "500": "https://img/500.jpg"},
					"listening_status":   map[string]any{"percent_complete": 42.5, "time_remaining_seconds": 12060},
				},
				map[string]any{
					"asin":               "B0036S4B2G",
					"title":              "Anathem",
					"runtime_length_min": nil,
					"listening_status":   nil,
				},
			},
		}}
		s := newLibraryShim(t, sessions)

		lib, err := s.Library(ctx)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !lib.FetchedAt.Equal(fetched) {
			t.Errorf("expected FetchedAt %v, got %v", fetched, lib.FetchedAt)
		}
		if len(lib.Books) != 2 {
			t.Fatalf("expected 2 books, got %d", len(lib.Books))
		}

		dune := lib.Books[0]
		if dune.ASIN != "B002V1OF70" || dune.Title != "Dune" || dune.TotalLengthMin != 1263 {
			t.Errorf("unexpected book %+v", dune)
		}
		if dune.ImageURL != "https://img/500.jpg" {
			t.Errorf("expected the lowest keyed image, got %s", dune.ImageURL)
		}
		if dune.ProgressPercent == nil || *dune.ProgressPercent != 42.5 {
			t.Errorf("unexpected progress %v", dune.ProgressPercent)
		}
		if dune.LengthLeftSec == nil || *dune.LengthLeftSec != 12060 {
			t.Errorf("unexpected length left %v", dune.LengthLeftSec)
		}

		anathem := lib.Books[1]
		if anathem.ProgressPercent != nil || anathem.LengthLeftSec != nil {
			t.Error("expected nil progress without a listening status")
		}
		if anathem.ImageURL != "" || anathem.TotalLengthMin != 0 {
			t.Errorf("unexpected defaults %+v", anathem)
		}

		call := sessions.forwardCalls()[0]
		if call.url != libraryPath || call.params["response_groups"] != libraryGroups {
			t.Errorf("unexpected library request %+v", call)
		}
	})

	t.Run("Unexpected Shape", func(t *testing.T) {
		s := newLibraryShim(t, &fakeSessions{authed: true, data: []any{"not", "an", "object"}})

		if _, err := s.Library(ctx); !errors.Is(err, shared.ErrUpstream) {
			t.Fatalf("expected ErrUpstream, got %v", err)
		}
	})
}
