package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/abx/internal/retailer"
	"github.com/desertthunder/abx/internal/shared"
)

var validCreds = Credentials{Email: "a@b.com", Password: "pw", CountryCode: "us"}

func newTestManager(store *fakeStore, provider *fakeProvider, notifier *fakeNotifier, timeout time.Duration) *Manager {
	return NewManager(Options{
		Store:            store,
		Provider:         provider,
		Notifier:         notifier,
		Logger:           shared.NewLogger(io.Discard),
		ChallengeTimeout: timeout,
	})
}

// answerEach answers the next len(answers) challenges in order from a background goroutine.
func answerEach(t *testing.T, n *fakeNotifier, m *Manager, answers ...string) {
	t.Helper()
	go func() {
		for _, a := range answers {
			select {
			case <-n.raised:
				if !m.Answer(a) {
					t.Errorf("answer %q found no pending challenge", a)
				}
			case <-time.After(2 * time.Second):
				t.Errorf("no challenge raised for answer %q", a)
				return
			}
		}
	}()
}

func TestCredentialsValidate(t *testing.T) {
	tc := []struct {
		name  string
		creds Credentials
		field string
	}{
		{name: "missing email", creds: Credentials{Password: "pw", CountryCode: "us"}, field: "email"},
		{name: "blank password", creds: Credentials{Email: "a@b.com", Password: "  ", CountryCode: "us"}, field: "password"},
		{name: "missing country", creds: Credentials{Email: "a@b.com", Password: "pw"}, field: "countryCode"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if !errors.Is(err, shared.ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to name %s, got %v", tt.field, err)
			}
		})
	}

	if err := validCreds.Validate(); err != nil {
		t.Errorf("expected valid credentials, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	t.Run("Invalid Request Touches Nothing", func(t *testing.T) {
		store := &fakeStore{}
		provider := newFakeProvider(nil)
		m := newTestManager(store, provider, newFakeNotifier(), 0)

		_, err := m.Authenticate(context.Background(), Credentials{Email: "a@b.com", Password: "pw"})
		if !errors.Is(err, shared.ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest, got %v", err)
		}

		if loads, saves, _ := store.counts(); loads != 0 || saves != 0 {
			t.Errorf("expected no store calls, got %d loads %d saves", loads, saves)
		}
		if refreshes, logins, _ := provider.counts(); refreshes != 0 || logins != 0 {
			t.Errorf("expected no provider calls, got %d refreshes %d logins", refreshes, logins)
		}
		if m.Current() != nil {
			t.Error("expected no session")
		}
	})

	t.Run("From File", func(t *testing.T) {
		store := &fakeStore{reg: registration("Atna|file-token"), password: "pw"}
		provider := newFakeProvider(nil)
		notifier := newFakeNotifier()
		m := newTestManager(store, provider, notifier, 0)

		desc, err := m.Authenticate(context.Background(), validCreds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if desc.Source != SourceFile || !strings.HasSuffix(desc.String(), " from file") {
			t.Errorf("expected file descriptor, got %q", desc.String())
		}
		if strings.Contains(desc.String(), "file-token") {
			t.Errorf("descriptor leaks the access token: %s", desc.String())
		}
		if _, logins, _ := provider.counts(); logins != 0 {
			t.Errorf("expected no login, got %d", logins)
		}
		messages, challenges := notifier.recorded()
		if len(messages) != 0 || len(challenges) != 0 {
			t.Errorf("expected no notifications, got %v %v", messages, challenges)
		}
		if _, saves, _ := store.counts(); saves != 0 {
			t.Errorf("unchanged registration should not be rewritten, got %d saves", saves)
		}
	})

	t.Run("From File Persists Refreshed Token", func(t *testing.T) {
		store := &fakeStore{reg: registration("Atna|stale"), password: "pw"}
		provider := newFakeProvider(nil)
		provider.refreshed = registration("Atna|fresh")
		m := newTestManager(store, provider, newFakeNotifier(), 0)

		if _, err := m.Authenticate(context.Background(), validCreds); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, saves, _ := store.counts(); saves != 1 {
			t.Errorf("expected refreshed registration to be saved, got %d saves", saves)
		}
		if store.reg.AccessToken != "Atna|fresh" {
			t.Errorf("expected stored token to be refreshed, got %s", store.reg.AccessToken)
		}
		if got := m.Current().Registration.AccessToken; got != "Atna|fresh" {
			t.Errorf("expected session to use refreshed token, got %s", got)
		}
	})

	t.Run("Falls Back To Sign-In", func(t *testing.T) {
		tc := []struct {
			name       string
			store      *fakeStore
			refreshErr error
		}{
			{name: "missing file", store: &fakeStore{}},
			{name: "wrong password", store: &fakeStore{reg: registration("x"), password: "other"}},
			{name: "refresh rejected", store: &fakeStore{reg: registration("x"), password: "pw"}, refreshErr: shared.ErrRefreshFailed},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				provider := newFakeProvider(nil)
				provider.refreshErr = tt.refreshErr
				notifier := newFakeNotifier()
				m := newTestManager(tt.store, provider, notifier, 0)

				desc, err := m.Authenticate(context.Background(), validCreds)
				if err != nil {
					t.Fatalf("file failure should not surface, got %v", err)
				}
				if desc.Source != SourceOAuth || !strings.HasSuffix(desc.String(), " from OAuth") {
					t.Errorf("expected OAuth descriptor, got %q", desc.String())
				}

				messages, _ := notifier.recorded()
				if len(messages) != 1 || messages[0] != FileFallbackMessage {
					t.Errorf("expected fallback message, got %v", messages)
				}
				if _, saves, snapshots := tt.store.counts(); saves != 1 || snapshots != 1 {
					t.Errorf("expected one save and one snapshot, got %d and %d", saves, snapshots)
				}
			})
		}
	})

	t.Run("OTP Then CVF", func(t *testing.T) {
		provider := newFakeProvider(challengeLogin(
			[]retailer.ChallengeKind{retailer.ChallengeOTP, retailer.ChallengeCVF},
			[]string{"123456", "777"},
		))
		notifier := newFakeNotifier()
		m := newTestManager(&fakeStore{}, provider, notifier, time.Second)
		answerEach(t, notifier, m, "123456", "777")

		desc, err := m.Authenticate(context.Background(), validCreds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if desc.Source != SourceOAuth {
			t.Errorf("expected OAuth source, got %s", desc.Source)
		}

		_, challenges := notifier.recorded()
		if len(challenges) != 2 || challenges[0].Kind != retailer.ChallengeOTP || challenges[1].Kind != retailer.ChallengeCVF {
			t.Errorf("unexpected challenges %+v", challenges)
		}
		if _, ok := m.Pending(); ok {
			t.Error("expected no pending challenge after sign-in")
		}
	})

	t.Run("Wrong Answer", func(t *testing.T) {
		provider := newFakeProvider(challengeLogin(
			[]retailer.ChallengeKind{retailer.ChallengeOTP, retailer.ChallengeCVF},
			[]string{"123456", "777"},
		))
		notifier := newFakeNotifier()
		store := &fakeStore{}
		m := newTestManager(store, provider, notifier, time.Second)
		answerEach(t, notifier, m, "000000")

		_, err := m.Authenticate(context.Background(), validCreds)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if !strings.Contains(err.Error(), "invalid otp answer") {
			t.Errorf("expected cause in error, got %v", err)
		}
		if m.Current() != nil {
			t.Error("expected no session")
		}
		if _, saves, _ := store.counts(); saves != 0 {
			t.Errorf("expected nothing persisted, got %d saves", saves)
		}
	})

	t.Run("Challenge Timeout", func(t *testing.T) {
		provider := newFakeProvider(challengeLogin([]retailer.ChallengeKind{retailer.ChallengeOTP}, []string{"1"}))
		m := newTestManager(&fakeStore{}, provider, newFakeNotifier(), 20*time.Millisecond)

		_, err := m.Authenticate(context.Background(), validCreds)
		if !errors.Is(err, shared.ErrAuthFailed) || !errors.Is(err, shared.ErrTimeout) {
			t.Fatalf("expected ErrAuthFailed wrapping ErrTimeout, got %v", err)
		}
		if _, ok := m.Pending(); ok {
			t.Error("expected the slot to be cleared after timeout")
		}
		if m.Answer("late") {
			t.Error("late answer should find no pending challenge")
		}
	})

	t.Run("Cancelled While Waiting", func(t *testing.T) {
		provider := newFakeProvider(challengeLogin([]retailer.ChallengeKind{retailer.ChallengeCaptcha}, []string{"x"}))
		notifier := newFakeNotifier()
		m := newTestManager(&fakeStore{}, provider, notifier, 0)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-notifier.raised
			cancel()
		}()

		_, err := m.Authenticate(ctx, validCreds)
		if !errors.Is(err, shared.ErrAuthFailed) || !errors.Is(err, context.Canceled) {
			t.Fatalf("expected ErrAuthFailed wrapping context.Canceled, got %v", err)
		}
		if _, ok := m.Pending(); ok {
			t.Error("expected the slot to be cleared after cancellation")
		}
	})

	t.Run("Persist Failure Fails Sign-In", func(t *testing.T) {
		store := &fakeStore{saveErr: errors.New("disk full")}
		m := newTestManager(store, newFakeProvider(nil), newFakeNotifier(), 0)

		_, err := m.Authenticate(context.Background(), validCreds)
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected ErrAuthFailed, got %v", err)
		}
		if m.Current() != nil {
			t.Error("expected no session")
		}
	})

	t.Run("Replaces Session", func(t *testing.T) {
		store := &fakeStore{}
		m := newTestManager(store, newFakeProvider(nil), newFakeNotifier(), 0)

		if _, err := m.Authenticate(context.Background(), validCreds); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		first := m.Current()

		desc, err := m.Authenticate(context.Background(), validCreds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if desc.Source != SourceFile {
			t.Errorf("second authentication should use the saved file, got %s", desc.Source)
		}
		if m.Current() == first {
			t.Error("expected the session to be replaced")
		}
	})

	t.Run("Serialised", func(t *testing.T) {
		var active, peak int32
		provider := newFakeProvider(func(ctx context.Context, req retailer.LoginRequest, solver retailer.ChallengeSolver) (*retailer.DeviceRegistration, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return nil, errors.New("rejected")
		})
		m := newTestManager(&fakeStore{}, provider, newFakeNotifier(), 0)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Authenticate(context.Background(), validCreds)
			}()
		}
		wg.Wait()

		if peak != 1 {
			t.Errorf("expected one sign-in at a time, saw %d", peak)
		}
		if _, logins, _ := provider.counts(); logins != 4 {
			t.Errorf("expected 4 sign-ins, got %d", logins)
		}
	})
}

func TestForward(t *testing.T) {
	t.Run("Not Authenticated", func(t *testing.T) {
		provider := newFakeProvider(nil)
		m := newTestManager(&fakeStore{}, provider, newFakeNotifier(), 0)

		calls := []func() (any, error){
			func() (any, error) { return m.Get(context.Background(), "1.0/library", nil) },
			func() (any, error) { return m.Put(context.Background(), "1.0/library", nil) },
			func() (any, error) { return m.Post(context.Background(), "1.0/library", nil) },
		}
		for _, call := range calls {
			if _, err := call(); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		}

		if _, _, clients := provider.counts(); clients != 0 {
			t.Errorf("expected no client, got %d", clients)
		}
		if len(provider.forwarder.calls) != 0 {
			t.Errorf("expected no forwarded calls, got %d", len(provider.forwarder.calls))
		}
	})

	t.Run("Relays Through Session", func(t *testing.T) {
		provider := newFakeProvider(nil)
		m := newTestManager(&fakeStore{}, provider, newFakeNotifier(), 0)
		if _, err := m.Authenticate(context.Background(), validCreds); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		params := map[string]any{"response_groups": "media"}
		data, err := m.Get(context.Background(), "1.0/library", params)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got, ok := data.(map[string]any); !ok || got["ok"] != true {
			t.Errorf("unexpected data %v", data)
		}
		if _, err := m.Put(context.Background(), "1.0/x", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := m.Post(context.Background(), "1.0/y", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		calls := provider.forwarder.calls
		if len(calls) != 3 {
			t.Fatalf("expected 3 calls, got %d", len(calls))
		}
		if calls[0].method != http.MethodGet || calls[0].url != "1.0/library" || calls[0].params["response_groups"] != "media" {
			t.Errorf("unexpected get call %+v", calls[0])
		}
		if calls[1].method != http.MethodPut || calls[2].method != http.MethodPost {
			t.Errorf("unexpected methods %s %s", calls[1].method, calls[2].method)
		}
	})

	t.Run("Upstream Errors Pass Through", func(t *testing.T) {
		provider := newFakeProvider(nil)
		provider.forwarder.err = &retailer.APIError{StatusCode: 404, Message: "Not Found"}
		m := newTestManager(&fakeStore{}, provider, newFakeNotifier(), 0)
		if _, err := m.Authenticate(context.Background(), validCreds); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err := m.Get(context.Background(), "1.0/missing", nil)
		if !errors.Is(err, shared.ErrUpstream) {
			t.Errorf("expected ErrUpstream, got %v", err)
		}
	})
}

func TestStatus(t *testing.T) {
	provider := newFakeProvider(challengeLogin([]retailer.ChallengeKind{retailer.ChallengeOTP}, []string{"1"}))
	notifier := newFakeNotifier()
	m := newTestManager(&fakeStore{}, provider, notifier, time.Second)

	if st := m.Status(); st.Authenticated || st.Pending != "" {
		t.Errorf("expected empty status, got %+v", st)
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Authenticate(context.Background(), validCreds)
		done <- err
	}()

	<-notifier.raised
	if st := m.Status(); st.Pending != "otp" || st.Authenticated {
		t.Errorf("expected pending otp, got %+v", st)
	}

	m.Answer("1")
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := m.Status()
	if !st.Authenticated || st.Source != SourceOAuth || st.Pending != "" {
		t.Errorf("expected authenticated status, got %+v", st)
	}
}
