package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/abx/internal/retailer"
	"github.com/desertthunder/abx/internal/shared"
)

// FileFallbackMessage is announced when the credential file cannot be used and interactive sign-in begins.
const FileFallbackMessage = "auth from file failed... Using OAuth"

// Store persists device registrations.
type Store interface {
	Load(password string) (*retailer.DeviceRegistration, error)
	Save(reg *retailer.DeviceRegistration, password string) error
	SaveSnapshot(reg *retailer.DeviceRegistration) error
}

// Provider talks to the retailer on the manager's behalf.
type Provider interface {
	Refresh(ctx context.Context, reg *retailer.DeviceRegistration) (*retailer.DeviceRegistration, error)
	Login(ctx context.Context, req retailer.LoginRequest, solver retailer.ChallengeSolver) (*retailer.DeviceRegistration, error)
	NewClient(ctx context.Context, reg *retailer.DeviceRegistration) (Forwarder, error)
}

// Notifier announces sign-in progress to whoever is driving the process.
type Notifier interface {
	Challenge(c retailer.Challenge) error
	Message(text string) error
}

// Options configures a [Manager].
type Options struct {
	Store            Store
	Provider         Provider
	Notifier         Notifier
	Logger           *log.Logger
	ChallengeTimeout time.Duration // Zero waits for an answer indefinitely
	Now              func() time.Time
}

// Manager holds the current [Session] and serialises authentication.
type Manager struct {
	store    Store
	provider Provider
	notifier Notifier
	logger   *log.Logger
	timeout  time.Duration
	now      func() time.Time

	authMu     sync.Mutex
	mu         sync.RWMutex
	session    *Session
	rendezvous *Rendezvous
}

// NewManager creates a [Manager] with no session.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:      opts.Store,
		provider:   opts.Provider,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		timeout:    opts.ChallengeTimeout,
		now:        opts.Now,
		rendezvous: NewRendezvous(),
	}
}

// fileStage names the step of the credential file path that failed.
type fileStage string

const (
	stageLoad    fileStage = "load"
	stageRefresh fileStage = "refresh"
	stageClient  fileStage = "client"
)

// fileResult is the outcome of authenticating from the credential file.
type fileResult struct {
	session *Session
	stage   fileStage
	err     error
}

func (r fileResult) ok() bool {
	return r.err == nil && r.session != nil
}

// Authenticate establishes a new session and replaces the current one.
//
// The credential file is tried first; any failure there falls through to interactive sign-in. Concurrent calls
// run one at a time. Returns [shared.ErrInvalidRequest] for blank credentials and [shared.ErrAuthFailed]
// wrapping the cause when sign-in fails.
func (m *Manager) Authenticate(ctx context.Context, creds Credentials) (Descriptor, error) {
	if err := creds.Validate(); err != nil {
		return Descriptor{}, err
	}

	m.authMu.Lock()
	defer m.authMu.Unlock()

	logger := shared.WithLogger(m.logger, "email", creds.Email, "country", creds.CountryCode)

	res := m.fromFile(ctx, creds)
	if res.ok() {
		m.install(res.session)
		logger.Info("authenticated from credential file")
		return res.session.Descriptor(), nil
	}
	logger.Warn("credential file unusable", "stage", res.stage, "error", res.err)

	if err := m.notifier.Message(FileFallbackMessage); err != nil {
		logger.Warn("failed to announce fallback", "error", err)
	}

	s, err := m.fromLogin(ctx, creds, logger)
	if err != nil {
		logger.Error("sign-in failed", "error", err)
		return Descriptor{}, fmt.Errorf("%w: %w", shared.ErrAuthFailed, err)
	}

	m.install(s)
	logger.Info("authenticated with sign-in")
	return s.Descriptor(), nil
}

func (m *Manager) fromFile(ctx context.Context, creds Credentials) fileResult {
	reg, err := m.store.Load(creds.Password)
	if err != nil {
		return fileResult{stage: stageLoad, err: err}
	}

	refreshed, err := m.provider.Refresh(ctx, reg)
	if err != nil {
		return fileResult{stage: stageRefresh, err: err}
	}
	if refreshed != reg {
		if err := m.store.Save(refreshed, creds.Password); err != nil {
			m.logger.Warn("failed to persist refreshed credentials", "error", err)
		}
	}

	s, err := m.newSession(ctx, refreshed, SourceFile)
	if err != nil {
		return fileResult{stage: stageClient, err: err}
	}
	return fileResult{session: s}
}

func (m *Manager) fromLogin(ctx context.Context, creds Credentials, logger *log.Logger) (*Session, error) {
	solver := retailer.SolverFunc(func(ctx context.Context, c retailer.Challenge) (string, error) {
		logger.Info("waiting for challenge answer", "type", c.Kind, "id", c.ID)
		return m.rendezvous.Await(ctx, c, m.notifier.Challenge, m.timeout)
	})

	reg, err := m.provider.Login(ctx, retailer.LoginRequest{
		Email:       creds.Email,
		Password:    creds.Password,
		CountryCode: creds.CountryCode,
	}, solver)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(reg, creds.Password); err != nil {
		return nil, fmt.Errorf("failed to persist credentials: %w", err)
	}
	if err := m.store.SaveSnapshot(reg); err != nil {
		logger.Warn("failed to write credential snapshot", "error", err)
	}

	return m.newSession(ctx, reg, SourceOAuth)
}

func (m *Manager) newSession(ctx context.Context, reg *retailer.DeviceRegistration, source Source) (*Session, error) {
	// The client outlives the request that created it.
	client, err := m.provider.NewClient(context.WithoutCancel(ctx), reg)
	if err != nil {
		return nil, err
	}
	return &Session{Registration: reg, Source: source, Established: m.now(), client: client}, nil
}

func (m *Manager) install(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

// Current returns the active session or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Answer delivers an answer to the outstanding challenge and reports whether one was waiting.
func (m *Manager) Answer(answer string) bool {
	return m.rendezvous.Deliver(answer)
}

// Pending returns the outstanding challenge, if any.
func (m *Manager) Pending() (retailer.Challenge, bool) {
	return m.rendezvous.Pending()
}

// Status reports whether a session exists and which challenge, if any, is waiting.
func (m *Manager) Status() Status {
	var st Status
	if s := m.Current(); s != nil {
		st.Authenticated = true
		st.Source = s.Source
	}
	if c, ok := m.Pending(); ok {
		st.Pending = string(c.Kind)
	}
	return st
}

// Forward relays a request through the current session.
func (m *Manager) Forward(ctx context.Context, method, url string, params map[string]any) (any, error) {
	s := m.Current()
	if s == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return s.client.Do(ctx, method, url, params)
}

func (m *Manager) Get(ctx context.Context, url string, params map[string]any) (any, error) {
	return m.Forward(ctx, http.MethodGet, url, params)
}

func (m *Manager) Put(ctx context.Context, url string, params map[string]any) (any, error) {
	return m.Forward(ctx, http.MethodPut, url, params)
}

func (m *Manager) Post(ctx context.Context, url string, params map[string]any) (any, error) {
	return m.Forward(ctx, http.MethodPost, url, params)
}
