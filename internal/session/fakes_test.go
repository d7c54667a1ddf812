package session

import (
	"context"
	"sync"

	"github.com/desertthunder/abx/internal/retailer"
	"github.com/desertthunder/abx/internal/shared"
)

type fakeStore struct {
	mu        sync.Mutex
	reg       *retailer.DeviceRegistration
	password  string
	saveErr   error
	loads     int
	saves     int
	snapshots int
}

func (s *fakeStore) Load(password string) (*retailer.DeviceRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.reg == nil {
		return nil, shared.ErrNoCredentials
	}
	if password != s.password {
		return nil, shared.ErrDecrypt
	}
	reg := *s.reg
	return &reg, nil
}

func (s *fakeStore) Save(reg *retailer.DeviceRegistration, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	copied := *reg
	s.reg = &copied
	s.password = password
	return nil
}

func (s *fakeStore) SaveSnapshot(reg *retailer.DeviceRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots++
	return nil
}

func (s *fakeStore) counts() (loads, saves, snapshots int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads, s.saves, s.snapshots
}

type forwardCall struct {
	method string
	url    string
	params map[string]any
}

type fakeForwarder struct {
	mu    sync.Mutex
	calls []forwardCall
	resp  any
	err   error
}

func (f *fakeForwarder) Do(ctx context.Context, method, path string, params map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, forwardCall{method: method, url: path, params: params})
	return f.resp, f.err
}

type loginFunc func(ctx context.Context, req retailer.LoginRequest, solver retailer.ChallengeSolver) (*retailer.DeviceRegistration, error)

type fakeProvider struct {
	mu         sync.Mutex
	refreshErr error
	refreshed  *retailer.DeviceRegistration
	login      loginFunc
	forwarder  *fakeForwarder
	refreshes  int
	logins     int
	clients    int
}

func newFakeProvider(login loginFunc) *fakeProvider {
	return &fakeProvider{login: login, forwarder: &fakeForwarder{resp: map[string]any{"ok": true}}}
}

func (p *fakeProvider) Refresh(ctx context.Context, reg *retailer.DeviceRegistration) (*retailer.DeviceRegistration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	if p.refreshed != nil {
		return p.refreshed, nil
	}
	return reg, nil
}

func (p *fakeProvider) Login(ctx context.Context, req retailer.LoginRequest, solver retailer.ChallengeSolver) (*retailer.DeviceRegistration, error) {
	p.mu.Lock()
	p.logins++
	login := p.login
	p.mu.Unlock()

	if login == nil {
		return registration("Atna|oauth-token"), nil
	}
	return login(ctx, req, solver)
}

func (p *fakeProvider) NewClient(ctx context.Context, reg *retailer.DeviceRegistration) (Forwarder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients++
	return p.forwarder, nil
}

func (p *fakeProvider) counts() (refreshes, logins, clients int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshes, p.logins, p.clients
}

// fakeNotifier records notifications and republishes challenges on a channel for the test to answer.
type fakeNotifier struct {
	mu         sync.Mutex
	messages   []string
	challenges []retailer.Challenge
	raised     chan retailer.Challenge
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{raised: make(chan retailer.Challenge, 16)}
}

func (n *fakeNotifier) Challenge(c retailer.Challenge) error {
	n.mu.Lock()
	n.challenges = append(n.challenges, c)
	n.mu.Unlock()
	n.raised <- c
	return nil
}

func (n *fakeNotifier) Message(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return nil
}

func (n *fakeNotifier) recorded() ([]string, []retailer.Challenge) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...), append([]retailer.Challenge(nil), n.challenges...)
}

func registration(token string) *retailer.DeviceRegistration {
	return &retailer.DeviceRegistration{
		LocaleCode: "us",
		DeviceInfo: retailer.DeviceInfo{
			DeviceName:         "Test's abx",
			DeviceSerialNumber: "0123456789ABCDEF0123456789ABCDEF",
			DeviceType:         retailer.DeviceType,
		},
		AccessToken:  token,
		RefreshToken: "Atnr|refresh-token",
	}
}

// challengeLogin raises each kind in order and fails unless the solver returns the matching answer.
func challengeLogin(kinds []retailer.ChallengeKind, want []string) loginFunc {
	return func(ctx context.Context, req retailer.LoginRequest, solver retailer.ChallengeSolver) (*retailer.DeviceRegistration, error) {
		for i, kind := range kinds {
			answer, err := solver.Solve(ctx, retailer.Challenge{ID: shared.GenerateID(), Kind: kind})
			if err != nil {
				return nil, err
			}
			if answer != want[i] {
				return nil, errInvalidAnswer(kind)
			}
		}
		return registration("Atna|oauth-token"), nil
	}
}

type errInvalidAnswer retailer.ChallengeKind

func (e errInvalidAnswer) Error() string { return "invalid " + string(e) + " answer" }
