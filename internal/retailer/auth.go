package retailer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/abx/internal/shared"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
)

const (
	signinPath    = "/auth/signin"
	challengePath = "/auth/signin/challenge"
	tokenPath     = "/auth/token"

	// DeviceType is the device type this process registers as.
	DeviceType = "A2CZJZGLK2JJVM"

	defaultMaxChallenges = 10
	defaultTimeout       = 30 * time.Second

	// refreshLeeway refreshes tokens that would expire during a typical request burst.
	refreshLeeway = time.Minute
)

// LoginRequest carries the account credentials for a fresh sign-in.
type LoginRequest struct {
	Email       string
	Password    string
	CountryCode string
}

// AuthOptions configures an [Authenticator].
type AuthOptions struct {
	Overrides     Endpoints     // Non-empty fields replace the locale's hosts
	MaxChallenges int           // Upper bound on challenges per sign-in
	Timeout       time.Duration // Per-request timeout
	HTTPClient    *http.Client  // Base client, defaults to [http.DefaultClient]
	Logger        *log.Logger
	Now           func() time.Time
}

// Authenticator performs device registration and token refresh.
type Authenticator struct {
	http          *resty.Client
	baseClient    *http.Client
	overrides     Endpoints
	maxChallenges int
	logger        *log.Logger
	now           func() time.Time
}

// NewAuthenticator creates an [Authenticator], filling unset options with defaults.
func NewAuthenticator(opts AuthOptions) *Authenticator {
	if opts.MaxChallenges <= 0 {
		opts.MaxChallenges = defaultMaxChallenges
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// resty applies its timeout to the client it wraps, so give it a copy.
	hc := *opts.HTTPClient
	cli := resty.NewWithClient(&hc).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &Authenticator{
		http:          cli,
		baseClient:    opts.HTTPClient,
		overrides:     opts.Overrides,
		maxChallenges: opts.MaxChallenges,
		logger:        opts.Logger,
		now:           opts.Now,
	}
}

// Endpoints resolves the hosts for a country code, applying overrides.
func (a *Authenticator) Endpoints(countryCode string) (Endpoints, error) {
	locale, err := LookupLocale(countryCode)
	if err != nil {
		return Endpoints{}, err
	}
	return locale.Endpoints().Override(a.overrides), nil
}

type signinRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Locale       string `json:"locale"`
	DeviceSerial string `json:"device_serial"`
	DeviceType   string `json:"device_type"`
	WithUsername bool   `json:"with_username"`
}

type challengeAnswer struct {
	Session string        `json:"session"`
	Type    ChallengeKind `json:"type"`
	Answer  string        `json:"answer"`
}

type signinResponse struct {
	Session   string `json:"session"`
	Error     string `json:"error,omitempty"`
	Challenge *struct {
		Type string `json:"type"`
		URL  string `json:"url,omitempty"`
	} `json:"challenge,omitempty"`
	Registration *struct {
		AccessToken  string       `json:"access_token"`
		RefreshToken string       `json:"refresh_token"`
		ExpiresIn    int          `json:"expires_in"`
		DeviceInfo   DeviceInfo   `json:"device_info"`
		CustomerInfo CustomerInfo `json:"customer_info"`
	} `json:"registration,omitempty"`
}

// Login signs in and registers a new device.
//
// Every challenge raised by the retailer is passed to solver in order; Login returns once the retailer
// issues a registration, rejects the sign-in, or more than the configured number of challenges were raised.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest, solver ChallengeSolver) (*DeviceRegistration, error) {
	locale, err := LookupLocale(req.CountryCode)
	if err != nil {
		return nil, err
	}
	endpoints := locale.Endpoints().Override(a.overrides)
	serial := shared.GenerateSerial()
	logger := shared.WithLogger(a.logger, "locale", locale.CountryCode, "serial", serial)

	logger.Info("signing in")

	resp, err := a.post(ctx, endpoints.Auth+signinPath, signinRequest{
		Email:        req.Email,
		Password:     req.Password,
		Locale:       locale.CountryCode,
		DeviceSerial: serial,
		DeviceType:   DeviceType,
	})
	if err != nil {
		return nil, err
	}

	for solved := 0; ; solved++ {
		switch {
		case resp.Error != "":
			return nil, errors.New(resp.Error)

		case resp.Registration != nil:
			r := resp.Registration
			reg := &DeviceRegistration{
				LocaleCode:   locale.CountryCode,
				DeviceInfo:   r.DeviceInfo,
				CustomerInfo: r.CustomerInfo,
				AccessToken:  r.AccessToken,
				RefreshToken: r.RefreshToken,
			}
			if reg.DeviceInfo.DeviceSerialNumber == "" {
				reg.DeviceInfo.DeviceSerialNumber = serial
			}
			if reg.DeviceInfo.DeviceType == "" {
				reg.DeviceInfo.DeviceType = DeviceType
			}
			if r.ExpiresIn > 0 {
				reg.Expires = a.now().Add(time.Duration(r.ExpiresIn) * time.Second)
			}
			logger.Info("device registered", "challenges", solved)
			return reg, nil

		case resp.Challenge != nil:
			if solved >= a.maxChallenges {
				return nil, fmt.Errorf("%w: gave up after %d", shared.ErrTooManyChallenges, solved)
			}

			kind, err := ParseChallengeKind(resp.Challenge.Type)
			if err != nil {
				return nil, err
			}

			challenge := Challenge{ID: shared.GenerateID(), Kind: kind, URL: resp.Challenge.URL}
			if kind == ChallengeApproval {
				challenge.Prompt = ApprovalPrompt
			}

			logger.Info("sign-in challenge raised", "type", kind)
			answer, err := solver.Solve(ctx, challenge)
			if err != nil {
				return nil, fmt.Errorf("%s challenge: %w", kind, err)
			}

			resp, err = a.post(ctx, endpoints.Auth+challengePath, challengeAnswer{
				Session: resp.Session,
				Type:    kind,
				Answer:  answer,
			})
			if err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("%w: sign-in response carried neither a challenge nor a registration", shared.ErrUpstream)
		}
	}
}

func (a *Authenticator) post(ctx context.Context, url string, body any) (*signinResponse, error) {
	var out signinResponse

	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		ForceContentType("application/json").
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp.StatusCode(), resp.Body())
	}

	return &out, nil
}

// Refresh renews the access token when it is missing or about to expire.
//
// The returned registration is a copy; reg is never modified. A still-valid registration is returned as is.
func (a *Authenticator) Refresh(ctx context.Context, reg *DeviceRegistration) (*DeviceRegistration, error) {
	if !reg.ExpiresWithin(a.now(), refreshLeeway) {
		return reg, nil
	}
	return a.ForceRefresh(ctx, reg)
}

// ForceRefresh renews the access token regardless of its expiry.
func (a *Authenticator) ForceRefresh(ctx context.Context, reg *DeviceRegistration) (*DeviceRegistration, error) {
	if strings.TrimSpace(reg.RefreshToken) == "" {
		return nil, shared.ErrNoRefreshToken
	}

	endpoints, err := a.Endpoints(reg.LocaleCode)
	if err != nil {
		return nil, err
	}

	conf := a.oauthConfig(endpoints, reg)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.baseClient)

	// An empty access token forces the token source to use the refresh grant.
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: reg.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	refreshed := *reg
	refreshed.AccessToken = token.AccessToken
	refreshed.Expires = token.Expiry
	if token.RefreshToken != "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	a.logger.Debug("access token refreshed", "expires", refreshed.Expires)
	return &refreshed, nil
}

func (a *Authenticator) oauthConfig(endpoints Endpoints, reg *DeviceRegistration) *oauth2.Config {
	return &oauth2.Config{
		ClientID: reg.DeviceInfo.DeviceSerialNumber,
		Endpoint: oauth2.Endpoint{
			TokenURL:  endpoints.Auth + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
