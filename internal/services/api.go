// Client for a running shim
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/abx/internal/models"
	"github.com/desertthunder/abx/internal/server"
	"github.com/desertthunder/abx/internal/session"
	"github.com/desertthunder/abx/internal/shared"
	"github.com/go-resty/resty/v2"
)

const (
	defaultBaseURL = "http://localhost:5000"
	libraryPath    = "1.0/library"
	libraryGroups  = "listening_status, media"
)

// Options configures a [ShimService].
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Account used to re-authenticate the shim when a proxied call fails. Retries are off when incomplete.
	Credentials shared.CredentialsConfig
	Logger      *log.Logger
	Now         func() time.Time
}

// ShimService makes requests against a running shim.
type ShimService struct {
	http   *resty.Client
	creds  shared.CredentialsConfig
	logger *log.Logger
	now    func() time.Time
}

// NewShimService creates a client for the shim at opts.BaseURL.
func NewShimService(opts Options) *ShimService {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// resty fills in a missing transport on the client it wraps.
	hc := *opts.HTTPClient
	return &ShimService{
		http: resty.NewWithClient(&hc).
			SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
			SetHeader("Accept", "application/json"),
		creds:  opts.Credentials,
		logger: opts.Logger,
		now:    opts.Now,
	}
}

// envelope mirrors [server.Response] but keeps data undecoded.
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Auth    string          `json:"auth"`
	Data    json.RawMessage `json:"data"`
}

// Authenticate posts creds to /auth. It blocks while the shim waits on challenges.
func (s *ShimService) Authenticate(ctx context.Context, creds session.Credentials) (string, error) {
	req := s.http.R().SetContext(ctx).SetHeader("Content-Type", "application/json").SetBody(creds)

	env, err := s.send(req, http.MethodPost, "/auth")
	if err != nil {
		return "", err
	}
	if !env.Success {
		if env.Error == "Not authenticated" {
			return "", shared.ErrNotAuthenticated
		}
		return "", fmt.Errorf("%w: %s", shared.ErrAuthFailed, strings.TrimPrefix(env.Error, shared.ErrAuthFailed.Error()+": "))
	}
	return env.Auth, nil
}

// Get proxies a GET. params are sent as a JSON object in the params query parameter.
func (s *ShimService) Get(ctx context.Context, path string, params map[string]any) (any, error) {
	raw, err := s.withRetry(ctx, http.MethodGet, path, params)
	if err != nil {
		return nil, err
	}
	return decodeData(raw)
}

// Put proxies a PUT and returns the upstream response.
func (s *ShimService) Put(ctx context.Context, path string, params map[string]any) (any, error) {
	raw, err := s.withRetry(ctx, http.MethodPut, path, params)
	if err != nil {
		return nil, err
	}
	return decodeData(raw)
}

// Post proxies a POST. The shim does not relay the upstream response.
func (s *ShimService) Post(ctx context.Context, path string, params map[string]any) error {
	_, err := s.withRetry(ctx, http.MethodPost, path, params)
	return err
}

// Answer posts to /input and returns the echoed answer.
func (s *ShimService) Answer(ctx context.Context, answer string) (string, error) {
	var echo server.InputRequest
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(server.InputRequest{Answer: answer}).
		SetResult(&echo).
		ForceContentType("application/json").
		Post("/input")
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: /input returned %d", shared.ErrInvalidRequest, resp.StatusCode())
	}
	return echo.Answer, nil
}

// Health fetches /health.
func (s *ShimService) Health(ctx context.Context) (*server.HealthResponse, error) {
	var health server.HealthResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetResult(&health).
		ForceContentType("application/json").
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: /health returned %d", shared.ErrServiceUnavailable, resp.StatusCode())
	}
	return &health, nil
}

// libraryItem holds the fields of a library item that make up a [models.Book].
type libraryItem struct {
	ASIN             string            `json:"asin"`
	Title            string            `json:"title"`
	RuntimeLengthMin *int              `json:"runtime_length_min"`
	ProductImages    map[string]string `json:"product_images"`
	ListeningStatus  *struct {
		PercentComplete      *float64 `json:"percent_complete"`
		TimeRemainingSeconds *int     `json:"time_remaining_seconds"`
	} `json:"listening_status"`
}

// Library fetches 1.0/library with listening status and media, simplified to books.
func (s *ShimService) Library(ctx context.Context) (*models.Library, error) {
	raw, err := s.withRetry(ctx, http.MethodGet, libraryPath, map[string]any{"response_groups": libraryGroups})
	if err != nil {
		return nil, err
	}

	var page struct {
		Items []libraryItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("%w: unexpected library response: %v", shared.ErrUpstream, err)
	}

	lib := &models.Library{Books: make([]models.Book, 0, len(page.Items)), FetchedAt: s.now()}
	for _, item := range page.Items {
		lib.Books = append(lib.Books, item.book())
	}
	return lib, nil
}

func (i libraryItem) book() models.Book {
	b := models.Book{ASIN: i.ASIN, Title: i.Title, ImageURL: firstImage(i.ProductImages)}
	if i.RuntimeLengthMin != nil {
		b.TotalLengthMin = *i.RuntimeLengthMin
	}
	if i.ListeningStatus != nil {
		b.ProgressPercent = i.ListeningStatus.PercentComplete
		b.LengthLeftSec = i.ListeningStatus.TimeRemainingSeconds
	}
	return b
}

// firstImage picks the image with the lowest key so the choice is stable.
func firstImage(images map[string]string) string {
	for _, key := range slices.Sorted(maps.Keys(images)) {
		if images[key] != "" {
			return images[key]
		}
	}
	return ""
}

// withRetry forwards a proxied call and, when it fails, re-authenticates once and repeats it.
func (s *ShimService) withRetry(ctx context.Context, method, path string, params map[string]any) (json.RawMessage, error) {
	data, err := s.forward(ctx, method, path, params)
	if err == nil || !s.retryable(ctx, err) {
		return data, err
	}

	s.logger.Warn("Request failed, re-authenticating", "method", method, "path", path, "error", err)
	creds := session.Credentials{Email: s.creds.Email, Password: s.creds.Password, CountryCode: s.creds.CountryCode}
	desc, authErr := s.Authenticate(ctx, creds)
	if authErr != nil {
		return nil, fmt.Errorf("%w (re-authentication failed: %v)", err, authErr)
	}
	s.logger.Info("Re-authenticated", "auth", desc)

	return s.forward(ctx, method, path, params)
}

func (s *ShimService) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || !s.creds.Complete() {
		return false
	}
	return !errors.Is(err, shared.ErrInvalidRequest) && !errors.Is(err, shared.ErrServiceUnavailable)
}

// forward sends one proxied call and returns its undecoded data.
func (s *ShimService) forward(ctx context.Context, method, path string, params map[string]any) (json.RawMessage, error) {
	req := s.http.R().SetContext(ctx)

	var endpoint string
	switch method {
	case http.MethodGet:
		endpoint = "/get"
		req.SetQueryParam("url", path)
		if params != nil {
			encoded, err := json.Marshal(params)
			if err != nil {
				return nil, fmt.Errorf("%w: params: %v", shared.ErrInvalidRequest, err)
			}
			req.SetQueryParam("params", string(encoded))
		}
	case http.MethodPut:
		endpoint = "/put"
	case http.MethodPost:
		endpoint = "/post"
	default:
		return nil, fmt.Errorf("%w: unsupported method %s", shared.ErrInvalidRequest, method)
	}
	if method != http.MethodGet {
		req.SetHeader("Content-Type", "application/json").SetBody(server.ProxyRequest{URL: path, Params: params})
	}

	env, err := s.send(req, method, endpoint)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		if env.Error == "Not authenticated" {
			return nil, shared.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("%w: %s", shared.ErrUpstream, strings.TrimPrefix(env.Error, shared.ErrUpstream.Error()+": "))
	}
	return env.Data, nil
}

// send executes req and decodes the envelope. A 400 becomes [shared.ErrInvalidRequest].
func (s *ShimService) send(req *resty.Request, method, endpoint string) (*envelope, error) {
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%w: %s returned %d with a non-JSON body", shared.ErrUpstream, endpoint, resp.StatusCode())
	}

	switch {
	case resp.StatusCode() == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", shared.ErrInvalidRequest, env.Error)
	case resp.IsError() && env.Error == "":
		return nil, fmt.Errorf("%w: %s returned %d", shared.ErrUpstream, endpoint, resp.StatusCode())
	}
	return &env, nil
}

func decodeData(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}
	return data, nil
}
