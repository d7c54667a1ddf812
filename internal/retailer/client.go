package retailer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/abx/internal/shared"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// ClientOptions configures a [Client].
type ClientOptions struct {
	Overrides  Endpoints
	RateLimit  float64 // Requests per second, 0 disables limiting
	Timeout    time.Duration
	HTTPClient *http.Client // Base transport for the oauth2 client
}

// Client issues authenticated requests for one device registration.
type Client struct {
	http    *resty.Client
	baseURL string
	limiter *rate.Limiter
}

// NewClient builds a [Client] whose requests carry reg's bearer token.
//
// The oauth2 transport refreshes the token on its own once it expires.
func NewClient(ctx context.Context, reg *DeviceRegistration, opts ClientOptions) (*Client, error) {
	locale, err := LookupLocale(reg.LocaleCode)
	if err != nil {
		return nil, err
	}
	endpoints := locale.Endpoints().Override(opts.Overrides)

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	conf := &oauth2.Config{
		ClientID: reg.DeviceInfo.DeviceSerialNumber,
		Endpoint: oauth2.Endpoint{TokenURL: endpoints.Auth + tokenPath, AuthStyle: oauth2.AuthStyleInParams},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	authed := conf.Client(ctx, reg.Token())

	c := &Client{
		http: resty.NewWithClient(authed).
			SetBaseURL(endpoints.API).
			SetTimeout(opts.Timeout).
			SetHeader("Accept", "application/json"),
		baseURL: endpoints.API,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}

	return c, nil
}

// BaseURL returns the API host requests are resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// Get performs a GET with params encoded in the query string.
func (c *Client) Get(ctx context.Context, path string, params map[string]any) (any, error) {
	return c.Do(ctx, http.MethodGet, path, params)
}

// Put performs a PUT with params as the JSON body.
func (c *Client) Put(ctx context.Context, path string, params map[string]any) (any, error) {
	return c.Do(ctx, http.MethodPut, path, params)
}

// Post performs a POST with params as the JSON body.
func (c *Client) Post(ctx context.Context, path string, params map[string]any) (any, error) {
	return c.Do(ctx, http.MethodPost, path, params)
}

// Do sends a request and decodes the response.
//
// JSON responses are decoded into generic values; other bodies are returned as a string and an empty body as nil.
func (c *Client) Do(ctx context.Context, method, path string, params map[string]any) (any, error) {
	target, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", shared.ErrUpstream, err)
		}
	}

	req := c.http.R().SetContext(ctx)
	switch method {
	case http.MethodGet, http.MethodDelete:
		for k, v := range params {
			req.SetQueryParam(k, queryValue(v))
		}
	default:
		if params != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(params)
		}
	}

	resp, err := req.Execute(method, target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstream, err)
	}
	if resp.IsError() {
		return nil, newAPIError(resp.StatusCode(), resp.Body())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, nil
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body), nil
	}
	return data, nil
}

// resolvePath accepts "1.0/library", "/1.0/library" or an absolute URL.
func resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: url is required", shared.ErrInvalidRequest)
	}

	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("%w: unsupported scheme %q", shared.ErrInvalidRequest, u.Scheme)
		}
		return path, nil
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, nil
}

// queryValue flattens a decoded JSON value into a query parameter; lists become comma separated.
func queryValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = queryValue(item)
		}
		return strings.Join(parts, ",")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}
