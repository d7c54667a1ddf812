package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/abx/internal/retailer"
	"github.com/desertthunder/abx/internal/shared"
)

// Source records how a session was established.
type Source string

const (
	SourceFile  Source = "file"
	SourceOAuth Source = "OAuth"
)

// Credentials are supplied with every authentication request and never persisted in plaintext.
type Credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CountryCode string `json:"countryCode"`
}

// Validate reports [shared.ErrInvalidRequest] naming the first blank field.
func (c Credentials) Validate() error {
	fields := []struct{ name, value string }{
		{"email", c.Email},
		{"password", c.Password},
		{"countryCode", c.CountryCode},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", shared.ErrInvalidRequest, f.name)
		}
	}
	return nil
}

// Descriptor summarises an established session for callers.
type Descriptor struct {
	Source  Source `json:"source"`
	Summary string `json:"summary"`
}

// String renders "<device> with access token <masked> from <source>".
func (d Descriptor) String() string {
	return d.Summary + " from " + string(d.Source)
}

// Forwarder sends requests on behalf of an authenticated session.
type Forwarder interface {
	Do(ctx context.Context, method, path string, params map[string]any) (any, error)
}

// Session is the live handle built from a valid device registration.
type Session struct {
	Registration *retailer.DeviceRegistration
	Source       Source
	Established  time.Time
	client       Forwarder
}

// Descriptor describes the session without exposing the access token.
func (s *Session) Descriptor() Descriptor {
	return Descriptor{Source: s.Source, Summary: s.Registration.Summary()}
}

// Status is a point-in-time view of the manager, safe to serialise.
type Status struct {
	Authenticated bool   `json:"authenticated"`
	Source        Source `json:"source,omitempty"`
	Pending       string `json:"pending,omitempty"`
}
