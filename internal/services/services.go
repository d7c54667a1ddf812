package services

import (
	"context"

	"github.com/desertthunder/abx/internal/models"
	"github.com/desertthunder/abx/internal/server"
	"github.com/desertthunder/abx/internal/session"
)

// Shim is the set of calls the CLI makes against a running shim.
type Shim interface {
	// Authenticate signs the shim in and returns its session description.
	Authenticate(ctx context.Context, creds session.Credentials) (string, error)

	// Get, Put and Post proxy a call to the retailer API.
	Get(ctx context.Context, path string, params map[string]any) (any, error)
	Put(ctx context.Context, path string, params map[string]any) (any, error)
	Post(ctx context.Context, path string, params map[string]any) error

	// Answer delivers the answer to the challenge the shim is waiting on.
	Answer(ctx context.Context, answer string) (string, error)

	// Health reports whether the shim is up and signed in.
	Health(ctx context.Context) (*server.HealthResponse, error)

	// Library fetches and simplifies the account's library.
	Library(ctx context.Context) (*models.Library, error)
}

var _ Shim = (*ShimService)(nil)
