package session

import (
	"context"

	"github.com/desertthunder/abx/internal/retailer"
)

// RetailerProvider is the [Provider] backed by the real retailer.
type RetailerProvider struct {
	auth *retailer.Authenticator
	opts retailer.ClientOptions
}

// NewRetailerProvider combines an authenticator with the options used for every session client.
func NewRetailerProvider(auth *retailer.Authenticator, opts retailer.ClientOptions) *RetailerProvider {
	return &RetailerProvider{auth: auth, opts: opts}
}

func (p *RetailerProvider) Refresh(ctx context.Context, reg *retailer.DeviceRegistration) (*retailer.DeviceRegistration, error) {
	return p.auth.Refresh(ctx, reg)
}

func (p *RetailerProvider) Login(ctx context.Context, req retailer.LoginRequest, solver retailer.ChallengeSolver) (*retailer.DeviceRegistration, error) {
	return p.auth.Login(ctx, req, solver)
}

func (p *RetailerProvider) NewClient(ctx context.Context, reg *retailer.DeviceRegistration) (Forwarder, error) {
	c, err := retailer.NewClient(ctx, reg, p.opts)
	if err != nil {
		return nil, err
	}
	return c, nil
}
