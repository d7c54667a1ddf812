package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/abx/internal/session"
	"github.com/urfave/cli/v3"
)

// AuthLogin authenticates the shim with flag values, falling back to the configured account.
//
// The call blocks while the shim waits on challenges; answer them with "abx auth answer".
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	creds := session.Credentials{
		Email:       firstNonEmpty(cmd.String("email"), r.config.Credentials.Email),
		Password:    firstNonEmpty(cmd.String("password"), r.config.Credentials.Password),
		CountryCode: firstNonEmpty(cmd.String("country"), r.config.Credentials.CountryCode),
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	r.logger.Info("authenticating shim", "email", creds.Email, "country", creds.CountryCode)

	auth, err := r.shim.Authenticate(ctx, creds)
	if err != nil {
		return err
	}

	return r.writePlain("✓ Authenticated: %s\n", auth)
}

// AuthAnswer delivers an answer to the challenge the shim is waiting on. An empty answer confirms an approval.
func (r *Runner) AuthAnswer(ctx context.Context, cmd *cli.Command) error {
	answer := cmd.StringArg("answer")

	echo, err := r.shim.Answer(ctx, answer)
	if err != nil {
		return err
	}

	return r.writePlain("✓ Answer sent: %q\n", echo)
}

// AuthStatus checks current authentication state by calling the /health endpoint.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	r.logger.Debug("checking auth status")

	health, err := r.shim.Health(ctx)
	if err != nil {
		return fmt.Errorf("shim unreachable: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(health, false)
	}

	r.writePlain("✓ Shim is healthy\n")
	r.writePlain("Status: %s\n", health.Status)
	if health.Authenticated {
		r.writePlain("Authentication: ✓ Authenticated (%s)\n", health.Source)
	} else {
		r.writePlain("Authentication: ✗ Not authenticated\n")
	}
	if health.Pending != "" {
		r.writePlain("Waiting on: %s challenge\n", health.Pending)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
