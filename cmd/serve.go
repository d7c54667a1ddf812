package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/abx/internal/notify"
	"github.com/desertthunder/abx/internal/retailer"
	"github.com/desertthunder/abx/internal/server"
	"github.com/desertthunder/abx/internal/session"
	"github.com/desertthunder/abx/internal/shared"
	"github.com/desertthunder/abx/internal/vault"
	"github.com/urfave/cli/v3"
)

// Serve runs the shim until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := *r.config
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}
	interactive := cmd.Bool("interactive")

	manager := r.newManager(&cfg, interactive)
	if interactive {
		go r.feedAnswers(ctx, manager)
	}

	srv := server.New(cfg.Server.Addr(), manager, shared.WithLogger(r.logger, "component", "server"))
	r.logger.Info("Starting shim", "addr", srv.Addr(), "interactive", interactive)
	return srv.Run(ctx)
}

// newManager wires the credential file, the retailer and the notification channel into a [session.Manager].
func (r *Runner) newManager(cfg *shared.Config, interactive bool) *session.Manager {
	overrides := retailer.Endpoints{API: cfg.Retailer.APIURL, Auth: cfg.Retailer.AuthURL}

	auth := retailer.NewAuthenticator(retailer.AuthOptions{
		Overrides:     overrides,
		MaxChallenges: cfg.Auth.MaxChallenges,
		Timeout:       cfg.Retailer.Timeout,
		HTTPClient:    r.httpClient,
		Logger:        shared.WithLogger(r.logger, "component", "retailer"),
	})
	provider := session.NewRetailerProvider(auth, retailer.ClientOptions{
		Overrides:  overrides,
		RateLimit:  cfg.Retailer.RateLimit,
		Timeout:    cfg.Retailer.Timeout,
		HTTPClient: r.httpClient,
	})

	var notifier session.Notifier = notify.New(r.output)
	if interactive {
		notifier = &browserNotifier{Notifier: notify.New(r.output), open: r.openBrowser, logger: r.logger}
	}

	return session.NewManager(session.Options{
		Store:            vault.NewFileStore(cfg.Auth.CredentialsPath, cfg.Auth.SnapshotPath),
		Provider:         provider,
		Notifier:         notifier,
		Logger:           shared.WithLogger(r.logger, "component", "session"),
		ChallengeTimeout: cfg.Auth.ChallengeTimeout,
	})
}

// browserNotifier also opens captcha images in the browser.
type browserNotifier struct {
	*notify.Notifier
	open   func(string) error
	logger *log.Logger
}

func (n *browserNotifier) Challenge(c retailer.Challenge) error {
	if err := n.Notifier.Challenge(c); err != nil {
		return err
	}
	if c.Kind == retailer.ChallengeCaptcha && c.URL != "" {
		if err := n.open(c.URL); err != nil {
			n.logger.Warn("Could not open captcha in browser", "url", c.URL, "error", err)
		}
	}
	return nil
}

// feedAnswers hands each line read from input to the pending challenge until input ends or ctx is done.
//
// The reader goroutine stays blocked on input after ctx is done and exits with the process.
func (r *Runner) feedAnswers(ctx context.Context, answers interface{ Answer(string) bool }) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			r.logger.Error("Reading answers from stdin failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !answers.Answer(strings.TrimSpace(line)) {
				r.logger.Warn("No challenge is waiting for an answer, input ignored")
			}
		}
	}
}
