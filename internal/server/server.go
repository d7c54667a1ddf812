package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/abx/internal/session"
	"github.com/desertthunder/abx/internal/shared"
)

const shutdownTimeout = 5 * time.Second

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows which paths it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Sessions is the part of [session.Manager] the handlers depend on.
type Sessions interface {
	Authenticate(ctx context.Context, creds session.Credentials) (session.Descriptor, error)
	Forward(ctx context.Context, method, url string, params map[string]any) (any, error)
	Answer(answer string) bool
	Status() session.Status
}

// NewRouter registers every endpoint for sessions behind logging and panic recovery.
func NewRouter(sessions Sessions, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))

	api := NewAPI(sessions, logger)
	router.Handle(http.MethodPost, "/auth", http.HandlerFunc(api.Auth))
	router.Handle(http.MethodGet, "/get", http.HandlerFunc(api.Get))
	router.Handle(http.MethodPut, "/put", http.HandlerFunc(api.Put))
	router.Handle(http.MethodPost, "/post", http.HandlerFunc(api.Post))
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(api.Health))
	router.Handler(NewInputHandler(sessions, logger))

	return router
}

// Server runs the shim's HTTP listener.
type Server struct {
	http   *http.Server
	logger *log.Logger
}

// New creates a [Server] listening on addr.
func New(addr string, sessions Sessions, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(sessions, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Run serves until ctx is cancelled, then shuts down gracefully.
//
// Handlers blocked on a challenge are given [shutdownTimeout] to finish before the listener is closed.
func (s *Server) Run(ctx context.Context) error {
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("shim listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("error shutting down server", "error", err)
		return s.http.Close()
	}
	return nil
}
