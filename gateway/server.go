package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/prilive-com/floodgate"
)

// Server is the HTTP gateway. It owns one Shield; the shield is created at
// construction and never shared with any other entry point.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upstream floodgate.Messenger
	shield   *floodgate.Shield
	limiter  *rate.Limiter

	shieldOpts []floodgate.Option
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithShieldOptions appends options to the server's shield, overriding the
// config-derived ones (useful for testing).
func WithShieldOptions(opts ...floodgate.Option) Option {
	return func(s *Server) { s.shieldOpts = append(s.shieldOpts, opts...) }
}

// NewServer creates a gateway in front of upstream.
func NewServer(cfg Config, upstream floodgate.Messenger, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		upstream: upstream,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	shieldOpts := append([]floodgate.Option{
		floodgate.WithMinRequestInterval(cfg.MinRequestInterval),
		floodgate.WithPerChatInterval(cfg.PerChatInterval),
		floodgate.WithEditLimits(cfg.EditsPerSecond, cfg.EditsPerHour),
		floodgate.WithMaxRetries(cfg.MaxRetries),
		floodgate.WithLogger(s.logger),
	}, s.shieldOpts...)
	s.shield = floodgate.New(shieldOpts...)

	return s
}

// Shield returns the server's privately owned shield, mainly for monitoring.
func (s *Server) Shield() *floodgate.Shield { return s.shield }

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestID)
	r.Use(s.logging)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Use(s.rateLimit)

		r.Post("/messages/send", s.handleSend)
		r.Put("/messages/edit", s.handleEdit)
		r.Delete("/messages/delete", s.handleDelete)
		r.Post("/messages/forward", s.handleForward)
		r.Get("/chats", s.handleGetChats)
		r.Get("/chats/{chatID}/messages", s.handleGetMessages)
		r.Get("/me", s.handleGetMe)
	})

	return r
}

// Start runs the server until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
