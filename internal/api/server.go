// Package api exposes on-demand matches, company signals and the digest and
// refresh triggers over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/spigell/talent-radar/internal/dispatcher"
	"github.com/spigell/talent-radar/internal/matching"
	"github.com/spigell/talent-radar/internal/signals"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultTriggerLimit   = 6
)

// Matcher answers on-demand match requests.
type Matcher interface {
	FindMatches(ctx context.Context, candidateID string, q matching.Query) (*matching.Result, error)
}

// Digest runs the daily digest.
type Digest interface {
	Run(ctx context.Context, runDate time.Time) (*dispatcher.Summary, error)
}

// Refresher recomputes the company signals.
type Refresher interface {
	Refresh(ctx context.Context, asOf time.Time) (*signals.RefreshSummary, error)
}

// NotificationLog lists the digests sent to a candidate.
type NotificationLog interface {
	Notifications(ctx context.Context, candidateID string) ([]dispatcher.Notification, error)
}

// Pinger reports whether the store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Listen         string        `mapstructure:"listen"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	// TriggerLimit caps digest and refresh triggers per minute.
	TriggerLimit int `mapstructure:"trigger-limit"`
	// Query is used when a match request does not override threshold or k.
	Query matching.Query `mapstructure:"query"`
}

// Deps are the services behind the routes. Notifications and Health are optional.
type Deps struct {
	Matcher       Matcher
	Board         *signals.Board
	Digest        Digest
	Signals       Refresher
	Notifications NotificationLog
	Health        Pinger
	Logger        *zap.Logger
}

type Server struct {
	app  *fiber.App
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Matcher == nil:
		return nil, errors.New("matcher is required")
	case deps.Board == nil:
		return nil, errors.New("signal board is required")
	case deps.Digest == nil:
		return nil, errors.New("digest is required")
	case deps.Signals == nil:
		return nil, errors.New("signal refresher is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.TriggerLimit <= 0 {
		cfg.TriggerLimit = defaultTriggerLimit
	}
	if cfg.Query.K <= 0 {
		cfg.Query.K = 10
	}

	s := &Server{cfg: cfg, deps: deps}
	s.app = fiber.New(fiber.Config{
		AppName:               "talent-radar",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(s.requestLogger)
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	trigger := limiter.New(limiter.Config{
		Max:               s.cfg.TriggerLimit,
		Expiration:        time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		LimitReached: func(c *fiber.Ctx) error {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		},
	})

	s.app.Get("/healthz", s.health)
	s.app.Get("/candidates/:id/matches", s.matches)
	s.app.Get("/candidates/:id/notifications", s.notifications)
	s.app.Get("/companies/:id/signal", s.signal)
	s.app.Post("/digest/run", trigger, s.runDigest)
	s.app.Post("/signals/refresh", trigger, s.refreshSignals)
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Listen == "" {
		return errors.New("listen address is required")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.cfg.Listen)
	}()
	s.deps.Logger.Info("http server started", zap.String("listen", s.cfg.Listen))

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.deps.Logger.Info("http server stopped")
	return nil
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		// The error handler has not run yet; the final status comes from the error.
		status, _ = statusOf(err)
	}

	fields := []zap.Field{
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("took", time.Since(start)),
	}
	if status >= fiber.StatusInternalServerError {
		s.deps.Logger.Error("request failed", append(fields, zap.Error(err))...)
	} else {
		s.deps.Logger.Debug("request served", fields...)
	}
	return err
}
