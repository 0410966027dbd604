// Package server exposes screening runs, overrides and the listing cache over
// HTTP.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/spigell/ats-screener/internal/batch"
	"github.com/spigell/ats-screener/internal/listings"
	"github.com/spigell/ats-screener/internal/logger"
	"github.com/spigell/ats-screener/internal/screening"
)

const shutdownTimeout = 10 * time.Second

// Screener is what the API needs from the batch orchestrator.
type Screener interface {
	Run(ctx context.Context, req batch.RunRequest) (*batch.RunResult, error)
	Reclassify(ctx context.Context, req batch.ReclassifyRequest) (*batch.RunResult, error)
	Override(ctx context.Context, req batch.OverrideRequest) (*screening.Submission, error)
	Get(ctx context.Context, id string) (*screening.Submission, error)
}

type Config struct {
	Addr string `mapstructure:"addr" validate:"required"`
	// Thresholds apply to requests that do not carry their own.
	Thresholds screening.Thresholds `mapstructure:"-"`
}

type Server struct {
	app      *fiber.App
	cfg      Config
	screener Screener
	listings listings.Store
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg Config, screener Screener, cache listings.Store, log *zap.Logger) *Server {
	if cfg.Thresholds == (screening.Thresholds{}) {
		cfg.Thresholds = screening.DefaultThresholds()
	}

	s := &Server{
		app:      fiber.New(fiber.Config{AppName: "ats-screener"}),
		cfg:      cfg,
		screener: screener,
		listings: cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.OrNop(log),
		now:      time.Now,
	}

	s.app.Use(accessLog(s.logger))
	s.app.Use(errorMiddleware(s.logger))
	s.registerRoutes()
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", func(c fiber.Ctx) error {
		return success(c, fiber.StatusOK, nil)
	})

	v1 := s.app.Group("/api/v1")
	v1.Post("/runs", s.createRun)
	v1.Post("/reclassify", s.reclassify)
	v1.Get("/submissions/:id", s.getSubmission)
	v1.Post("/submissions/:id/override", s.overrideDecision)

	v1.Post("/listings", s.upsertListing)
	v1.Get("/listings", s.queryListings)
	v1.Post("/listings/matches", s.matchListing)
}

// Listen serves until ctx is done, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- s.app.Listen(s.cfg.Addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// bind decodes the JSON body into out and validates its struct tags.
func (s *Server) bind(c fiber.Ctx, out any) error {
	if err := c.Bind().JSON(out); err != nil {
		return badRequest(err)
	}
	if err := s.validate.Struct(out); err != nil {
		return NewAppError(fiber.StatusUnprocessableEntity, err.Error(), nil, err)
	}
	return nil
}
