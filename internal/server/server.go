// Package server exposes the validator's read-only status over HTTP.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/metrics"
	"github.com/dogelayer/validator/internal/validator"
)

const shutdownTimeout = 5 * time.Second

// SnapshotSource returns the latest published status. *validator.Validator
// implements it.
type SnapshotSource interface {
	Snapshot() *validator.Snapshot
}

// StdResponse is the envelope of every JSON reply.
type StdResponse[T any] struct {
	Body  T       `json:"body"`
	Error *string `json:"error,omitempty"`
}

// Health is the body of GET /health.
type Health struct {
	Status             string `json:"status"`
	Hotkey             string `json:"hotkey"`
	InstanceID         string `json:"instance_id"`
	Phase              string `json:"phase"`
	LastScoredEpoch    uint64 `json:"last_scored_epoch"`
	LastCommittedEpoch uint64 `json:"last_committed_epoch"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
}

type Server struct {
	App     *fiber.App
	address string
	source  SnapshotSource
}

func NewServer(address string, source SnapshotSource) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          fiberErrHandler,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	app.Use(recover.New())
	app.Use(ZstdMiddleware([]string{"/health", "/metrics"}))

	s := &Server{App: app, address: address, source: source}
	app.Get("/health", s.handleHealth)
	app.Get("/scores", s.handleScores)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})))
	return s
}

func createResponse[T any](body T, err error) StdResponse[T] {
	if err != nil {
		msg := err.Error()
		return StdResponse[T]{Body: body, Error: &msg}
	}
	return StdResponse[T]{Body: body}
}

func fiberErrHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	log.Error().
		Err(err).
		Int("status_code", code).
		Str("path", ctx.Path()).
		Str("method", ctx.Method()).
		Msg("status request failed")

	return ctx.Status(code).JSON(createResponse(map[string]any{}, err))
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	snap := s.source.Snapshot()
	if snap == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(createResponse(Health{Status: "starting"}, nil))
	}

	return c.JSON(createResponse(Health{
		Status:             "ok",
		Hotkey:             snap.Hotkey,
		InstanceID:         snap.InstanceID,
		Phase:              snap.Phase,
		LastScoredEpoch:    snap.LastScoredEpoch,
		LastCommittedEpoch: snap.LastCommittedEpoch,
		UptimeSeconds:      int64(time.Since(snap.StartedAt).Seconds()),
	}, nil))
}

func (s *Server) handleScores(c *fiber.Ctx) error {
	snap := s.source.Snapshot()
	if snap == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "no snapshot published yet")
	}
	return c.JSON(createResponse(snap, nil))
}

// Start serves until ctx is done, then shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.address).Msg("status server listening")
		errCh <- s.App.Listen(s.address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return s.App.ShutdownWithTimeout(shutdownTimeout)
}
