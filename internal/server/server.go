package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/Mkrolick/co-streamer/internal/logging"
	"github.com/Mkrolick/co-streamer/internal/model"
)

// StatusSource exposes the live state of a run
type StatusSource interface {
	RunID() string
	Statuses() []model.ChannelStatus
}

// Server serves read-only status and metrics for a running orchestrator
type Server struct {
	app  *fiber.App
	addr string
	log  zerolog.Logger
}

func New(addr string, source StatusSource, registry *prometheus.Registry, log zerolog.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName: "co-streamer",
		}),
		addr: addr,
		log:  logging.Component(log, "server"),
	}

	s.app.Use(s.requestLogger())
	s.app.Get("/health/live", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/status", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"run_id":   source.RunID(),
			"channels": source.Statuses(),
		})
	})
	s.app.Get("/metrics", metricsHandler(registry))

	return s
}

// Start blocks serving until Shutdown is called
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.addr).Msg("status server listening")
	return s.app.Listen(s.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func metricsHandler(registry *prometheus.Registry) fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		evt := s.log.Debug()
		if status >= 500 {
			evt = s.log.Error()
		} else if status >= 400 {
			evt = s.log.Warn()
		}

		evt.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")

		return err
	}
}
