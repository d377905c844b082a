package server

import (
	"context"
	"fmt"
	"time"

	"github.com/K3das/qin-bridge/bridge"
	"github.com/K3das/qin-bridge/feedback"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
)

const (
	ServiceName = "qin-clawdbot-bridge"

	DefaultBodyLimit = 1024 * 1024 * 12
	shutdownTimeout  = time.Second * 10
)

type FeedbackHandler interface {
	Handle(ctx context.Context, e feedback.Event)
}

type Options struct {
	ParentLogger *zap.Logger
	Bridge       *bridge.Bridge
	Feedback     FeedbackHandler
	// History backs GET /feedback/recent, the route is not registered if nil.
	History feedback.History

	// StaticDir is served for every path not matched by a route, nothing is
	// served if empty.
	StaticDir string
	BodyLimit int
}

type Server struct {
	log *zap.Logger

	app      *fiber.App
	bridge   *bridge.Bridge
	feedback FeedbackHandler
	history  feedback.History
}

func New(options Options) *Server {
	s := &Server{
		log:      options.ParentLogger.Named("server"),
		bridge:   options.Bridge,
		feedback: options.Feedback,
		history:  options.History,
	}

	bodyLimit := options.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyLimit
	}

	s.app = fiber.New(fiber.Config{
		AppName:               ServiceName,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(s.requestContext)
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: s.logPanic,
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,X-Transcribe-Only,X-Request-ID",
		ExposeHeaders: "X-Request-ID",
	}))

	s.app.Get("/health", s.handleHealth)
	s.app.Get("/menu", s.handleMenu)
	s.app.Post("/action", s.handleAction)
	s.app.Post("/audio", s.handleAudio)
	s.app.Post("/chat", s.handleChat)
	s.app.Get("/feedback", s.handleFeedback)
	if s.history != nil {
		s.app.Get("/feedback/recent", s.handleRecentFeedback)
	}

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s.app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	if options.StaticDir != "" {
		s.app.Static("/", options.StaticDir)
	}

	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errs := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		errs <- s.app.Listen(addr)
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("listening: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	return <-errs
}
