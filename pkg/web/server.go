// Package web serves tracking output to browser subscribers and accepts
// camera frames from producers
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/companion"
	"github.com/teslashibe/go-facetrack/pkg/framebuf"
	"github.com/teslashibe/go-facetrack/pkg/hub"
	"github.com/teslashibe/go-facetrack/pkg/pipeline"
	"github.com/teslashibe/go-facetrack/pkg/protocol"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Pipeline is the part of the coordinator the server drives
type Pipeline interface {
	Submit(frame vision.Frame, ts time.Time) bool
	UpdateConfig(fn func(*pipeline.Config)) error
	Config() pipeline.Config
	Stats() pipeline.Stats
	Ready() bool
}

// Companion is the part of the companion client the server reports on and reconfigures
type Companion interface {
	Connected() bool
	SetAddress(host string, port int)
}

// Decoder turns an encoded image from a producer into a frame
type Decoder func(data []byte) (vision.Frame, error)

// Server is the tracking web server
type Server struct {
	app       *fiber.App
	port      int
	pipeline  Pipeline
	companion Companion // May be nil
	decode    Decoder

	// Subscribers of /ws/tracking
	tracking *hub.Hub
	// Producers on /ws/ingest
	sources *Sources

	logger *slog.Logger
}

// NewServer creates the server. companion may be nil.
func NewServer(port int, p Pipeline, comp Companion, decode Decoder) *Server {
	s := &Server{
		port:      port,
		pipeline:  p,
		companion: comp,
		decode:    decode,
		tracking:  hub.New("tracking"),
		logger:    log.Component("web"),
	}
	s.sources = newSources(s.ingest)
	s.tracking.OnMessage(s.handleSubscriberMessage)

	app := fiber.New(fiber.Config{
		AppName:               "facetrack",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// CORS for local development
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"ready":   s.pipeline.Ready(),
			"sources": s.sources.Count(),
		})
	})

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleGetConfig)
	api.Post("/config", s.handleUpdateConfig)
	s.sources.RegisterAPIRoutes(api)

	// WebSocket routes
	s.registerTrackingRoutes(app)
	s.sources.RegisterRoutes(app)

	s.app = app
	return s
}

// App returns the underlying Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Tracking returns the subscriber hub
func (s *Server) Tracking() *hub.Hub {
	return s.tracking
}

// Serve runs the hub and serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.tracking.Run(hubCtx)

	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listener(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return fmt.Errorf("shutdown web server: %w", err)
		}
		return nil
	}
}

// Start listens on the configured port and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	s.logger.Info("web server listening", "url", fmt.Sprintf("http://localhost:%d", s.port))
	return s.Serve(ctx, ln)
}

// =============================================================================
// Publishing (safe from any goroutine, never blocks)
// =============================================================================

// PublishFrame sends the binary buffer followed by its JSON side message
func (s *Server) PublishFrame(out pipeline.Output) {
	s.tracking.BroadcastBinary(framebuf.Encode(out.Buffer))

	msg, err := protocol.NewTrackingMessage(out.Sequence, out.Timestamp, out.Subjects,
		out.Hands, out.ActiveTriggers, out.PendingTriggers)
	if err != nil {
		s.logger.Warn("encode tracking message", "error", err)
		return
	}
	s.broadcast(msg)
}

// PublishError relays a pipeline error to subscribers
func (s *Server) PublishError(ev pipeline.ErrorEvent) {
	msg, err := protocol.NewErrorMessage(ev.Message, ev.Code)
	if err == nil {
		s.broadcast(msg)
	}
}

// PublishReady tells subscribers the pipeline finished loading
func (s *Server) PublishReady() {
	msg, err := protocol.NewReadyMessage()
	if err == nil {
		s.broadcast(msg)
	}
}

// PublishCompanionStatus relays the companion connection state
func (s *Server) PublishCompanionStatus(connected bool) {
	msg, err := protocol.NewCompanionStatusMessage(connected)
	if err == nil {
		s.broadcast(msg)
	}
}

// PublishVariable relays a variable pushed by the companion
func (s *Server) PublishVariable(u companion.VariableUpdate) {
	msg, err := protocol.NewVariableMessage(string(u.Kind), u.Value, u.Timestamp)
	if err == nil {
		s.broadcast(msg)
	}
}

func (s *Server) broadcast(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Warn("encode message", "type", msg.Type, "error", err)
		return
	}
	s.tracking.Broadcast(hub.NewJSONMessage(data))
}

// ingest decodes a producer frame and submits it to the pipeline
func (s *Server) ingest(data []byte, at time.Time) bool {
	if !s.pipeline.Ready() {
		s.logger.Debug("dropping frame", "error", pipeline.ErrNotInitialized)
		return false
	}
	frame, err := s.decode(data)
	if err != nil {
		s.logger.Debug("dropping undecodable frame", "error", err, "bytes", len(data))
		return false
	}
	return s.pipeline.Submit(frame, at)
}
