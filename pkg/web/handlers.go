package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facetrack/pkg/hub"
	"github.com/teslashibe/go-facetrack/pkg/pipeline"
	"github.com/teslashibe/go-facetrack/pkg/protocol"
)

// status assembles the current counters
func (s *Server) status() protocol.StatusData {
	st := s.pipeline.Stats()
	return protocol.StatusData{
		SessionID:   st.SessionID,
		Ready:       st.Ready,
		Processed:   st.Processed,
		Dropped:     st.Dropped,
		Recovered:   st.Recovered,
		Panics:      st.Panics,
		Tracks:      st.Tracks,
		Companion:   s.companion != nil && s.companion.Connected(),
		Subscribers: s.tracking.ClientCount(),
	}
}

// handleStatus returns the pipeline counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleGetConfig returns the active configuration
func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.pipeline.Config())
}

// handleUpdateConfig applies a partial configuration change
func (s *Server) handleUpdateConfig(c *fiber.Ctx) error {
	var update protocol.ConfigUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := s.applyConfig(update); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(s.pipeline.Config())
}

// applyConfig merges update into the pipeline and moves the companion if its address changed
func (s *Server) applyConfig(update protocol.ConfigUpdate) error {
	var companionChanged bool
	var target pipeline.CompanionConfig
	err := s.pipeline.UpdateConfig(func(cfg *pipeline.Config) {
		companionChanged = cfg.ApplyUpdate(update)
		target = cfg.Companion
	})
	if err != nil {
		return err
	}

	if companionChanged && s.companion != nil {
		s.logger.Info("companion address changed", "host", target.Host, "port", target.Port)
		s.companion.SetAddress(target.Host, target.Port)
	}
	return nil
}

// registerTrackingRoutes mounts the subscriber websocket
func (s *Server) registerTrackingRoutes(app *fiber.App) {
	app.Use("/ws/tracking", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/tracking", websocket.New(s.handleTrackingWS))
}

// handleTrackingWS streams frames to one subscriber until it disconnects
func (s *Server) handleTrackingWS(c *websocket.Conn) {
	client := hub.NewClient(s.tracking, c)

	// Catch the subscriber up on state it missed
	if s.pipeline.Ready() {
		if msg, err := protocol.NewReadyMessage(); err == nil {
			s.sendTo(client, msg)
		}
	}
	if s.companion != nil {
		if msg, err := protocol.NewCompanionStatusMessage(s.companion.Connected()); err == nil {
			s.sendTo(client, msg)
		}
	}

	client.Run()
}

// handleSubscriberMessage handles control messages sent on /ws/tracking
func (s *Server) handleSubscriberMessage(client *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.logger.Debug("ignoring subscriber message", "client", client.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeConfig:
		update, err := msg.GetConfigUpdate()
		if err != nil {
			s.replyError(client, "invalid config update: "+err.Error(), "BAD_CONFIG")
			return
		}
		if err := s.applyConfig(*update); err != nil {
			s.replyError(client, err.Error(), "CONFIG_FAILED")
		}

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		if pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli()); err == nil {
			s.sendTo(client, pong)
		}

	case protocol.TypeStatus:
		if reply, err := protocol.NewStatusMessage(s.status()); err == nil {
			s.sendTo(client, reply)
		}
	}
}

func (s *Server) replyError(client *hub.Client, message, code string) {
	if msg, err := protocol.NewErrorMessage(message, code); err == nil {
		s.sendTo(client, msg)
	}
}

func (s *Server) sendTo(client *hub.Client, msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}
	client.Send(hub.NewJSONMessage(data))
}
