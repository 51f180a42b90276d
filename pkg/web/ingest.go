package web

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/protocol"
)

// Source is a connected frame producer
type Source struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time
	LastSeen  time.Time

	frames  atomic.Uint64
	dropped atomic.Uint64
	mu      sync.Mutex
}

// Send sends a JSON message to the producer
func (src *Source) Send(msg *protocol.Message) error {
	src.mu.Lock()
	defer src.mu.Unlock()

	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	return src.Conn.WriteMessage(websocket.TextMessage, data)
}

// ingestFunc hands one encoded frame to the pipeline and reports whether it was accepted
type ingestFunc func(data []byte, at time.Time) bool

// Sources tracks producers connected to /ws/ingest. Each binary message is
// one encoded frame; text messages carry protocol pings.
type Sources struct {
	mu      sync.RWMutex
	sources map[string]*Source
	ingest  ingestFunc

	// Stats
	framesReceived atomic.Uint64
	framesAccepted atomic.Uint64

	logger *slog.Logger
}

func newSources(ingest ingestFunc) *Sources {
	return &Sources{
		sources: make(map[string]*Source),
		ingest:  ingest,
		logger:  log.Component("ingest"),
	}
}

// RegisterRoutes registers the producer websocket on a Fiber app
func (h *Sources) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/ingest", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/ingest", websocket.New(h.handleSource))
	app.Get("/ws/ingest/:id", websocket.New(h.handleSource))
}

// handleSource reads frames from one producer until it disconnects
func (h *Sources) handleSource(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	src := &Source{
		ID:        id,
		Conn:      c,
		Connected: time.Now(),
		LastSeen:  time.Now(),
	}

	h.mu.Lock()
	h.sources[id] = src
	count := len(h.sources)
	h.mu.Unlock()

	logger := h.logger
	logger.Info("frame source connected", "source", id, "total", count)

	defer func() {
		h.mu.Lock()
		delete(h.sources, id)
		count := len(h.sources)
		h.mu.Unlock()
		logger.Info("frame source disconnected", "source", id, "remaining", count,
			"frames", src.frames.Load(), "dropped", src.dropped.Load())
	}()

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("frame source read error", "source", id, "error", err)
			return
		}

		now := time.Now()
		src.mu.Lock()
		src.LastSeen = now
		src.mu.Unlock()

		switch messageType {
		case websocket.BinaryMessage:
			h.framesReceived.Add(1)
			src.frames.Add(1)
			if h.ingest(data, now) {
				h.framesAccepted.Add(1)
			} else {
				src.dropped.Add(1)
			}

		case websocket.TextMessage:
			h.handleMessage(src, data)
		}
	}
}

// handleMessage answers control messages from a producer
func (h *Sources) handleMessage(src *Source, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return
	}
	if msg.Type == protocol.TypePing {
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
		if err == nil {
			src.Send(pong)
		}
	}
}

// Count returns the number of connected producers
func (h *Sources) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sources)
}

// SourceStats contains producer statistics
type SourceStats struct {
	SourceCount    int    `json:"source_count"`
	FramesReceived uint64 `json:"frames_received"`
	FramesAccepted uint64 `json:"frames_accepted"`
}

// Stats returns producer statistics
func (h *Sources) Stats() SourceStats {
	return SourceStats{
		SourceCount:    h.Count(),
		FramesReceived: h.framesReceived.Load(),
		FramesAccepted: h.framesAccepted.Load(),
	}
}

// SourceInfo contains info about a connected producer
type SourceInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Frames    uint64    `json:"frames"`
	Dropped   uint64    `json:"dropped"`
}

// Infos returns info about all connected producers
func (h *Sources) Infos() []SourceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(h.sources))
	for _, src := range h.sources {
		src.mu.Lock()
		infos = append(infos, SourceInfo{
			ID:        src.ID,
			Connected: src.Connected,
			LastSeen:  src.LastSeen,
			Frames:    src.frames.Load(),
			Dropped:   src.dropped.Load(),
		})
		src.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers producer listing routes
func (h *Sources) RegisterAPIRoutes(api fiber.Router) {
	sources := api.Group("/sources")

	sources.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sources": h.Infos(),
			"count":   h.Count(),
		})
	})

	sources.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.Stats())
	})
}
