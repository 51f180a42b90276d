// Package companion talks to a Bitfocus Companion style control surface over
// a websocket: it presses buttons and sets variables when gesture triggers
// fire, and relays variable updates pushed back by the surface.
package companion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/trigger"
)

// ErrNotConnected is returned when a command is sent while the socket is down
var ErrNotConnected = errors.New("companion: not connected")

// ErrQueueFull is returned when the outbound queue cannot take another message
var ErrQueueFull = errors.New("companion: outbound queue full")

// Config holds companion connection settings
type Config struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReconnectDelay time.Duration `json:"-"`
	QueueSize      int           `json:"-"` // Outbound messages buffered before dropping
}

// DefaultConfig returns the local companion defaults
func DefaultConfig() Config {
	return Config{
		Host:           "localhost",
		Port:           28492,
		ReconnectDelay: 5 * time.Second,
		QueueSize:      64,
	}
}

// URL returns the websocket URL for the configured host and port
func (c Config) URL() string {
	return "ws://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Kind tags where a variable update came from
type Kind string

const (
	KindGeneric   Kind = "generic"
	KindRecording Kind = "recording"
	KindPlayback  Kind = "playback"
)

// VariableUpdate is a variable pushed by the companion
type VariableUpdate struct {
	Kind      Kind      `json:"messageType"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// inbound is the subset of companion messages we understand
type inbound struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// setVariable is the outbound variable command
type setVariable struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type outbound struct {
	messageType int
	data        []byte
}

// GestureVariable is the companion variable that mirrors the active trigger
const GestureVariable = "gesture"

// IdleValue is written to GestureVariable when a trigger releases
const IdleValue = "idle"

// Client is a self-reconnecting companion connection.
// Commands are queued and written by a single goroutine so callers never block.
type Client struct {
	mu     sync.Mutex
	config Config
	conn   *websocket.Conn

	dialer    *websocket.Dialer
	out       chan outbound
	redial    chan struct{}
	connected atomic.Bool
	dropped   atomic.Int64

	// Callbacks, set before Run
	OnStatus   func(connected bool)
	OnVariable func(update VariableUpdate)

	logger *slog.Logger
}

// New creates a client. Call Run to connect.
func New(config Config) *Client {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultConfig().ReconnectDelay
	}
	return &Client{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		out:    make(chan outbound, config.QueueSize),
		redial: make(chan struct{}, 1),
		logger: log.Component("companion"),
	}
}

// Connected reports whether the socket is currently open
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Dropped returns how many outbound messages were discarded
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// Config returns the current connection settings
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// SetAddress points the client at a new host/port. An open connection is
// closed and the client redials right away.
func (c *Client) SetAddress(host string, port int) {
	c.mu.Lock()
	if c.config.Host == host && c.config.Port == port {
		c.mu.Unlock()
		return
	}
	c.config.Host = host
	c.config.Port = port
	conn := c.conn
	c.mu.Unlock()

	c.logger.Info("companion address changed", "host", host, "port", port)
	if conn != nil {
		conn.Close()
	}
	select {
	case c.redial <- struct{}{}:
	default:
	}
}

// Run keeps the connection alive until ctx is cancelled, waiting
// ReconnectDelay between attempts.
func (c *Client) Run(ctx context.Context) {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Debug("companion connection ended", "error", err)
		}

		c.mu.Lock()
		delay := c.config.ReconnectDelay
		c.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-c.redial:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to close
func (c *Client) session(ctx context.Context) error {
	url := c.Config().URL()
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setConnected(true)
	c.logger.Info("companion connected", "url", url)

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.drain()
		c.setConnected(false)
		c.logger.Info("companion disconnected", "url", url)
	}()

	go c.writePump(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	return c.readPump(conn)
}

func (c *Client) setConnected(v bool) {
	if c.connected.Swap(v) == v {
		return
	}
	if c.OnStatus != nil {
		c.OnStatus(v)
	}
}

// drain discards messages queued for a connection that is gone
func (c *Client) drain() {
	for {
		select {
		case <-c.out:
		default:
			return
		}
	}
}

// readPump dispatches inbound messages until the connection fails
func (c *Client) readPump(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		var kind Kind
		switch msg.Type {
		case "variable_update":
			kind = KindGeneric
		case "recording_variable_update":
			kind = KindRecording
		case "playback_variable_update":
			kind = KindPlayback
		default:
			continue
		}

		if c.OnVariable != nil {
			c.OnVariable(VariableUpdate{Kind: kind, Value: msg.Value, Timestamp: time.Now()})
		}
	}
}

// writePump is the only writer on conn
func (c *Client) writePump(conn *websocket.Conn, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.out:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(msg.messageType, msg.data); err != nil {
				c.logger.Warn("companion write failed", "error", err)
				conn.Close()
				return
			}
		}
	}
}

// enqueue hands a message to the writer without blocking
func (c *Client) enqueue(msg outbound) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	select {
	case c.out <- msg:
		return nil
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

// PressBank presses a button: "BANK-PRESS <page> <bank>"
func (c *Client) PressBank(page, bank int) error {
	return c.enqueue(outbound{
		messageType: websocket.TextMessage,
		data:        []byte(fmt.Sprintf("BANK-PRESS %d %d", page, bank)),
	})
}

// SetVariable sets a custom companion variable
func (c *Client) SetVariable(name, value string) error {
	data, err := json.Marshal(setVariable{Type: "set_variable", Name: name, Value: value})
	if err != nil {
		return fmt.Errorf("marshal set_variable: %w", err)
	}
	return c.enqueue(outbound{messageType: websocket.TextMessage, data: data})
}

// OnTrigger presses the trigger's button and publishes its id
func (c *Client) OnTrigger(def trigger.Definition) {
	if err := c.PressBank(def.Action.Page, def.Action.Bank); err != nil {
		c.logger.Warn("bank press not sent", "trigger", def.ID, "error", err)
		return
	}
	if err := c.SetVariable(GestureVariable, def.ID); err != nil {
		c.logger.Warn("gesture variable not sent", "trigger", def.ID, "error", err)
	}
}

// OnRelease publishes the idle gesture value
func (c *Client) OnRelease(def trigger.Definition) {
	if err := c.SetVariable(GestureVariable, IdleValue); err != nil {
		c.logger.Warn("gesture variable not sent", "trigger", def.ID, "error", err)
	}
}
