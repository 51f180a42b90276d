package web

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-facetrack/pkg/framebuf"
	"github.com/teslashibe/go-facetrack/pkg/pipeline"
	"github.com/teslashibe/go-facetrack/pkg/protocol"
	"github.com/teslashibe/go-facetrack/pkg/trigger"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeFrame struct{ closed bool }

func (f *fakeFrame) Width() int  { return 640 }
func (f *fakeFrame) Height() int { return 480 }

func (f *fakeFrame) Crop(image.Rectangle, int) (vision.Frame, error) {
	return &fakeFrame{}, nil
}

func (f *fakeFrame) Close() error {
	f.closed = true
	return nil
}

type fakePipeline struct {
	mu        sync.Mutex
	cfg       pipeline.Config
	ready     bool
	submitted int
	updateErr error
}

func (p *fakePipeline) Submit(frame vision.Frame, ts time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	frame.Close()
	p.submitted++
	return true
}

func (p *fakePipeline) UpdateConfig(fn func(*pipeline.Config)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	fn(&p.cfg)
	return nil
}

func (p *fakePipeline) Config() pipeline.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *fakePipeline) Stats() pipeline.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pipeline.Stats{SessionID: "session-1", Ready: p.ready, Processed: uint64(p.submitted), Dropped: 2}
}

func (p *fakePipeline) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *fakePipeline) submissions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitted
}

type fakeCompanion struct {
	mu        sync.Mutex
	connected bool
	host      string
	port      int
}

func (c *fakeCompanion) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeCompanion) SetAddress(host string, port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host, c.port = host, port
}

func (c *fakeCompanion) address() (string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host, c.port
}

func decodeAny(data []byte) (vision.Frame, error) {
	if string(data) == "garbage" {
		return nil, errors.New("not an image")
	}
	return &fakeFrame{}, nil
}

func newTestServer() (*Server, *fakePipeline, *fakeCompanion) {
	p := &fakePipeline{cfg: pipeline.DefaultConfig(), ready: true}
	comp := &fakeCompanion{connected: true}
	return NewServer(0, p, comp, decodeAny), p, comp
}

// serve runs s on a loopback port and returns its websocket base URL
func serve(t *testing.T, s *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "ws://" + ln.Addr().String()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return mt, data
}

func readJSON(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	mt, data := readMessage(t, conn)
	require.Equal(t, websocket.TextMessage, mt)
	msg, err := protocol.ParseMessage(data)
	require.NoError(t, err)
	return msg
}

// =============================================================================
// HTTP
// =============================================================================

func TestAPI_Status(t *testing.T) {
	s, _, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var status protocol.StatusData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "session-1", status.SessionID)
	assert.True(t, status.Ready)
	assert.True(t, status.Companion)
	assert.Equal(t, uint64(2), status.Dropped)
}

func TestAPI_Health(t *testing.T) {
	s, _, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["ready"])
}

func TestAPI_GetConfig(t *testing.T) {
	s, _, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/config", nil), -1)
	require.NoError(t, err)

	var cfg pipeline.Config
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, pipeline.DefaultConfig(), cfg)
}

func TestAPI_UpdateConfig(t *testing.T) {
	s, p, comp := newTestServer()

	body := `{"showMesh": false, "gestures": {"startRecording": "Victory", "stopRecording": "Open_Palm",
		"startPlayback": "Pointing_Up", "stopPlayback": "Closed_Fist"}, "companion": {"host": "10.0.0.9", "port": 16622}}`
	req := httptest.NewRequest("POST", "/api/config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	cfg := p.Config()
	assert.False(t, cfg.ShowMesh)
	assert.Equal(t, vision.GestureVictory, cfg.Gestures.StartRecording)
	assert.Equal(t, pipeline.CompanionConfig{Host: "10.0.0.9", Port: 16622}, cfg.Companion)

	host, port := comp.address()
	assert.Equal(t, "10.0.0.9", host)
	assert.Equal(t, 16622, port)
}

func TestAPI_UpdateConfigErrors(t *testing.T) {
	s, p, comp := newTestServer()

	req := httptest.NewRequest("POST", "/api/config", strings.NewReader(`{"showMesh": `))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	p.updateErr = pipeline.ErrClosed
	req = httptest.NewRequest("POST", "/api/config", strings.NewReader(`{"companion": {"host": "x", "port": 1}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)

	host, _ := comp.address()
	assert.Empty(t, host, "companion untouched when the update fails")
}

func TestAPI_TrackingRequiresUpgrade(t *testing.T) {
	s, _, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest("GET", "/ws/tracking", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
	io.Copy(io.Discard, resp.Body)
}

// =============================================================================
// WebSocket
// =============================================================================

func TestTrackingWS_CatchUpAndFrames(t *testing.T) {
	s, _, _ := newTestServer()
	conn := dial(t, serve(t, s)+"/ws/tracking")

	assert.Equal(t, protocol.TypeReady, readJSON(t, conn).Type)
	status := readJSON(t, conn)
	require.Equal(t, protocol.TypeCompanionStatus, status.Type)

	buf := framebuf.New(2, 0)
	buf.SetHeader(12.5, 1, 1)
	buf.SetSubject(0, framebuf.Subject{ID: 0, X: 0.5, Y: 0.5, Z: 1.2})

	s.PublishFrame(pipeline.Output{
		Sequence:       7,
		Timestamp:      12.5,
		Buffer:         buf.Snapshot(),
		Subjects:       1,
		Hands:          []vision.Hand{{Gesture: vision.GestureThumbUp}},
		ActiveTriggers: []string{trigger.StartRecording},
	})

	mt, data := readMessage(t, conn)
	require.Equal(t, websocket.BinaryMessage, mt)
	floats, err := framebuf.Decode(data)
	require.NoError(t, err)
	hdr, err := framebuf.ParseHeader(floats)
	require.NoError(t, err)
	assert.Equal(t, 1, hdr.Subjects)

	msg := readJSON(t, conn)
	require.Equal(t, protocol.TypeTracking, msg.Type)
	td, err := msg.GetTrackingData()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), td.Sequence)
	assert.Equal(t, []string{trigger.StartRecording}, td.ActiveTriggers)
	assert.NotNil(t, td.PendingTriggers)
	require.Len(t, td.Hands, 1)
}

func TestTrackingWS_ConfigAndPing(t *testing.T) {
	s, p, _ := newTestServer()
	conn := dial(t, serve(t, s)+"/ws/tracking")
	readJSON(t, conn) // ready
	readJSON(t, conn) // companion status

	width := 150.0
	update, err := protocol.NewMessage(protocol.TypeConfig, protocol.ConfigUpdate{HeadWidthMm: &width})
	require.NoError(t, err)
	data, _ := update.Bytes()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	assert.Eventually(t, func() bool { return p.Config().HeadWidthMm == 150 }, 2*time.Second, 10*time.Millisecond)

	ping, err := protocol.NewPingMessage("p1")
	require.NoError(t, err)
	data, _ = ping.Bytes()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	pong := readJSON(t, conn)
	require.Equal(t, protocol.TypePong, pong.Type)
	var pd protocol.PongData
	require.NoError(t, pong.ParseData(&pd))
	assert.Equal(t, "p1", pd.ID)
}

func TestTrackingWS_Events(t *testing.T) {
	s, _, _ := newTestServer()
	conn := dial(t, serve(t, s)+"/ws/tracking")
	readJSON(t, conn)
	readJSON(t, conn)

	s.PublishError(pipeline.ErrorEvent{Message: "boom", Code: pipeline.CodeInitFailed})
	msg := readJSON(t, conn)
	require.Equal(t, protocol.TypeError, msg.Type)
	ed, err := msg.GetErrorData()
	require.NoError(t, err)
	assert.Equal(t, pipeline.CodeInitFailed, ed.Code)

	s.PublishCompanionStatus(false)
	msg = readJSON(t, conn)
	require.Equal(t, protocol.TypeCompanionStatus, msg.Type)
	var cs protocol.CompanionStatusData
	require.NoError(t, msg.ParseData(&cs))
	assert.False(t, cs.Connected)
}

func TestIngestWS_SubmitsFrames(t *testing.T) {
	s, p, _ := newTestServer()
	conn := dial(t, serve(t, s)+"/ws/ingest/cam-1")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("jpeg-1")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("garbage")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("jpeg-2")))

	// Ping round trip orders us after the frames
	ping, err := protocol.NewPingMessage("p")
	require.NoError(t, err)
	data, _ := ping.Bytes()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	assert.Equal(t, protocol.TypePong, readJSON(t, conn).Type)

	assert.Equal(t, 2, p.submissions())
	stats := s.sources.Stats()
	assert.Equal(t, 1, stats.SourceCount)
	assert.Equal(t, uint64(3), stats.FramesReceived)
	assert.Equal(t, uint64(2), stats.FramesAccepted)

	infos := s.sources.Infos()
	require.Len(t, infos, 1)
	assert.Equal(t, "cam-1", infos[0].ID)
	assert.Equal(t, uint64(1), infos[0].Dropped)
}

func TestIngestWS_DropsUntilReady(t *testing.T) {
	s, p, _ := newTestServer()
	p.ready = false
	conn := dial(t, serve(t, s)+"/ws/ingest")

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("jpeg")))
	ping, _ := protocol.NewPingMessage("p")
	data, _ := ping.Bytes()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	readJSON(t, conn)

	assert.Zero(t, p.submissions())
	assert.Equal(t, uint64(0), s.sources.Stats().FramesAccepted)
}
