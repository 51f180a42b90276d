// Package pipeline runs the per-frame tracking flow on a single worker
// goroutine: detect, recover, solve, track, smooth, encode and evaluate
// gesture triggers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/debug"
	"github.com/teslashibe/go-facetrack/pkg/filter"
	"github.com/teslashibe/go-facetrack/pkg/framebuf"
	"github.com/teslashibe/go-facetrack/pkg/geometry"
	"github.com/teslashibe/go-facetrack/pkg/recovery"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
	"github.com/teslashibe/go-facetrack/pkg/trigger"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

var (
	// ErrClosed is returned by operations on a closed coordinator
	ErrClosed = errors.New("pipeline closed")
	// ErrNotInitialized is returned when detectors have not been loaded
	ErrNotInitialized = errors.New("pipeline not initialized")
)

type job struct {
	frame vision.Frame
	ts    time.Time
}

type solved struct {
	pose   geometry.Pose
	anchor r2.Vec // Eye-level point in pixels
}

// Coordinator owns the detectors and all tracking state. Frames are processed
// one at a time; a frame submitted while another is in flight is dropped.
type Coordinator struct {
	sessionID string
	start     time.Time
	now       func() time.Time
	logger    *slog.Logger

	jobs    chan job
	control chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	busy         atomic.Bool
	ready        atomic.Bool
	initializing atomic.Bool
	closed       atomic.Bool
	closeOnce    sync.Once
	closeErr     error

	processed atomic.Uint64
	dropped   atomic.Uint64
	recovered atomic.Uint64
	panics    atomic.Uint64
	tracks    atomic.Int64

	config atomic.Pointer[Config] // Published copy for readers

	onFrame func(Output)
	onError func(ErrorEvent)
	onReady func()

	// Worker-owned
	cfg        Config
	det        *Detectors
	recovery   *recovery.Strategy
	tracker    *tracking.Tracker
	buffer     *framebuf.Buffer
	evaluator  *trigger.Evaluator
	lastTs     int64
	frameCount uint64
	seq        uint64
	hands      []vision.Hand
}

// New creates a coordinator and starts its worker. Call Init to load detectors.
func New(cfg Config) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		sessionID: uuid.NewString(),
		start:     time.Now(),
		now:       time.Now,
		jobs:      make(chan job, 1),
		control:   make(chan func()),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		cfg:       cfg,
		lastTs:    -1,
	}
	c.logger = log.Component("pipeline").With("session", c.sessionID)
	c.tracker = tracking.NewTracker(cfg.TrackingConfig())
	c.buffer = framebuf.New(cfg.MaxSubjects, cfg.MeshPoints)
	c.evaluator = trigger.NewEvaluator(cfg.TriggerConfig(), cfg.Gestures.Definitions(), nil)
	c.publish()

	go c.run()
	return c
}

// SessionID returns the unique id of this pipeline instance
func (c *Coordinator) SessionID() string {
	return c.sessionID
}

// OnFrame sets the handler for processed frames. It runs on the worker
// goroutine and must not block. Set before Init.
func (c *Coordinator) OnFrame(fn func(Output)) {
	c.onFrame = fn
}

// OnError sets the handler for pipeline errors. Set before Init.
func (c *Coordinator) OnError(fn func(ErrorEvent)) {
	c.onError = fn
}

// OnReady sets the handler called once detectors are loaded. Set before Init.
func (c *Coordinator) OnReady(fn func()) {
	c.onReady = fn
}

// SetTriggerListener sets who receives trigger activations and releases
func (c *Coordinator) SetTriggerListener(l trigger.Listener) error {
	return c.exec(func() {
		c.evaluator.SetListener(l)
	})
}

// Ready reports whether detectors are loaded
func (c *Coordinator) Ready() bool {
	return c.ready.Load()
}

// Config returns a copy of the current configuration
func (c *Coordinator) Config() Config {
	return *c.config.Load()
}

// Stats returns the pipeline counters
func (c *Coordinator) Stats() Stats {
	return Stats{
		SessionID: c.sessionID,
		Ready:     c.ready.Load(),
		Processed: c.processed.Load(),
		Dropped:   c.dropped.Load(),
		Recovered: c.recovered.Load(),
		Panics:    c.panics.Load(),
		Tracks:    int(c.tracks.Load()),
	}
}

// Init loads the detectors. A second call while loading or after success is
// ignored. On failure an INIT_FAILED error event is emitted and Init may be
// retried.
func (c *Coordinator) Init(ctx context.Context, loader DetectorLoader) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if !c.initializing.CompareAndSwap(false, true) {
		c.logger.Debug("init already done or in progress")
		return nil
	}

	det, err := loader.Load(ctx, c.Config())
	if err == nil && (det == nil || det.Landmarker == nil) {
		err = errors.New("no face landmarker loaded")
	}
	if err != nil {
		c.initializing.Store(false)
		err = fmt.Errorf("load detectors: %w", err)
		c.logger.Error("pipeline init failed", "error", err)
		c.emitError(ErrorEvent{Message: err.Error(), Code: CodeInitFailed})
		return err
	}

	if err := c.exec(func() { c.install(det) }); err != nil {
		det.Close()
		return err
	}
	c.ready.Store(true)
	c.logger.Info("pipeline ready",
		"recovery", det.Scout != nil && det.Sniper != nil,
		"gestures", det.Gestures != nil)

	if c.onReady != nil {
		c.onReady()
	}
	return nil
}

// Submit hands frame to the worker. Ownership of frame always passes to the
// coordinator: it is closed after processing or immediately when dropped.
// Returns false if the frame was dropped.
func (c *Coordinator) Submit(frame vision.Frame, ts time.Time) bool {
	if c.closed.Load() || !c.ready.Load() {
		c.drop(frame)
		return false
	}
	if !c.busy.CompareAndSwap(false, true) {
		c.drop(frame)
		return false
	}

	select {
	case c.jobs <- job{frame: frame, ts: ts}:
		// Close may have drained the queue before this send landed
		if c.closed.Load() && c.drain() {
			return false
		}
		return true
	default:
		c.busy.Store(false)
		c.drop(frame)
		return false
	}
}

// UpdateConfig applies fn to the configuration on the worker goroutine and
// waits for it to take effect.
func (c *Coordinator) UpdateConfig(fn func(*Config)) error {
	return c.exec(func() {
		next := c.cfg
		fn(&next)
		c.apply(next)
	})
}

// Close stops the worker and disposes the detectors. Safe to call more than once.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.ready.Store(false)
		c.cancel()
		<-c.done
		c.shutdown() // A Submit racing Close may have queued one more frame
		if c.det != nil {
			c.closeErr = c.det.Close()
		}
		c.logger.Info("pipeline closed", "processed", c.processed.Load(), "dropped", c.dropped.Load())
	})
	return c.closeErr
}

func (c *Coordinator) drop(frame vision.Frame) {
	c.dropped.Add(1)
	if frame != nil {
		frame.Close()
	}
}

func (c *Coordinator) emitError(ev ErrorEvent) {
	if c.onError != nil {
		c.onError(ev)
	}
}

// exec runs fn on the worker goroutine and waits for it
func (c *Coordinator) exec(fn func()) error {
	done := make(chan struct{})
	select {
	case c.control <- func() { fn(); close(done) }:
	case <-c.done:
		return ErrClosed
	}
	<-done
	return nil
}

func (c *Coordinator) publish() {
	cfg := c.cfg
	c.config.Store(&cfg)
}

// =============================================================================
// Worker
// =============================================================================

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return
		case fn := <-c.control:
			fn()
		case j := <-c.jobs:
			c.handle(j)
		}
	}
}

// drain drops a queued frame, reporting whether there was one
func (c *Coordinator) drain() bool {
	select {
	case j := <-c.jobs:
		c.drop(j.frame)
		c.busy.Store(false)
		return true
	default:
		return false
	}
}

func (c *Coordinator) shutdown() {
	c.drain()
	c.tracker.Reset()
	c.evaluator.Reset()
	c.tracks.Store(0)
}

func (c *Coordinator) install(det *Detectors) {
	c.det = det
	c.recovery = recovery.New(det.Scout, det.Sniper, c.cfg.Recovery)
	det.setThresholds(c.cfg.Thresholds)
}

// apply switches to next, rebuilding only what changed
func (c *Coordinator) apply(next Config) {
	prev := c.cfg
	c.cfg = next

	if next.MaxSubjects != prev.MaxSubjects || next.MatchThreshold != prev.MatchThreshold ||
		next.MaxLostFrames != prev.MaxLostFrames {
		c.tracker.SetConfig(next.TrackingConfig())
		c.tracks.Store(int64(c.tracker.Len()))
	} else if next.Filters != prev.Filters {
		c.tracker.SetFilterParams(next.Filters)
	}
	if next.MaxSubjects != prev.MaxSubjects || next.MeshPoints != prev.MeshPoints {
		c.buffer = framebuf.New(next.MaxSubjects, next.MeshPoints)
	}

	c.evaluator.SetConfig(next.TriggerConfig())
	if next.Gestures != prev.Gestures {
		c.evaluator.SetDefinitions(next.Gestures.Definitions())
	}

	if c.det != nil {
		c.recovery.SetConfig(next.Recovery)
		if next.Thresholds != prev.Thresholds {
			c.det.setThresholds(next.Thresholds)
		}
	}

	c.publish()
	c.logger.Debug("config applied", "showMesh", next.ShowMesh, "headWidthMm", next.HeadWidthMm)
}

func (c *Coordinator) handle(j job) {
	defer func() {
		j.frame.Close()
		c.busy.Store(false)
	}()
	defer func() {
		if r := recover(); r != nil {
			c.panics.Add(1)
			c.logger.Error("frame processing panicked", "panic", r)
		}
	}()

	out := c.process(j.frame, j.ts)
	c.processed.Add(1)
	if c.onFrame != nil {
		c.onFrame(out)
	}
}

// detectorTimestamp returns ts in ms since start, forced strictly increasing
func (c *Coordinator) detectorTimestamp(ts time.Time) int64 {
	ms := ts.Sub(c.start).Milliseconds()
	if ms <= c.lastTs {
		ms = c.lastTs + 1
	}
	c.lastTs = ms
	return ms
}

func (c *Coordinator) process(frame vision.Frame, ts time.Time) Output {
	detTs := c.detectorTimestamp(ts)
	elapsed := ts.Sub(c.start)

	faces, err := c.det.Landmarker.DetectForVideo(frame, detTs)
	if err != nil {
		c.logger.Warn("face landmarker failed", "error", err)
		faces = nil
	}
	if len(faces) == 0 {
		if lms := c.recovery.Run(frame); len(lms) > 0 {
			faces = []vision.Face{{Landmarks: lms}}
			c.recovered.Add(1)
			debug.TrackLog("face recovered", "ts", detTs)
		}
	}

	w, h := float64(c.cfg.Width), float64(c.cfg.Height)
	found := make([]solved, 0, len(faces))
	dets := make([]tracking.Detection, 0, len(faces))
	for _, face := range faces {
		pose, ok := geometry.Solve(face.Landmarks, c.cfg.Camera(), c.cfg.HeadWidthMm, face.Transform)
		if !ok {
			continue
		}
		anchor := r2.Vec{X: pose.CenterX + c.cfg.EyeOffsetX, Y: pose.CenterY + c.cfg.EyeOffsetY}
		found = append(found, solved{pose: pose, anchor: anchor})
		dets = append(dets, tracking.Detection{Anchor: anchor})
	}

	matches := c.tracker.Update(dets)
	c.tracks.Store(int64(c.tracker.Len()))

	c.buffer.Reset()
	subjects := 0
	for slot := 0; slot < c.buffer.MaxSubjects(); slot++ {
		id, ok := c.tracker.SlotID(slot)
		if !ok {
			continue
		}
		idx, ok := matches[id]
		if !ok {
			continue // Lost this frame
		}
		f := found[idx]
		raw := filter.Sample{
			X:     f.anchor.X / w,
			Y:     f.anchor.Y / h,
			Z:     f.pose.DepthMm,
			Yaw:   f.pose.Yaw,
			Pitch: f.pose.Pitch,
			Roll:  f.pose.Roll,
		}
		s, ok := c.tracker.Smooth(id, raw, elapsed.Seconds())
		if !ok {
			continue
		}
		subj := framebuf.Subject{
			ID:       id,
			X:        s.X - c.cfg.EyeOffsetX/w,
			Y:        s.Y - c.cfg.EyeOffsetY/h,
			Z:        s.Z / 1000,
			Yaw:      s.Yaw,
			Pitch:    s.Pitch,
			Roll:     s.Roll,
			NeutralX: s.X,
			NeutralY: s.Y,
		}
		if c.cfg.ShowMesh {
			subj.Mesh = f.pose.Mesh
		}
		c.buffer.SetSubject(slot, subj)
		subjects++
	}

	hands := c.recognize(frame, detTs)
	tsMillis := float64(elapsed) / float64(time.Millisecond)
	c.buffer.SetHeader(tsMillis, subjects, len(hands))

	res := c.evaluator.Evaluate(hands, c.now())

	c.seq++
	return Output{
		Sequence:        c.seq,
		Timestamp:       tsMillis,
		Buffer:          c.buffer.Snapshot(),
		Subjects:        subjects,
		Hands:           hands,
		ActiveTriggers:  res.Active,
		PendingTriggers: res.Pending,
	}
}

// recognize runs the gesture recognizer every HandEvery frames and returns
// the most recent result in between
func (c *Coordinator) recognize(frame vision.Frame, detTs int64) []vision.Hand {
	defer func() { c.frameCount++ }()
	if c.det.Gestures == nil {
		return nil
	}

	every := uint64(max(c.cfg.HandEvery, 1))
	if c.frameCount%every != 0 {
		return c.hands
	}

	hands, err := c.det.Gestures.RecognizeForVideo(frame, detTs)
	if err != nil {
		c.logger.Warn("gesture recognizer failed", "error", err)
		return c.hands
	}
	c.hands = hands
	return hands
}
