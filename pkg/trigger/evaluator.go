// Package trigger debounces per-frame gesture classifications into discrete
// trigger activations and releases.
//
// Each trigger runs its own state machine:
//
//	Idle → Pending (hold timer filling) → Active (hold reached, matched)
//	     → Held (match lost, inside release grace) → Idle
package trigger

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Phase is the externally visible state of one trigger
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseActive
	PhaseHeld
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseHeld:
		return "held"
	default:
		return "idle"
	}
}

// Listener receives trigger side effects. Calls happen on the evaluating
// goroutine and must not block.
type Listener interface {
	OnTrigger(def Definition)
	OnRelease(def Definition)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Trigger func(Definition)
	Release func(Definition)
}

func (l ListenerFuncs) OnTrigger(def Definition) {
	if l.Trigger != nil {
		l.Trigger(def)
	}
}

func (l ListenerFuncs) OnRelease(def Definition) {
	if l.Release != nil {
		l.Release(def)
	}
}

// State is the timing state of one trigger. Zero times mean unset.
type State struct {
	EnterTime time.Time
	LastSeen  time.Time
	Triggered bool

	matched bool // Matched on the last evaluation
}

// Pending is a trigger that is filling its hold timer
type Pending struct {
	ID       string  `json:"id"`
	Progress float64 `json:"progress"` // 0-1
}

// Result is the outcome of one evaluation
type Result struct {
	Active  []string  `json:"activeTriggers"`
	Pending []Pending `json:"pendingTriggers"`
}

// Evaluator runs the trigger state machines.
// Not safe for concurrent use: the pipeline worker owns it.
type Evaluator struct {
	config   Config
	defs     []Definition
	states   map[string]*State
	listener Listener
	logger   *slog.Logger
}

// NewEvaluator creates an evaluator. listener may be nil.
func NewEvaluator(config Config, defs []Definition, listener Listener) *Evaluator {
	return &Evaluator{
		config:   config,
		defs:     defs,
		states:   make(map[string]*State),
		listener: listener,
		logger:   log.Component("trigger"),
	}
}

// SetConfig replaces timing and zone settings. Running timers are kept.
func (e *Evaluator) SetConfig(config Config) {
	e.config = config
}

// SetDefinitions replaces the trigger set. State of ids that remain is kept.
func (e *Evaluator) SetDefinitions(defs []Definition) {
	e.defs = defs
}

// SetListener replaces the side-effect listener
func (e *Evaluator) SetListener(l Listener) {
	e.listener = l
}

// Reset returns every trigger to idle without emitting releases
func (e *Evaluator) Reset() {
	e.states = make(map[string]*State)
}

// state returns the state for id, creating it on first use
func (e *Evaluator) state(id string) *State {
	st, ok := e.states[id]
	if !ok {
		st = &State{}
		e.states[id] = st
	}
	return st
}

// matches reports whether any hand shows gesture inside the gesture zone
func (e *Evaluator) matches(hands []vision.Hand, gesture vision.Gesture) bool {
	zone := e.config.GestureZone
	for _, h := range hands {
		if h.Gesture != gesture {
			continue
		}
		if zone.Enabled && !h.Box.Intersects(zone.Box) {
			continue
		}
		return true
	}
	return false
}

// Evaluate advances every trigger with the hands seen at now
func (e *Evaluator) Evaluate(hands []vision.Hand, now time.Time) Result {
	var res Result
	hold := e.config.hold()

	for _, def := range e.defs {
		if def.Gesture == vision.GestureNone || def.Gesture == "" {
			continue
		}

		st := e.state(def.ID)
		st.matched = e.matches(hands, def.Gesture)

		if st.matched {
			st.LastSeen = now
			if st.EnterTime.IsZero() {
				st.EnterTime = now
			}

			elapsed := now.Sub(st.EnterTime)
			if elapsed >= hold {
				if !st.Triggered {
					st.Triggered = true
					e.logger.Info("trigger activated", "id", def.ID, "gesture", def.Gesture, "held", elapsed)
					if e.listener != nil {
						e.listener.OnTrigger(def)
					}
				}
				res.Active = append(res.Active, def.ID)
				continue
			}

			res.Pending = append(res.Pending, Pending{ID: def.ID, Progress: progress(elapsed, hold)})
			continue
		}

		if st.Triggered && now.Sub(st.LastSeen) < e.config.ReleaseDelay {
			res.Active = append(res.Active, def.ID)
			continue
		}

		if st.Triggered {
			e.logger.Info("trigger released", "id", def.ID)
			if e.listener != nil {
				e.listener.OnRelease(def)
			}
		}
		*st = State{}
	}
	return res
}

// progress is elapsed/hold clamped to [0, 1]
func progress(elapsed, hold time.Duration) float64 {
	if hold <= 0 {
		return 1
	}
	p := float64(elapsed) / float64(hold)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Phase returns the phase of trigger id after the last evaluation
func (e *Evaluator) Phase(id string) Phase {
	st, ok := e.states[id]
	if !ok {
		return PhaseIdle
	}
	switch {
	case st.Triggered && st.matched:
		return PhaseActive
	case st.Triggered:
		return PhaseHeld
	case !st.EnterTime.IsZero():
		return PhasePending
	default:
		return PhaseIdle
	}
}

// State returns a copy of the timing state of trigger id
func (e *Evaluator) State(id string) (State, bool) {
	st, ok := e.states[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}
