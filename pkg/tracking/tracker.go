// Package tracking assigns persistent identities to per-frame face detections
// and maps live identities onto a fixed set of stable output slots.
package tracking

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/teslashibe/go-facetrack/pkg/debug"
	"github.com/teslashibe/go-facetrack/pkg/filter"
)

// EmptySlot marks an unoccupied output slot
const EmptySlot = -1

// Detection is one face found in the current frame
type Detection struct {
	Anchor r2.Vec // Pixel position used for matching
}

// Track is a persistent identity
type Track struct {
	ID         int    // Monotonic, never reused
	Anchor     r2.Vec // Last matched anchor (pixels)
	FramesLost int    // Frames since the last match

	Last filter.Sample // Last smoothed geometry

	filters *filter.Bank // Created on the first Smooth call
}

// Tracker matches detections to tracks frame by frame.
// Not safe for concurrent use: the pipeline worker owns it.
type Tracker struct {
	config Config

	tracks map[int]*Track
	order  []int // Track ids in insertion order
	slots  []int
	nextID int
}

// NewTracker creates a tracker with all slots empty
func NewTracker(config Config) *Tracker {
	t := &Tracker{config: config}
	t.Reset()
	return t
}

// Reset drops every track and empties the slots. Ids keep increasing.
func (t *Tracker) Reset() {
	t.tracks = make(map[int]*Track)
	t.order = nil
	n := t.config.MaxSubjects
	if n < 0 {
		n = 0
	}
	t.slots = make([]int, n)
	for i := range t.slots {
		t.slots[i] = EmptySlot
	}
}

// Config returns the active configuration
func (t *Tracker) Config() Config {
	return t.config
}

// SetConfig swaps the configuration in place. Live tracks and ids are kept.
// Occupants past a smaller slot count lose their slot; extra slots are filled
// from unslotted tracks.
func (t *Tracker) SetConfig(config Config) {
	n := config.MaxSubjects
	if n < 0 {
		n = 0
	}
	if n != len(t.slots) {
		slots := make([]int, n)
		for i := range slots {
			slots[i] = EmptySlot
		}
		copy(slots, t.slots)
		t.slots = slots
	}
	t.config = config
	t.SetFilterParams(config.Filters)
	t.reconcileSlots()
}

// SetFilterParams retunes smoothing for existing and future tracks
func (t *Tracker) SetFilterParams(p filter.BankParams) {
	t.config.Filters = p
	for _, tr := range t.tracks {
		if tr.filters != nil {
			tr.filters.SetParams(p)
		}
	}
}

// Update ages every track, matches the detections, spawns and deletes tracks
// and reconciles slots. It returns track id → index into dets for every track
// matched or created this frame.
func (t *Tracker) Update(dets []Detection) map[int]int {
	for _, id := range t.order {
		t.tracks[id].FramesLost++
	}

	matches := make(map[int]int, len(dets))
	used := make([]bool, len(dets))

	// Greedy nearest neighbour, tracks in insertion order
	for _, id := range t.order {
		tr := t.tracks[id]
		best := -1
		bestDist := t.config.MatchThreshold
		for i, d := range dets {
			if used[i] {
				continue
			}
			if dist := r2.Norm(r2.Sub(d.Anchor, tr.Anchor)); dist < bestDist {
				best = i
				bestDist = dist
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true
		tr.Anchor = dets[best].Anchor
		tr.FramesLost = 0
		matches[id] = best
	}

	for i, d := range dets {
		if used[i] {
			continue
		}
		id := t.nextID
		t.nextID++
		t.tracks[id] = &Track{ID: id, Anchor: d.Anchor}
		t.order = append(t.order, id)
		matches[id] = i
		debug.TrackLog("track created", "id", id, "x", d.Anchor.X, "y", d.Anchor.Y)
	}

	live := t.order[:0]
	for _, id := range t.order {
		if t.tracks[id].FramesLost > t.config.MaxLostFrames {
			delete(t.tracks, id)
			debug.TrackLog("track deleted", "id", id)
			continue
		}
		live = append(live, id)
	}
	t.order = live

	t.reconcileSlots()
	return matches
}

// reconcileSlots clears stale slots, then fills free slots with unslotted ids in ascending order
func (t *Tracker) reconcileSlots() {
	slotted := make(map[int]bool, len(t.slots))
	for i, id := range t.slots {
		if id == EmptySlot {
			continue
		}
		if _, ok := t.tracks[id]; !ok {
			t.slots[i] = EmptySlot
			continue
		}
		slotted[id] = true
	}

	ids := make([]int, 0, len(t.order))
	for _, id := range t.order {
		if !slotted[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	for _, id := range ids {
		free := -1
		for i, occupant := range t.slots {
			if occupant == EmptySlot {
				free = i
				break
			}
		}
		if free < 0 {
			return
		}
		t.slots[free] = id
		debug.TrackLog("slot assigned", "slot", free, "id", id)
	}
}

// Smooth runs raw geometry for track id through its filter bank at time ts
// (seconds). The bank is created on the first call, seeded with raw.
func (t *Tracker) Smooth(id int, raw filter.Sample, ts float64) (filter.Sample, bool) {
	tr, ok := t.tracks[id]
	if !ok {
		return filter.Sample{}, false
	}
	if tr.filters == nil {
		tr.filters = filter.NewBank(ts, raw, t.config.Filters)
		tr.Last = raw
		return raw, true
	}
	tr.Last = tr.filters.Filter(ts, raw)
	return tr.Last, true
}

// SlotID returns the track id in slot i, or false when the slot is empty or out of range
func (t *Tracker) SlotID(i int) (int, bool) {
	if i < 0 || i >= len(t.slots) {
		return 0, false
	}
	id := t.slots[i]
	return id, id != EmptySlot
}

// Slots returns a copy of the slot array (EmptySlot for unoccupied slots)
func (t *Tracker) Slots() []int {
	out := make([]int, len(t.slots))
	copy(out, t.slots)
	return out
}

// Track returns the live track with the given id
func (t *Tracker) Track(id int) (*Track, bool) {
	tr, ok := t.tracks[id]
	return tr, ok
}

// Len returns the number of live tracks
func (t *Tracker) Len() int {
	return len(t.tracks)
}
