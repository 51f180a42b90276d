// Package framebuf implements the fixed-layout tracking frame buffer: a flat
// float32 array with a four-value header followed by one fixed-stride record
// per output slot.
//
// Layout:
//
//	[0] message tag (100)
//	[1] timestamp (ms since pipeline start)
//	[2] subject count
//	[3] hand count
//	[4 + slot*stride ...] subject records
//
// Record fields, in order: id, x, y, z (m), yaw, pitch, roll (deg),
// neutral_x, neutral_y, has_mesh, then meshPoints x/y/z triples.
package framebuf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-facetrack/pkg/vision"
)

// Tag identifies a tracking frame in header slot 0
const Tag = 100

// DefaultMeshPoints is the dense face mesh size
const DefaultMeshPoints = 478

// HeaderSize is the number of header floats
const HeaderSize = 4

// Record field offsets
const (
	OffsetID = iota
	OffsetX
	OffsetY
	OffsetZ
	OffsetYaw
	OffsetPitch
	OffsetRoll
	OffsetNeutralX
	OffsetNeutralY
	OffsetHasMesh
	OffsetMesh
)

// ErrShortBuffer is returned when encoded data is smaller than a header or not float aligned
var ErrShortBuffer = errors.New("framebuf: short buffer")

// Stride returns the record length in floats for a mesh of meshPoints landmarks
func Stride(meshPoints int) int {
	return OffsetMesh + 3*meshPoints
}

// Size returns the total buffer length in floats
func Size(maxSubjects, meshPoints int) int {
	return HeaderSize + maxSubjects*Stride(meshPoints)
}

// Subject is one smoothed per-slot output record
type Subject struct {
	ID       int     `json:"id"`
	X        float64 `json:"x"` // normalized
	Y        float64 `json:"y"` // normalized
	Z        float64 `json:"z"` // meters
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
	NeutralX float64 `json:"neutral_x"`
	NeutralY float64 `json:"neutral_y"`

	Mesh []vision.Landmark `json:"landmarks,omitempty"` // nil when mesh output is off
}

// Header is the decoded buffer header
type Header struct {
	Tag       int
	Timestamp float64 // ms since pipeline start
	Subjects  int
	Hands     int
}

// Buffer is a reusable tracking frame buffer. Not safe for concurrent use;
// hand a Snapshot or MarshalBinary result to other goroutines.
type Buffer struct {
	data        []float32
	maxSubjects int
	meshPoints  int
	stride      int
}

// New allocates a buffer for maxSubjects slots with room for meshPoints landmarks each
func New(maxSubjects, meshPoints int) *Buffer {
	if maxSubjects < 0 {
		maxSubjects = 0
	}
	if meshPoints < 0 {
		meshPoints = 0
	}
	return &Buffer{
		data:        make([]float32, Size(maxSubjects, meshPoints)),
		maxSubjects: maxSubjects,
		meshPoints:  meshPoints,
		stride:      Stride(meshPoints),
	}
}

// MaxSubjects returns the slot count
func (b *Buffer) MaxSubjects() int { return b.maxSubjects }

// MeshPoints returns the per-record mesh capacity
func (b *Buffer) MeshPoints() int { return b.meshPoints }

// Stride returns the record length in floats
func (b *Buffer) Stride() int { return b.stride }

// Reset zeroes the whole buffer
func (b *Buffer) Reset() {
	clear(b.data)
}

// SetHeader writes the tag, timestamp and counts
func (b *Buffer) SetHeader(tsMillis float64, subjects, hands int) {
	b.data[0] = Tag
	b.data[1] = float32(tsMillis)
	b.data[2] = float32(subjects)
	b.data[3] = float32(hands)
}

// SetSubject writes s into slot. Out-of-range slots are ignored and a mesh
// longer than the record capacity is truncated.
func (b *Buffer) SetSubject(slot int, s Subject) {
	if slot < 0 || slot >= b.maxSubjects {
		return
	}

	rec := b.data[HeaderSize+slot*b.stride : HeaderSize+(slot+1)*b.stride]
	rec[OffsetID] = float32(s.ID)
	rec[OffsetX] = float32(s.X)
	rec[OffsetY] = float32(s.Y)
	rec[OffsetZ] = float32(s.Z)
	rec[OffsetYaw] = float32(s.Yaw)
	rec[OffsetPitch] = float32(s.Pitch)
	rec[OffsetRoll] = float32(s.Roll)
	rec[OffsetNeutralX] = float32(s.NeutralX)
	rec[OffsetNeutralY] = float32(s.NeutralY)

	mesh := rec[OffsetMesh:]
	clear(mesh)
	if len(s.Mesh) == 0 || b.meshPoints == 0 {
		rec[OffsetHasMesh] = 0
		return
	}

	rec[OffsetHasMesh] = 1
	n := min(len(s.Mesh), b.meshPoints)
	for i, lm := range s.Mesh[:n] {
		mesh[3*i] = float32(lm.X)
		mesh[3*i+1] = float32(lm.Y)
		mesh[3*i+2] = float32(lm.Z)
	}
}

// Floats returns the live backing array. It is overwritten by the next frame.
func (b *Buffer) Floats() []float32 {
	return b.data
}

// Snapshot returns a copy of the buffer contents
func (b *Buffer) Snapshot() []float32 {
	out := make([]float32, len(b.data))
	copy(out, b.data)
	return out
}

// MarshalBinary encodes the buffer as little-endian float32 values
func (b *Buffer) MarshalBinary() ([]byte, error) {
	return Encode(b.data), nil
}

// Encode converts floats to little-endian bytes
func Encode(floats []float32) []byte {
	out := make([]byte, 4*len(floats))
	for i, f := range floats {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// Decode converts little-endian bytes produced by MarshalBinary back to floats
func Decode(data []byte) ([]float32, error) {
	if len(data) < 4*HeaderSize || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortBuffer, len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

// ParseHeader reads the header of a decoded buffer
func ParseHeader(floats []float32) (Header, error) {
	if len(floats) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d floats", ErrShortBuffer, len(floats))
	}
	h := Header{
		Tag:       int(floats[0]),
		Timestamp: float64(floats[1]),
		Subjects:  int(floats[2]),
		Hands:     int(floats[3]),
	}
	if h.Tag != Tag {
		return h, fmt.Errorf("framebuf: unexpected tag %d", h.Tag)
	}
	return h, nil
}

// Parse rebuilds the per-slot subjects of a decoded buffer. The result has
// one entry per slot; nil marks an empty slot.
//
// A slot is considered empty when both its id and x are zero, so a subject
// with id 0 sitting exactly at x=0 reads back as empty.
func Parse(floats []float32, maxSubjects, meshPoints int) []*Subject {
	stride := Stride(meshPoints)
	out := make([]*Subject, maxSubjects)
	for i := range out {
		base := HeaderSize + i*stride
		if base+stride > len(floats) {
			break
		}
		rec := floats[base : base+stride]
		if rec[OffsetID] == 0 && rec[OffsetX] == 0 {
			continue
		}

		s := &Subject{
			ID:       int(rec[OffsetID]),
			X:        float64(rec[OffsetX]),
			Y:        float64(rec[OffsetY]),
			Z:        float64(rec[OffsetZ]),
			Yaw:      float64(rec[OffsetYaw]),
			Pitch:    float64(rec[OffsetPitch]),
			Roll:     float64(rec[OffsetRoll]),
			NeutralX: float64(rec[OffsetNeutralX]),
			NeutralY: float64(rec[OffsetNeutralY]),
		}
		if rec[OffsetHasMesh] > 0.5 {
			s.Mesh = make([]vision.Landmark, meshPoints)
			mesh := rec[OffsetMesh:]
			for j := range s.Mesh {
				s.Mesh[j] = vision.Landmark{
					X: float64(mesh[3*j]),
					Y: float64(mesh[3*j+1]),
					Z: float64(mesh[3*j+2]),
				}
			}
		}
		out[i] = s
	}
	return out
}
