// Package filter implements the One-Euro adaptive low-pass filter used to
// smooth tracked subject geometry.
//
// The filter trades jitter against lag per sample: slow signals get a low
// cutoff (heavy smoothing), fast signals raise the cutoff so the output keeps up.
package filter

import "math"

// Params are the One-Euro tuning parameters for one channel
type Params struct {
	MinCutoff float64 `json:"minCutoff"` // Hz, smoothing at rest
	Beta      float64 `json:"beta"`      // Speed coefficient, higher = less lag on fast motion
	DCutoff   float64 `json:"dCutoff"`   // Hz, cutoff for the derivative estimate
}

// DefaultParams is a fixed 1000 Hz cutoff with no speed term. At webcam
// rates it removes sub-frame jitter and follows a step within one frame.
var DefaultParams = Params{MinCutoff: 1000, Beta: 0, DCutoff: 1000}

// Defaults per channel type
var (
	PositionParams = DefaultParams
	DepthParams    = DefaultParams
	AngleParams    = DefaultParams
)

// OneEuro is a single scalar One-Euro filter. Not safe for concurrent use.
type OneEuro struct {
	params Params

	xPrev  float64
	dxPrev float64
	tPrev  float64
}

// New creates a filter seeded with the first sample. Timestamps are in seconds.
func New(t0, x0 float64, p Params) *OneEuro {
	return &OneEuro{
		params: p,
		xPrev:  x0,
		tPrev:  t0,
	}
}

// alpha is the smoothing factor for a first-order low-pass at cutoff Hz over te seconds
func alpha(te, cutoff float64) float64 {
	r := 2 * math.Pi * cutoff * te
	return r / (r + 1)
}

// Filter feeds sample x taken at time t and returns the smoothed value.
// A sample that does not advance time returns the previous output unchanged.
func (f *OneEuro) Filter(t, x float64) float64 {
	te := t - f.tPrev
	if te <= 0 {
		return f.xPrev
	}

	ad := alpha(te, f.params.DCutoff)
	dx := (x - f.xPrev) / te
	dxHat := ad*dx + (1-ad)*f.dxPrev

	cutoff := f.params.MinCutoff + f.params.Beta*math.Abs(dxHat)
	a := alpha(te, cutoff)
	xHat := f.xPrev + a*(x-f.xPrev)

	f.xPrev = xHat
	f.dxPrev = dxHat
	f.tPrev = t
	return xHat
}

// SetParams changes tuning without resetting state
func (f *OneEuro) SetParams(p Params) {
	f.params = p
}

// Sample is one set of subject geometry: pixel center, depth in mm and angles in degrees.
type Sample struct {
	X, Y  float64
	Z     float64
	Yaw   float64
	Pitch float64
	Roll  float64
}

// BankParams selects the parameters for each channel type in a Bank
type BankParams struct {
	Position Params `json:"position"`
	Depth    Params `json:"depth"`
	Angle    Params `json:"angle"`
}

// DefaultBankParams returns the default per-channel tuning
func DefaultBankParams() BankParams {
	return BankParams{
		Position: PositionParams,
		Depth:    DepthParams,
		Angle:    AngleParams,
	}
}

// Bank holds the six filters of one tracked subject
type Bank struct {
	x, y, z          *OneEuro
	yaw, pitch, roll *OneEuro
}

// NewBank creates a bank seeded with the first raw sample at time t (seconds)
func NewBank(t float64, raw Sample, p BankParams) *Bank {
	return &Bank{
		x:     New(t, raw.X, p.Position),
		y:     New(t, raw.Y, p.Position),
		z:     New(t, raw.Z, p.Depth),
		yaw:   New(t, raw.Yaw, p.Angle),
		pitch: New(t, raw.Pitch, p.Angle),
		roll:  New(t, raw.Roll, p.Angle),
	}
}

// Filter smooths every channel of raw at time t
func (b *Bank) Filter(t float64, raw Sample) Sample {
	return Sample{
		X:     b.x.Filter(t, raw.X),
		Y:     b.y.Filter(t, raw.Y),
		Z:     b.z.Filter(t, raw.Z),
		Yaw:   b.yaw.Filter(t, raw.Yaw),
		Pitch: b.pitch.Filter(t, raw.Pitch),
		Roll:  b.roll.Filter(t, raw.Roll),
	}
}

// SetParams retunes every channel in place
func (b *Bank) SetParams(p BankParams) {
	b.x.SetParams(p.Position)
	b.y.SetParams(p.Position)
	b.z.SetParams(p.Depth)
	b.yaw.SetParams(p.Angle)
	b.pitch.SetParams(p.Angle)
	b.roll.SetParams(p.Angle)
}
