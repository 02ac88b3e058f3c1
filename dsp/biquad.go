package dsp

import (
	"math"

	"github.com/looproom/looproom"
)

// Coefficients are normalized biquad coefficients (a0 divided out).
type Coefficients struct {
	B0, B1, B2, A1, A2 float64
}

// Biquad is one stereo 2nd-order IIR filter section, direct form I. Updating
// the coefficients keeps the filter state, so a band's frequency or gain can
// be tweaked during playback without a click or a chain rebuild.
type Biquad struct {
	coeffs Coefficients
	state  [2]biquadState
}

type biquadState struct {
	x1, x2, y1, y2 float64
}

// NewBiquad creates a section with the given design.
func NewBiquad(coeffs Coefficients) *Biquad {
	return &Biquad{coeffs: coeffs}
}

// SetCoefficients swaps the design in place, keeping the filter state.
func (f *Biquad) SetCoefficients(coeffs Coefficients) {
	f.coeffs = coeffs
}

// Coefficients returns the current design.
func (f *Biquad) Coefficients() Coefficients {
	return f.coeffs
}

// Reset clears the filter state.
func (f *Biquad) Reset() {
	f.state = [2]biquadState{}
}

// Process filters both channels in place.
func (f *Biquad) Process(l, r []float32) {
	f.processChannel(0, l)
	f.processChannel(1, r)
}

func (f *Biquad) processChannel(channel int, buf []float32) {
	c, s := f.coeffs, &f.state[channel]
	for i, v := range buf {
		x := float64(v)
		y := c.B0*x + c.B1*s.x1 + c.B2*s.x2 - c.A1*s.y1 - c.A2*s.y2
		s.x2, s.x1 = s.x1, x
		s.y2, s.y1 = s.y1, y
		buf[i] = float32(y)
	}
}

// DesignBand computes the RBJ audio-EQ-cookbook coefficients for one EQ
// band. Filter types that do not support gain (lowpass, highpass, bandpass,
// notch) are designed as if the band gain were 0 dB, whatever the parameter
// says.
func DesignBand(band looproom.EqBandParams, sampleRate int) Coefficients {
	gainDb := band.GainDb
	if !band.Type.SupportsGain() {
		gainDb = 0
	}
	w0 := 2 * math.Pi * band.FrequencyHz / float64(sampleRate)
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * band.Q)
	a := math.Pow(10, gainDb/40)

	var b0, b1, b2, a0, a1, a2 float64
	switch band.Type {
	case looproom.FilterLowpass:
		b0, b1, b2 = (1-cosw)/2, 1-cosw, (1-cosw)/2
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case looproom.FilterHighpass:
		b0, b1, b2 = (1+cosw)/2, -(1 + cosw), (1+cosw)/2
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case looproom.FilterBandpass:
		b0, b1, b2 = alpha, 0, -alpha
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case looproom.FilterNotch:
		b0, b1, b2 = 1, -2*cosw, 1
		a0, a1, a2 = 1+alpha, -2*cosw, 1-alpha
	case looproom.FilterLowShelf:
		sqrtA := math.Sqrt(a)
		b0 = a * ((a + 1) - (a-1)*cosw + 2*sqrtA*alpha)
		b1 = 2 * a * ((a - 1) - (a+1)*cosw)
		b2 = a * ((a + 1) - (a-1)*cosw - 2*sqrtA*alpha)
		a0 = (a + 1) + (a-1)*cosw + 2*sqrtA*alpha
		a1 = -2 * ((a - 1) + (a+1)*cosw)
		a2 = (a + 1) + (a-1)*cosw - 2*sqrtA*alpha
	case looproom.FilterHighShelf:
		sqrtA := math.Sqrt(a)
		b0 = a * ((a + 1) + (a-1)*cosw + 2*sqrtA*alpha)
		b1 = -2 * a * ((a - 1) + (a+1)*cosw)
		b2 = a * ((a + 1) + (a-1)*cosw - 2*sqrtA*alpha)
		a0 = (a + 1) - (a-1)*cosw + 2*sqrtA*alpha
		a1 = 2 * ((a - 1) - (a+1)*cosw)
		a2 = (a + 1) - (a-1)*cosw - 2*sqrtA*alpha
	default: // peaking
		b0, b1, b2 = 1+alpha*a, -2*cosw, 1-alpha*a
		a0, a1, a2 = 1+alpha/a, -2*cosw, 1-alpha/a
	}
	return Coefficients{B0: b0 / a0, B1: b1 / a0, B2: b2 / a0, A1: a1 / a0, A2: a2 / a0}
}
