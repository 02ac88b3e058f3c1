// Package dsp contains the signal processing kernels of the engine: the
// biquad EQ sections, the convolution reverb, the oscillator and
// buffer-playback voices, and the per-track/master signal chains built from
// declarative parameter sets. Audio moves through this package as planar
// stereo ([]float32 per channel); interleaving to looproom.AudioBuffer
// happens only at the output boundary.
package dsp

import (
	"github.com/looproom/looproom"
	"github.com/viterin/vek/vek32"
)

// Zero fills dst with silence.
func Zero(dst []float32) {
	vek32.Zeros_Into(dst, len(dst))
}

// Accumulate adds src into dst sample by sample.
func Accumulate(dst, src []float32) {
	vek32.Add_Inplace(dst, src)
}

// ApplyGain scales buf in place.
func ApplyGain(buf []float32, gain float32) {
	vek32.MulNumber_Inplace(buf, gain)
}

// Peak returns the largest absolute sample value in the two channels.
func Peak(l, r []float32, scratch []float32) float32 {
	if len(l) == 0 {
		return 0
	}
	peak := vek32.Max(vek32.Abs_Into(scratch, l))
	if p := vek32.Max(vek32.Abs_Into(scratch, r)); p > peak {
		peak = p
	}
	return peak
}

// Interleave copies the planar channels into a stereo AudioBuffer.
func Interleave(dst looproom.AudioBuffer, l, r []float32) {
	for i := range dst {
		dst[i][0] = l[i]
		dst[i][1] = r[i]
	}
}
