package dsp

import (
	"math"

	"github.com/looproom/looproom"
)

// Voice is a one-shot sound source scheduled against the audio clock. Render
// adds the voice's contribution for the block starting at the absolute
// context frame blockStart into the planar channels, and reports whether the
// voice still has audio left after the block. Voices are never restarted; a
// finished voice is dropped.
type Voice interface {
	Render(l, r []float32, blockStart int64) (active bool)
}

// BufferVoice plays a region of a decoded sample buffer, scheduled to begin
// at StartFrame, reading from SrcOffset frames into the buffer, for Length
// frames.
type BufferVoice struct {
	Buffer     *looproom.SampleBuffer
	StartFrame int64
	SrcOffset  int64
	Length     int64
	Gain       float32
}

func (v *BufferVoice) Render(l, r []float32, blockStart int64) bool {
	end := v.StartFrame + v.Length
	if blockStart >= end {
		return false
	}
	from := v.StartFrame - blockStart
	if from < 0 {
		from = 0
	}
	for i := from; i < int64(len(l)); i++ {
		abs := blockStart + i
		if abs >= end {
			break
		}
		src := v.SrcOffset + (abs - v.StartFrame)
		if src < 0 || src >= int64(len(v.Buffer.Data)) {
			continue
		}
		l[i] += v.Buffer.Data[src][0] * v.Gain
		r[i] += v.Buffer.Data[src][1] * v.Gain
	}
	return blockStart+int64(len(l)) < end
}

// OscVoice is a synthesized MIDI note: an oscillator of the configured
// waveform with a linear attack ramp from zero, a hold, and a linear release
// ramp ending exactly at EndFrame. The release window is taken from the end
// of the note and never exceeds the attack-adjusted hold region.
type OscVoice struct {
	Waveform      looproom.Waveform
	FreqHz        float64
	SampleRate    int
	Gain          float32 // velocity * clip gain * synth gain
	StartFrame    int64
	EndFrame      int64
	AttackFrames  int64
	ReleaseFrames int64

	phase float64
}

func (v *OscVoice) Render(l, r []float32, blockStart int64) bool {
	if blockStart >= v.EndFrame {
		return false
	}
	from := v.StartFrame - blockStart
	if from < 0 {
		from = 0
	}
	for i := from; i < int64(len(l)); i++ {
		abs := blockStart + i
		if abs >= v.EndFrame {
			break
		}
		sample := waveSample(v.Waveform, v.phase)
		l[i] += float32(sample) * v.Gain * v.envelope(abs)
		r[i] += float32(sample) * v.Gain * v.envelope(abs)
		v.phase += v.phaseStep()
		if v.phase >= 1 {
			v.phase -= 1
		}
	}
	return blockStart+int64(len(l)) < v.EndFrame
}

func (v *OscVoice) phaseStep() float64 {
	rate := v.SampleRate
	if rate <= 0 {
		rate = looproom.DefaultSampleRate
	}
	return v.FreqHz / float64(rate)
}

// envelope returns the amplitude at an absolute frame: the minimum of the
// attack ramp and the release ramp, clamped to 1 during the hold.
func (v *OscVoice) envelope(abs int64) float32 {
	env := 1.0
	if v.AttackFrames > 0 {
		if ramp := float64(abs-v.StartFrame) / float64(v.AttackFrames); ramp < env {
			env = ramp
		}
	}
	if v.ReleaseFrames > 0 {
		if ramp := float64(v.EndFrame-abs) / float64(v.ReleaseFrames); ramp < env {
			env = ramp
		}
	}
	if env < 0 {
		env = 0
	}
	return float32(env)
}

// NoteFreq converts a MIDI pitch to its equal-temperament frequency.
func NoteFreq(pitch int) float64 {
	return 440 * math.Pow(2, float64(pitch-69)/12)
}

func waveSample(w looproom.Waveform, phase float64) float64 {
	switch w {
	case looproom.WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case looproom.WaveSawtooth:
		return 2*phase - 1
	case looproom.WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}
