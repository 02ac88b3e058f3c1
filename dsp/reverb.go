package dsp

import (
	"math"

	"github.com/looproom/looproom"
)

// Reverb is the convolution reverb send of a chain: a pre-delay followed by
// convolution with a synthetically generated exponentially decaying noise
// impulse response, mixed against the dry signal by wet/(1-wet) gains.
type Reverb struct {
	sampleRate int
	blockSize  int

	params looproom.ReverbParams

	preDelay [2]*delayLine
	conv     [2]*convolver

	wetL, wetR []float32
}

// noiseSeeds give the two channels independent, but fixed, noise; the same
// decay always produces the same impulse response so live playback and
// offline export stay identical.
var noiseSeeds = [2]uint32{0x9e3779b9, 0x85ebca6b}

// NewReverb builds a reverb for the given parameters.
func NewReverb(params looproom.ReverbParams, sampleRate, blockSize int) (*Reverb, error) {
	r := &Reverb{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		wetL:       make([]float32, blockSize),
		wetR:       make([]float32, blockSize),
	}
	if err := r.rebuild(params); err != nil {
		return nil, err
	}
	return r, nil
}

// SetParams applies new parameters. Only a change of decay or pre-delay
// rebuilds the impulse response; wet level and the enabled flag update in
// place, so knob tweaks during playback do not tear the chain down.
func (r *Reverb) SetParams(params looproom.ReverbParams) error {
	params.Clamp()
	if params.DecaySec != r.params.DecaySec || params.PreDelayMs != r.params.PreDelayMs {
		return r.rebuild(params)
	}
	r.params = params
	return nil
}

func (r *Reverb) rebuild(params looproom.ReverbParams) error {
	params.Clamp()
	delayFrames := int(params.PreDelayMs / 1000 * float64(r.sampleRate))
	for ch := 0; ch < 2; ch++ {
		impulse := impulseResponse(params.DecaySec, r.sampleRate, noiseSeeds[ch])
		conv, err := newConvolver(impulse, r.blockSize)
		if err != nil {
			return err
		}
		r.conv[ch] = conv
		r.preDelay[ch] = newDelayLine(delayFrames)
	}
	r.params = params
	return nil
}

// Process runs the wet path over a copy of the block and mixes it back
// against the dry signal. A disabled reverb is a pass-through.
func (rv *Reverb) Process(l, r []float32) error {
	if !rv.params.Enabled {
		return nil
	}
	copy(rv.wetL, l)
	copy(rv.wetR, r)
	rv.preDelay[0].Process(rv.wetL)
	rv.preDelay[1].Process(rv.wetR)
	if err := rv.conv[0].Process(rv.wetL); err != nil {
		return err
	}
	if err := rv.conv[1].Process(rv.wetR); err != nil {
		return err
	}
	wet := float32(rv.params.Wet)
	dry := float32(1 - rv.params.Wet)
	for i := range l {
		l[i] = dry*l[i] + wet*rv.wetL[i]
		r[i] = dry*r[i] + wet*rv.wetR[i]
	}
	return nil
}

// impulseResponse generates the reverb kernel: white noise under a (1-t)^3
// decay envelope over decaySec, which is clamped to 0.05..10 seconds.
func impulseResponse(decaySec float64, sampleRate int, seed uint32) []float32 {
	if decaySec < 0.05 {
		decaySec = 0.05
	}
	if decaySec > 10 {
		decaySec = 10
	}
	length := int(decaySec * float64(sampleRate))
	if length < 1 {
		length = 1
	}
	impulse := make([]float32, length)
	for i := range impulse {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		noise := float64(int32(seed))/math.MaxInt32 // [-1, 1)
		t := float64(i) / float64(length)
		env := (1 - t) * (1 - t) * (1 - t)
		impulse[i] = float32(noise * env)
	}
	return impulse
}

// delayLine is a fixed integer-sample delay, used for the reverb pre-delay.
type delayLine struct {
	buffer []float32
	pos    int
}

func newDelayLine(frames int) *delayLine {
	return &delayLine{buffer: make([]float32, frames)}
}

// Process delays the block in place. A zero-length delay is a pass-through.
func (d *delayLine) Process(buf []float32) {
	if len(d.buffer) == 0 {
		return
	}
	for i, v := range buf {
		buf[i] = d.buffer[d.pos]
		d.buffer[d.pos] = v
		d.pos = (d.pos + 1) % len(d.buffer)
	}
}
