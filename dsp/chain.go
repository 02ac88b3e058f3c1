package dsp

import (
	"fmt"

	"github.com/looproom/looproom"
)

// Chain is the signal chain of one track or of the master bus: input gain,
// the enabled EQ bands in series, an optional reverb send, and an output
// gain feeding the next stage. A track chain's output gain carries the
// track's effective (mute/solo-aware) volume; the master chain's output gain
// is normally unity.
//
// Parameter updates are applied in place: changing one band's frequency
// swaps that biquad's coefficients without touching the rest of the chain,
// and toggling the EQ or reverb enable is just a flag. Only structural EQ
// changes (band added, removed or retyped) and reverb decay/pre-delay
// changes rebuild anything.
type Chain struct {
	sampleRate int
	blockSize  int

	inputGain  float32
	outputGain float32

	eq      looproom.EqParams
	bands   []*Biquad
	reverb  *Reverb
	scratch []float32
}

// NewChain creates a unity-gain chain with no effects.
func NewChain(sampleRate, blockSize int) *Chain {
	return &Chain{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		inputGain:  1,
		outputGain: 1,
		scratch:    make([]float32, blockSize),
	}
}

// SetInputGain sets the gain applied before the effects.
func (c *Chain) SetInputGain(gain float64) { c.inputGain = float32(gain) }

// SetOutputGain sets the gain applied after the effects.
func (c *Chain) SetOutputGain(gain float64) { c.outputGain = float32(gain) }

// SetEq applies EQ parameters. A nil params disables the EQ entirely. If the
// band list has the same shape as before (same count, same types), the
// existing sections get new coefficients and keep their filter state;
// otherwise the section list is rebuilt.
func (c *Chain) SetEq(params *looproom.EqParams) {
	if params == nil {
		c.eq = looproom.EqParams{}
		c.bands = nil
		return
	}
	p := params.Copy()
	p.Clamp()
	if sameShape(c.eq.Bands, p.Bands) {
		for i, band := range p.Bands {
			c.bands[i].SetCoefficients(DesignBand(band, c.sampleRate))
		}
	} else {
		c.bands = make([]*Biquad, len(p.Bands))
		for i, band := range p.Bands {
			c.bands[i] = NewBiquad(DesignBand(band, c.sampleRate))
		}
	}
	c.eq = p
}

func sameShape(a, b []looproom.EqBandParams) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
	}
	return true
}

// SetReverb applies reverb parameters. A nil params removes the reverb.
func (c *Chain) SetReverb(params *looproom.ReverbParams) error {
	if params == nil {
		c.reverb = nil
		return nil
	}
	if c.reverb == nil {
		reverb, err := NewReverb(*params, c.sampleRate, c.blockSize)
		if err != nil {
			return fmt.Errorf("could not build reverb: %w", err)
		}
		c.reverb = reverb
		return nil
	}
	if err := c.reverb.SetParams(*params); err != nil {
		return fmt.Errorf("could not update reverb: %w", err)
	}
	return nil
}

// Process runs one block through the chain in place. Both channels must be
// exactly blockSize long.
func (c *Chain) Process(l, r []float32) error {
	if len(l) != c.blockSize || len(r) != c.blockSize {
		return fmt.Errorf("chain expects blocks of %v frames, got %v/%v", c.blockSize, len(l), len(r))
	}
	if c.inputGain != 1 {
		ApplyGain(l, c.inputGain)
		ApplyGain(r, c.inputGain)
	}
	if c.eq.Enabled {
		for i, section := range c.bands {
			if !c.eq.Bands[i].Enabled {
				continue
			}
			section.Process(l, r)
		}
	}
	if c.reverb != nil {
		if err := c.reverb.Process(l, r); err != nil {
			return err
		}
	}
	if c.outputGain != 1 {
		ApplyGain(l, c.outputGain)
		ApplyGain(r, c.outputGain)
	}
	return nil
}

// BandCoefficients exposes the design of the i'th EQ section, mostly for
// inspection in tests.
func (c *Chain) BandCoefficients(i int) Coefficients {
	return c.bands[i].Coefficients()
}
