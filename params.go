package looproom

// Waveform defines the oscillator shape for synthesized MIDI voices.
type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveSquare   Waveform = "square"
	WaveSawtooth Waveform = "sawtooth"
	WaveTriangle Waveform = "triangle"
)

// EffectType names one of the effect slots a track or the master bus can
// carry. At most one effect of each type exists per target.
type EffectType string

const (
	EffectEq          EffectType = "eq"
	EffectReverb      EffectType = "reverb"
	EffectSynth       EffectType = "synth"
	EffectArpeggiator EffectType = "arpeggiator"
)

// FilterType is the response type of one EQ band, matching the standard
// 2nd-order IIR biquad characteristics of the same name.
type FilterType string

const (
	FilterPeaking   FilterType = "peaking"
	FilterLowShelf  FilterType = "lowshelf"
	FilterHighShelf FilterType = "highshelf"
	FilterLowpass   FilterType = "lowpass"
	FilterHighpass  FilterType = "highpass"
	FilterBandpass  FilterType = "bandpass"
	FilterNotch     FilterType = "notch"
)

// SupportsGain reports whether the filter type uses the band's gain
// parameter. Lowpass, highpass, bandpass and notch always contribute 0 dB
// regardless of the configured gain.
func (f FilterType) SupportsGain() bool {
	switch f {
	case FilterPeaking, FilterLowShelf, FilterHighShelf:
		return true
	}
	return false
}

type (
	// EqBandParams is one band of a track or master EQ.
	EqBandParams struct {
		ID          string     `yaml:"id"`
		Type        FilterType `yaml:"type"`
		FrequencyHz float64    `yaml:"frequency"` // 20..20000
		GainDb      float64    `yaml:"gainDb"`    // -24..+24
		Q           float64    `yaml:"q"`         // 0.2..18
		Enabled     bool       `yaml:"enabled"`
	}

	// EqParams is an ordered band list plus a master enable.
	EqParams struct {
		Enabled bool           `yaml:"enabled"`
		Bands   []EqBandParams `yaml:"bands"`
	}

	// ReverbParams describes the convolution reverb send.
	ReverbParams struct {
		Enabled    bool    `yaml:"enabled"`
		Wet        float64 `yaml:"wet"`        // 0..1
		DecaySec   float64 `yaml:"decaySec"`   // 0.1..10
		PreDelayMs float64 `yaml:"preDelayMs"` // 0..200
	}

	// SynthParams configures the subtractive synth voice of an instrument
	// track.
	SynthParams struct {
		Waveform  Waveform `yaml:"waveform"`
		Gain      float64  `yaml:"gain"`      // 0..1.5
		AttackMs  float64  `yaml:"attackMs"`  // 0..200
		ReleaseMs float64  `yaml:"releaseMs"` // 0..200
	}

	// ArpeggiatorParams configures the note expander of an instrument
	// track.
	ArpeggiatorParams struct {
		Enabled bool       `yaml:"enabled"`
		Pattern ArpPattern `yaml:"pattern"`
		Rate    ArpRate    `yaml:"rate"`
		Octaves int        `yaml:"octaves"` // 1..4
		Gate    float64    `yaml:"gate"`    // 0.1..1.0
		Hold    bool       `yaml:"hold"`
	}
)

// ArpPattern is the order in which the arpeggiator cycles a chord.
type ArpPattern string

const (
	ArpUp     ArpPattern = "up"
	ArpDown   ArpPattern = "down"
	ArpUpDown ArpPattern = "updown"
	ArpRandom ArpPattern = "random"
)

// ArpRate is the rhythmic subdivision of the arpeggiator.
type ArpRate string

const (
	ArpRate4  ArpRate = "1/4"
	ArpRate8  ArpRate = "1/8"
	ArpRate16 ArpRate = "1/16"
	ArpRate32 ArpRate = "1/32"
)

// Beats returns the step length of the rate in beats. Unknown rates map to
// a quarter note.
func (r ArpRate) Beats() float64 {
	switch r {
	case ArpRate8:
		return 0.5
	case ArpRate16:
		return 0.25
	case ArpRate32:
		return 0.125
	}
	return 1
}

// Clamp forces every band of the EQ into its legal range.
func (p *EqParams) Clamp() {
	for i := range p.Bands {
		b := &p.Bands[i]
		b.FrequencyHz = clampFloat(b.FrequencyHz, 20, 20000)
		b.GainDb = clampFloat(b.GainDb, -24, 24)
		b.Q = clampFloat(b.Q, 0.2, 18)
	}
}

// Copy makes a deep copy of the EQ parameters.
func (p *EqParams) Copy() EqParams {
	bands := make([]EqBandParams, len(p.Bands))
	copy(bands, p.Bands)
	return EqParams{Enabled: p.Enabled, Bands: bands}
}

// Clamp forces the reverb parameters into their legal ranges.
func (p *ReverbParams) Clamp() {
	p.Wet = clampFloat(p.Wet, 0, 1)
	p.DecaySec = clampFloat(p.DecaySec, 0.1, 10)
	p.PreDelayMs = clampFloat(p.PreDelayMs, 0, 200)
}

// Clamp forces the synth parameters into their legal ranges.
func (p *SynthParams) Clamp() {
	p.Gain = clampFloat(p.Gain, 0, 1.5)
	p.AttackMs = clampFloat(p.AttackMs, 0, 200)
	p.ReleaseMs = clampFloat(p.ReleaseMs, 0, 200)
}

// Clamp forces the arpeggiator parameters into their legal ranges. Gate is
// not clamped upwards from zero: a zero gate is a valid degenerate setting
// that silences the arpeggiator.
func (p *ArpeggiatorParams) Clamp() {
	if p.Octaves < 1 {
		p.Octaves = 1
	}
	if p.Octaves > 4 {
		p.Octaves = 4
	}
	if p.Gate > 1 {
		p.Gate = 1
	}
}
