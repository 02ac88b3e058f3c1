package looproom

import (
	"errors"
	"fmt"
)

type (
	// Clip is one region on the timeline. StartSec and Duration define the
	// clip's fixed window; exactly one of the audio content (SampleURL,
	// LeftPadSec, BufferOffsetSec plus the materialized Buffer) or the MIDI
	// content (Midi) is populated, never both.
	Clip struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name,omitempty"`

		StartSec float64 `yaml:"startSec"`
		Duration float64 `yaml:"duration"`

		// Audio content. Buffer is nil until the buffer materialization
		// cache has fetched and decoded SampleURL; a clip without a buffer
		// is silently skipped by the scheduler.
		SampleURL       string        `yaml:"sampleUrl,omitempty"`
		LeftPadSec      float64       `yaml:"leftPadSec,omitempty"`
		BufferOffsetSec float64       `yaml:"bufferOffsetSec,omitempty"`
		Buffer          *SampleBuffer `yaml:"-"`

		// MIDI content.
		Midi *MidiProgram `yaml:"midi,omitempty"`
	}

	// MidiProgram is the MIDI payload of an instrument clip. Beats are
	// relative to the clip start; OffsetBeats is how many beats have been
	// trimmed from the front by dragging the clip's left edge.
	MidiProgram struct {
		Waveform    Waveform `yaml:"waveform"`
		Gain        float64  `yaml:"gain"`
		Notes       []Note   `yaml:"notes"`
		OffsetBeats float64  `yaml:"offsetBeats,omitempty"`
	}

	// Note is a single MIDI note within a clip, in beats relative to the
	// clip start. Velocity is linear 0..1.
	Note struct {
		Beat     float64 `yaml:"beat"`
		Length   float64 `yaml:"length"`
		Pitch    int     `yaml:"pitch"`
		Velocity float64 `yaml:"velocity"`
	}

	// SampleBuffer is a decoded audio asset, always stereo at the rate it
	// was resampled to by the materialization cache.
	SampleBuffer struct {
		Data       AudioBuffer
		SampleRate int
	}
)

// IsMidi reports whether the clip carries MIDI content.
func (c *Clip) IsMidi() bool { return c.Midi != nil }

// AudioStartSec is the timeline time at which the clip's audio actually
// starts sounding: the clip window start plus the leading silence.
func (c *Clip) AudioStartSec() float64 { return c.StartSec + c.LeftPadSec }

// EndSec is the end of the clip's timeline window.
func (c *Clip) EndSec() float64 { return c.StartSec + c.Duration }

// Validate checks the clip invariants: a positive window, exactly one
// content kind, and trims within range.
func (c *Clip) Validate() error {
	if c.Duration <= 0 {
		return errors.New("clip duration should be > 0")
	}
	hasAudio := c.SampleURL != "" || c.Buffer != nil
	if hasAudio && c.Midi != nil {
		return errors.New("clip has both audio and MIDI content")
	}
	if !hasAudio && c.Midi == nil {
		return errors.New("clip has neither audio nor MIDI content")
	}
	if c.LeftPadSec < 0 || c.BufferOffsetSec < 0 {
		return errors.New("clip trims should be non-negative")
	}
	if c.Midi != nil {
		if c.Midi.OffsetBeats < 0 {
			return errors.New("midi offset should be non-negative")
		}
		for i, n := range c.Midi.Notes {
			if n.Length < 0 || n.Velocity < 0 {
				return fmt.Errorf("note %v has negative length or velocity", i)
			}
			if n.Pitch < 0 || n.Pitch > 127 {
				return fmt.Errorf("note %v pitch %v outside 0..127", i, n.Pitch)
			}
		}
	}
	return nil
}

// Copy makes a deep copy of the clip. The sample buffer is shared, not
// copied; buffers are immutable once materialized.
func (c *Clip) Copy() Clip {
	ret := *c
	if c.Midi != nil {
		midi := *c.Midi
		midi.Notes = make([]Note, len(c.Midi.Notes))
		copy(midi.Notes, c.Midi.Notes)
		ret.Midi = &midi
	}
	return ret
}

// DurationSec returns the buffer length in seconds.
func (b *SampleBuffer) DurationSec() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Data)) / float64(b.SampleRate)
}
