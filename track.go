package looproom

import (
	"errors"
	"fmt"
	"time"
)

// TrackKind tells which kind of clips a track accepts: audio tracks accept
// only audio clips, instrument tracks accept only MIDI clips.
type TrackKind string

const (
	TrackAudio      TrackKind = "audio"
	TrackInstrument TrackKind = "instrument"
)

// StaleLockTimeout is how long a collaborative edit lock is honored without
// activity before it is considered abandoned and cleared. A variable rather
// than a constant; the 60s value is a product-level tuning knob.
var StaleLockTimeout = 60 * time.Second

// Track is one lane of the timeline. The clip list is kept ordered by start
// time and, outside transient drag previews, never contains two clips whose
// timeline windows overlap.
type Track struct {
	ID     string    `yaml:"id"`
	Name   string    `yaml:"name,omitempty"`
	Kind   TrackKind `yaml:"kind"`
	Volume float64   `yaml:"volume"` // linear gain 0..1

	// Muted and Soloed are local-only flags; they are never persisted to
	// the shared store.
	Muted  bool `yaml:"-"`
	Soloed bool `yaml:"-"`

	// LockOwner identifies the collaborator currently editing this track,
	// if any. Locks older than StaleLockTimeout are stale.
	LockOwner string    `yaml:"-"`
	LockedAt  time.Time `yaml:"-"`

	Clips []Clip `yaml:"clips"`

	Eq          *EqParams          `yaml:"eq,omitempty"`
	Reverb      *ReverbParams      `yaml:"reverb,omitempty"`
	Synth       *SynthParams       `yaml:"synth,omitempty"`
	Arpeggiator *ArpeggiatorParams `yaml:"arpeggiator,omitempty"`
}

// LockStale reports whether the track's edit lock has expired at the given
// time. A track without a lock owner is never stale.
func (t *Track) LockStale(now time.Time) bool {
	return t.LockOwner != "" && now.Sub(t.LockedAt) > StaleLockTimeout
}

// ClearStaleLock drops the edit lock if it has expired. Returns true if a
// lock was cleared.
func (t *Track) ClearStaleLock(now time.Time) bool {
	if !t.LockStale(now) {
		return false
	}
	t.LockOwner = ""
	t.LockedAt = time.Time{}
	return true
}

// EffectiveGain returns the gain the track contributes to the mix, taking
// mute and session-wide solo state into account.
func (t *Track) EffectiveGain(soloActive bool) float64 {
	if t.Muted || (soloActive && !t.Soloed) {
		return 0
	}
	return t.Volume
}

// Accepts reports whether a clip of the given content may be placed on this
// track: instrument tracks take only MIDI clips, audio tracks only audio
// clips.
func (t *Track) Accepts(clip *Clip) bool {
	if clip.IsMidi() {
		return t.Kind == TrackInstrument
	}
	return t.Kind == TrackAudio
}

// Clip returns the clip with the given id, or nil if there is none.
func (t *Track) Clip(id string) *Clip {
	for i := range t.Clips {
		if t.Clips[i].ID == id {
			return &t.Clips[i]
		}
	}
	return nil
}

// CanPlace checks that the clip fits this track: right content kind and no
// overlap with any other clip. The clip itself is skipped by id, so moves
// and resizes can be validated in place.
func (t *Track) CanPlace(clip *Clip) error {
	if !t.Accepts(clip) {
		return fmt.Errorf("track kind %v does not accept this clip content", t.Kind)
	}
	for i := range t.Clips {
		other := &t.Clips[i]
		if other.ID == clip.ID {
			continue
		}
		if clip.StartSec < other.StartSec+other.Duration && other.StartSec < clip.StartSec+clip.Duration {
			return fmt.Errorf("clip overlaps clip %v", other.ID)
		}
	}
	return nil
}

// Validate checks the per-track invariants.
func (t *Track) Validate() error {
	if t.Kind != TrackAudio && t.Kind != TrackInstrument {
		return fmt.Errorf("unknown track kind %q", t.Kind)
	}
	if t.Volume < 0 || t.Volume > 1 {
		return errors.New("track volume should be within 0..1")
	}
	for i := range t.Clips {
		clip := &t.Clips[i]
		if err := clip.Validate(); err != nil {
			return fmt.Errorf("clip %v: %w", clip.ID, err)
		}
		if !t.Accepts(clip) {
			return fmt.Errorf("clip %v has wrong content kind for track kind %v", clip.ID, t.Kind)
		}
		for j := i + 1; j < len(t.Clips); j++ {
			other := &t.Clips[j]
			if clip.StartSec < other.StartSec+other.Duration && other.StartSec < clip.StartSec+clip.Duration {
				return fmt.Errorf("clips %v and %v overlap", clip.ID, other.ID)
			}
		}
	}
	return nil
}

// Copy makes a deep copy of the track.
func (t *Track) Copy() Track {
	clips := make([]Clip, len(t.Clips))
	for i, c := range t.Clips {
		clips[i] = c.Copy()
	}
	ret := *t
	ret.Clips = clips
	if t.Eq != nil {
		eq := t.Eq.Copy()
		ret.Eq = &eq
	}
	if t.Reverb != nil {
		rev := *t.Reverb
		ret.Reverb = &rev
	}
	if t.Synth != nil {
		syn := *t.Synth
		ret.Synth = &syn
	}
	if t.Arpeggiator != nil {
		a := *t.Arpeggiator
		ret.Arpeggiator = &a
	}
	return ret
}
