package engine

import (
	"math"

	"github.com/looproom/looproom"
	"github.com/looproom/looproom/arp"
	"github.com/looproom/looproom/dsp"
)

// SourceKind tells what kind of sound source a SourceSpec describes.
type SourceKind uint8

const (
	SourceBuffer SourceKind = iota
	SourceOsc
)

// SourceSpec is one sound source the scheduler decided must sound: a region
// of a decoded audio buffer, or one synthesized MIDI note. All times are
// timeline-absolute seconds; the consumer (realtime player or offline
// renderer) maps them onto its own clock. Plan is a pure function, which is
// what keeps live playback and offline export in agreement: both consume the
// very same specs.
type SourceSpec struct {
	TrackID string
	ClipID  string
	Kind    SourceKind

	StartSec float64
	EndSec   float64

	// Buffer sources.
	Buffer       *looproom.SampleBuffer
	SrcOffsetSec float64

	// Oscillator sources.
	Waveform   looproom.Waveform
	FreqHz     float64
	Gain       float64
	AttackSec  float64
	ReleaseSec float64
}

// PlanRequest is the input of a scheduling pass: a snapshot of the tracks,
// the tempo, the playhead to schedule from and an optional end boundary
// (the loop end). ClipIDs, when non-nil, restricts planning to those clips;
// that is the subset-reschedule path used for mid-playback edits.
type PlanRequest struct {
	Tracks      []looproom.Track
	BPM         float64
	PlayheadSec float64
	EndLimitSec float64 // <= 0 means unbounded
	ClipIDs     map[string]bool
	SoloActive  bool
}

// Plan computes every source that must sound in [playhead, endLimit). Clips
// that cannot sound — wrong content kind for their track, no materialized
// buffer yet, silenced by mute/solo, empty playable window — are silently
// skipped; those are normal transient states in a live collaborative
// timeline, not errors.
func Plan(req PlanRequest) []SourceSpec {
	endLimit := req.EndLimitSec
	if endLimit <= 0 {
		endLimit = math.Inf(1)
	}
	var specs []SourceSpec
	for i := range req.Tracks {
		track := &req.Tracks[i]
		if track.EffectiveGain(req.SoloActive) == 0 {
			continue
		}
		for j := range track.Clips {
			clip := &track.Clips[j]
			if req.ClipIDs != nil && !req.ClipIDs[clip.ID] {
				continue
			}
			if !track.Accepts(clip) {
				continue
			}
			if clip.EndSec() <= req.PlayheadSec || clip.StartSec >= endLimit {
				continue
			}
			if clip.IsMidi() {
				specs = append(specs, planMidiClip(track, clip, req.BPM, req.PlayheadSec, endLimit)...)
			} else if spec, ok := planAudioClip(track, clip, req.PlayheadSec, endLimit); ok {
				specs = append(specs, spec)
			}
		}
	}
	return specs
}

// Voice materializes the spec as a dsp voice rendering at the given sample
// rate; frameFor maps timeline-absolute seconds onto the consumer's output
// frames. Both the realtime player and the offline renderer build their
// voices here, so an export sounds exactly like live playback of the same
// range. Returns nil for a degenerate (empty) spec.
func (s SourceSpec) Voice(sampleRate int, frameFor func(timelineSec float64) int64) dsp.Voice {
	startFrame := frameFor(s.StartSec)
	lengthFrames := int64(math.Round((s.EndSec - s.StartSec) * float64(sampleRate)))
	if lengthFrames <= 0 {
		return nil
	}
	switch s.Kind {
	case SourceBuffer:
		return &dsp.BufferVoice{
			Buffer:     s.Buffer,
			StartFrame: startFrame,
			SrcOffset:  int64(math.Round(s.SrcOffsetSec * float64(s.Buffer.SampleRate))),
			Length:     lengthFrames,
			Gain:       1,
		}
	case SourceOsc:
		return &dsp.OscVoice{
			Waveform:      s.Waveform,
			FreqHz:        s.FreqHz,
			SampleRate:    sampleRate,
			Gain:          float32(s.Gain),
			StartFrame:    startFrame,
			EndFrame:      startFrame + lengthFrames,
			AttackFrames:  int64(math.Round(s.AttackSec * float64(sampleRate))),
			ReleaseFrames: int64(math.Round(s.ReleaseSec * float64(sampleRate))),
		}
	}
	return nil
}

// planAudioClip computes the playable region of an audio clip: the clip
// window start plus the leading silence, bounded by the remaining buffer
// content, the clip window, the playhead and the end limit.
func planAudioClip(track *looproom.Track, clip *looproom.Clip, playhead, endLimit float64) (SourceSpec, bool) {
	if clip.Buffer == nil {
		return SourceSpec{}, false
	}
	audioStart := clip.AudioStartSec()
	start := math.Max(playhead, audioStart)
	end := math.Min(endLimit, audioStart+(clip.Buffer.DurationSec()-clip.BufferOffsetSec))
	end = math.Min(end, clip.EndSec())
	if end-start <= 0 {
		return SourceSpec{}, false
	}
	return SourceSpec{
		TrackID:      track.ID,
		ClipID:       clip.ID,
		Kind:         SourceBuffer,
		StartSec:     start,
		EndSec:       end,
		Buffer:       clip.Buffer,
		SrcOffsetSec: clip.BufferOffsetSec + (start - audioStart),
	}, true
}

// planMidiClip expands the clip's notes (arpeggiating first when the track's
// arpeggiator is enabled) and clips each note to the schedulable window.
// Note beats are in clip content time; OffsetBeats beats have been trimmed
// from the front of the content by dragging the clip's left edge.
func planMidiClip(track *looproom.Track, clip *looproom.Clip, bpm, playhead, endLimit float64) []SourceSpec {
	if bpm <= 0 {
		return nil
	}
	secondsPerBeat := 60 / bpm
	midi := clip.Midi
	notes := midi.Notes
	if track.Arpeggiator != nil && track.Arpeggiator.Enabled {
		lengthBeats := midi.OffsetBeats + clip.Duration/secondsPerBeat
		notes = arp.Expand(notes, *track.Arpeggiator, lengthBeats)
	}

	waveform := midi.Waveform
	gain := midi.Gain
	attack, release := 0.0, 0.0
	if track.Synth != nil {
		synth := *track.Synth
		synth.Clamp()
		if synth.Waveform != "" {
			waveform = synth.Waveform
		}
		gain *= synth.Gain
		attack = synth.AttackMs / 1000
		release = synth.ReleaseMs / 1000
	}
	if waveform == "" {
		waveform = looproom.WaveSine
	}

	var specs []SourceSpec
	for _, note := range notes {
		start := clip.StartSec + (note.Beat-midi.OffsetBeats)*secondsPerBeat
		end := start + note.Length*secondsPerBeat
		// trim the portion dragged off the clip's left edge
		start = math.Max(start, clip.StartSec)
		// clip to the window and the schedulable range
		start = math.Max(start, playhead)
		end = math.Min(end, clip.EndSec())
		end = math.Min(end, endLimit)
		if end-start <= 0 {
			continue
		}
		specs = append(specs, SourceSpec{
			TrackID:    track.ID,
			ClipID:     clip.ID,
			Kind:       SourceOsc,
			StartSec:   start,
			EndSec:     end,
			Waveform:   waveform,
			FreqHz:     dsp.NoteFreq(note.Pitch),
			Gain:       note.Velocity * gain,
			AttackSec:  attack,
			ReleaseSec: release,
		})
	}
	return specs
}
