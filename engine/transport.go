// Package engine contains the realtime playback machinery: the transport
// state machine and its clock epoch, the clip-to-source scheduler, and the
// Player that renders scheduled sources through the track and master signal
// chains into an audio sink. The engine only ever reads session snapshots
// passed in with each control message; it never owns the timeline data.
package engine

import "github.com/looproom/looproom"

// Epoch pairs an audio-clock timestamp with the playhead value at that
// timestamp. The displayed playhead is projected forward from the epoch
// instead of being rescheduled every frame; every start, seek and loop wrap
// replaces the epoch atomically before any rescheduling happens, so all
// timing math after the change uses the new mapping.
type Epoch struct {
	ClockSec    float64
	PlayheadSec float64
}

// Project returns the playhead at audio-clock time now: the epoch playhead
// plus the clock time elapsed since the epoch, less the known output
// latency, clamped to never run backwards.
func Project(now float64, epoch Epoch, outputLatency float64) float64 {
	elapsed := now - epoch.ClockSec - outputLatency
	if elapsed < 0 {
		elapsed = 0
	}
	return epoch.PlayheadSec + elapsed
}

// State is the transport state machine position.
type State uint8

const (
	Stopped State = iota
	Playing
	Paused
)

// Transport tracks playing/paused state and maps the logical playhead to the
// audio clock. It is driven with explicit clock readings so it can be tested
// against a fake clock; the Player feeds it the render-frame clock.
type Transport struct {
	state    State
	playhead float64
	epoch    Epoch
	loop     looproom.LoopRegion
	latency  float64
}

// NewTransport creates a stopped transport with the given known output
// latency in seconds.
func NewTransport(outputLatency float64) *Transport {
	return &Transport{latency: outputLatency}
}

// State returns the current transport state.
func (t *Transport) State() State { return t.state }

// Loop returns the current loop region.
func (t *Transport) Loop() looproom.LoopRegion { return t.loop }

// SetLoop replaces the loop region. It does not reschedule anything by
// itself; the caller decides whether the change affects playing sources.
func (t *Transport) SetLoop(loop looproom.LoopRegion) { t.loop = loop }

// Start begins or resumes playback from the current playhead, establishing a
// new epoch at the given clock time.
func (t *Transport) Start(now float64) {
	t.epoch = Epoch{ClockSec: now, PlayheadSec: t.playhead}
	t.state = Playing
}

// Pause freezes the playhead at its current projected value.
func (t *Transport) Pause(now float64) {
	if t.state == Playing {
		t.playhead = t.Playhead(now)
	}
	t.state = Paused
}

// Stop pauses and resets the playhead to zero.
func (t *Transport) Stop(now float64) {
	t.playhead = 0
	t.state = Stopped
}

// Seek moves the playhead. When playing, the epoch is re-established at the
// new position; the caller must do this before rescheduling sources so the
// scheduling math sees the new mapping.
func (t *Transport) Seek(now, sec float64) {
	if sec < 0 {
		sec = 0
	}
	t.playhead = sec
	if t.state == Playing {
		t.epoch = Epoch{ClockSec: now, PlayheadSec: sec}
	}
}

// Playhead returns the playhead at the given clock time: the frozen value
// when not playing, the epoch projection when playing. With an active loop
// the projection never reports past the loop end; the wrap is expected to
// happen on the same tick that reaches it.
func (t *Transport) Playhead(now float64) float64 {
	if t.state != Playing {
		return t.playhead
	}
	projected := Project(now, t.epoch, t.latency)
	if t.loop.Active() && projected > t.loop.EndSec {
		return t.loop.EndSec
	}
	return projected
}

// ShouldWrap reports whether the playhead has reached the loop boundary.
// The decision uses the un-latency-compensated projection: the renderer is
// ahead of the speaker, and scheduling follows the renderer.
func (t *Transport) ShouldWrap(now float64) bool {
	if t.state != Playing || !t.loop.Active() {
		return false
	}
	return Project(now, t.epoch, 0) >= t.loop.EndSec
}

// Wrap moves the playhead to the loop start and re-establishes the epoch a
// small scheduling-ahead offset into the future, so the sources scheduled
// right after the wrap are not in the past by the time they are created.
func (t *Transport) Wrap(now, scheduleAhead float64) {
	t.playhead = t.loop.StartSec
	t.epoch = Epoch{ClockSec: now + scheduleAhead, PlayheadSec: t.loop.StartSec}
}

// EndLimit returns the scheduling end boundary: the loop end when the loop
// is active, otherwise +Inf (represented as a negative value meaning none).
func (t *Transport) EndLimit() (float64, bool) {
	if t.loop.Active() {
		return t.loop.EndSec, true
	}
	return 0, false
}

// ContextSecFor maps a timeline-absolute time to the audio-clock time it
// should sound at under the current epoch.
func (t *Transport) ContextSecFor(timelineSec float64) float64 {
	return t.epoch.ClockSec + (timelineSec - t.epoch.PlayheadSec)
}
