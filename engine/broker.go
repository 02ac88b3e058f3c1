package engine

import (
	"sync"

	"github.com/looproom/looproom"
)

type (
	// Broker is the message hub between the engine facade, the realtime
	// player and whoever is observing playback (the CLI, a websocket
	// bridge). Communication is many-to-one: one channel per recipient.
	// The broker also pools AudioBuffers so the player can pass rendered
	// audio around without allocating on the render path.
	Broker struct {
		ToPlayer chan any
		ToModel  chan MsgToModel

		bufferPool sync.Pool
	}

	// MsgToModel carries the player's frequently updated state. Playhead,
	// state and peak level are unboxed to avoid allocations; alerts and
	// pooled monitor blocks travel boxed in Data.
	MsgToModel struct {
		PlayheadSec float64
		State       State
		PeakLevel   float32

		Data any
	}

	// Alert is a non-fatal problem the player wants the user to see, e.g.
	// a failed chain rebuild. The player never blocks or crashes on these.
	Alert struct {
		Name    string
		Message string
	}
)

// Control messages to the player. Each carries the session snapshot it
// should operate on, taken by the facade at call time.
type (
	// StartPlayMsg starts or resumes playback.
	StartPlayMsg struct {
		Session looproom.Session
	}

	// PauseMsg freezes playback, stopping all scheduled sources.
	PauseMsg struct{}

	// StopMsg stops playback and resets the playhead to zero.
	StopMsg struct{}

	// SeekMsg moves the playhead, rescheduling everything when playing.
	SeekMsg struct {
		Sec     float64
		Session looproom.Session
	}

	// RescheduleClipsMsg stops and reschedules only the named clips' sources
	// from the current playhead, leaving all others untouched. Used when a
	// clip is edited mid-playback.
	RescheduleClipsMsg struct {
		Session     looproom.Session
		ClipIDs     []string
		EndLimitSec float64 // <= 0 means "use the transport's loop bound"
	}

	// SetLoopMsg replaces the loop region.
	SetLoopMsg struct {
		Loop looproom.LoopRegion
	}

	// SetTrackEffectMsg applies one effect parameter set to one track's
	// live chain. Type names the effect; the matching parameter field is
	// the new value, nil meaning "remove the effect".
	SetTrackEffectMsg struct {
		TrackID     string
		Type        looproom.EffectType
		Eq          *looproom.EqParams
		Reverb      *looproom.ReverbParams
		Synth       *looproom.SynthParams
		Arpeggiator *looproom.ArpeggiatorParams
	}

	// SetMasterEffectMsg applies one effect parameter set to the master
	// chain, same conventions as SetTrackEffectMsg.
	SetMasterEffectMsg struct {
		Type   looproom.EffectType
		Eq     *looproom.EqParams
		Reverb *looproom.ReverbParams
	}
)

// NewBroker creates the channels. The player channel is deep enough that
// control senders essentially never block; sends from the player side are
// always non-blocking.
func NewBroker() *Broker {
	return &Broker{
		ToPlayer:   make(chan any, 1024),
		ToModel:    make(chan MsgToModel, 1024),
		bufferPool: sync.Pool{New: func() any { return &looproom.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an empty buffer from the pool. Return it with
// PutAudioBuffer when done.
func (b *Broker) GetAudioBuffer() *looproom.AudioBuffer {
	return b.bufferPool.Get().(*looproom.AudioBuffer)
}

// PutAudioBuffer returns a buffer to the pool, resetting its length but
// keeping its capacity.
func (b *Broker) PutAudioBuffer(buf *looproom.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend sends a value to a channel unless it is full. It is guaranteed to
// be non-blocking; the player uses it for everything so the render thread
// can never deadlock.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}
