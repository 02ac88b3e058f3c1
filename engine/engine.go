package engine

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/looproom/looproom"
)

// chunkBlocks is how many render blocks one sink write carries. The sink
// blocks when its internal buffer is full, which is what paces the engine.
const chunkBlocks = 8

// Engine owns the control side of playback: it holds the editable session,
// turns edit and transport calls into messages for the realtime player, and
// mirrors the player's reported state for observers. All methods are safe to
// call from any goroutine; the render path itself runs inside Run.
type Engine struct {
	broker *Broker
	player *Player
	log    zerolog.Logger

	mu      sync.Mutex
	session looproom.Session

	obsMu    sync.Mutex
	playhead float64
	state    State
	peak     float32
	rms      float32
}

// New creates an engine rendering at the given sample rate, with transport
// projections compensated for the sink's output latency.
func New(logger zerolog.Logger, sampleRate int, outputLatency float64) *Engine {
	broker := NewBroker()
	return &Engine{
		broker: broker,
		player: NewPlayer(broker, sampleRate, outputLatency),
		log:    logger,
	}
}

// SampleRate returns the rate the engine renders at.
func (e *Engine) SampleRate() int { return e.player.SampleRate() }

// Run renders audio into the sink until the context is cancelled. The sink's
// write blocking is the pacing mechanism: a realtime sink accepts chunks at
// the speed it plays them.
func (e *Engine) Run(ctx context.Context, sink looproom.AudioSink) error {
	buffer := make(looproom.AudioBuffer, chunkBlocks*BlockSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.drainModelMessages()
		if err := e.player.Process(buffer); err != nil {
			return err
		}
		if err := sink.WriteAudio(buffer); err != nil {
			return err
		}
	}
}

func (e *Engine) drainModelMessages() {
	for {
		select {
		case msg := <-e.broker.ToModel:
			e.obsMu.Lock()
			e.playhead = msg.PlayheadSec
			e.state = msg.State
			e.peak = msg.PeakLevel
			e.obsMu.Unlock()
			switch data := msg.Data.(type) {
			case Alert:
				e.log.Warn().Str("source", data.Name).Msg(data.Message)
			case *looproom.AudioBuffer:
				rms := blockRMS(*data)
				e.broker.PutAudioBuffer(data)
				e.obsMu.Lock()
				e.rms = rms
				e.obsMu.Unlock()
			}
		default:
			return
		}
	}
}

// PlayheadSec returns the most recently reported playhead position.
func (e *Engine) PlayheadSec() float64 {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	return e.playhead
}

// State returns the most recently reported transport state.
func (e *Engine) State() State {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	return e.state
}

// PeakLevel returns the most recently reported master peak level.
func (e *Engine) PeakLevel() float32 {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	return e.peak
}

// RmsLevel returns the RMS of the most recently rendered block, computed
// from the monitor buffers the player recycles through the broker pool.
func (e *Engine) RmsLevel() float32 {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	return e.rms
}

func blockRMS(buffer looproom.AudioBuffer) float32 {
	if len(buffer) == 0 {
		return 0
	}
	var sum float64
	for _, frame := range buffer {
		sum += float64(frame[0])*float64(frame[0]) + float64(frame[1])*float64(frame[1])
	}
	return float32(math.Sqrt(sum / float64(len(buffer)*2)))
}

// SetSession replaces the editable session. It does not reschedule running
// playback by itself; call RescheduleClips for clips whose timing changed,
// or Seek/Play to rebuild everything.
func (e *Engine) SetSession(session looproom.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = session.Copy()
}

// Session returns a copy of the editable session.
func (e *Engine) Session() looproom.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Copy()
}

// AttachBuffer hands a materialized sample buffer to the clip that requested
// it, then reschedules that clip so it starts sounding mid-playback. Clips
// with a missing buffer are silently skipped by the scheduler, so this is
// the moment a late-loading sample becomes audible.
func (e *Engine) AttachBuffer(clipID string, buffer *looproom.SampleBuffer) {
	e.mu.Lock()
	var found bool
	for i := range e.session.Tracks {
		if clip := e.session.Tracks[i].Clip(clipID); clip != nil {
			clip.Buffer = buffer
			found = true
			break
		}
	}
	snapshot := e.session.Copy()
	e.mu.Unlock()
	if !found {
		return
	}
	e.send(RescheduleClipsMsg{Session: snapshot, ClipIDs: []string{clipID}})
}

// Play starts or resumes playback from the current playhead.
func (e *Engine) Play() {
	e.send(StartPlayMsg{Session: e.Session()})
}

// Pause freezes playback, keeping the playhead.
func (e *Engine) Pause() { e.send(PauseMsg{}) }

// Stop halts playback and resets the playhead to zero.
func (e *Engine) Stop() { e.send(StopMsg{}) }

// Seek moves the playhead, rebuilding all scheduled sources when playing.
func (e *Engine) Seek(sec float64) {
	e.send(SeekMsg{Sec: sec, Session: e.Session()})
}

// SetLoop replaces the loop region both in the editable session and in the
// running transport.
func (e *Engine) SetLoop(loop looproom.LoopRegion) {
	e.mu.Lock()
	e.session.Loop = loop
	e.mu.Unlock()
	e.send(SetLoopMsg{Loop: loop})
}

// RescheduleClips stops and replans only the named clips from the current
// playhead. Use after editing a clip's timing or contents mid-playback.
func (e *Engine) RescheduleClips(clipIDs ...string) {
	e.RescheduleClipsUntil(0, clipIDs...)
}

// RescheduleClipsUntil is RescheduleClips with an explicit horizon: the
// replanned sources are truncated at endLimitSec instead of the loop or
// session end. A zero or negative limit means no override.
func (e *Engine) RescheduleClipsUntil(endLimitSec float64, clipIDs ...string) {
	if len(clipIDs) == 0 {
		return
	}
	e.send(RescheduleClipsMsg{Session: e.Session(), ClipIDs: clipIDs, EndLimitSec: endLimitSec})
}

// SetTrackEq sets or removes (nil) a track's EQ, updating the live chain in
// place so filter state survives parameter tweaks.
func (e *Engine) SetTrackEq(trackID string, params *looproom.EqParams) {
	e.mu.Lock()
	if track := e.session.Track(trackID); track != nil {
		track.Eq = params
	}
	e.mu.Unlock()
	e.send(SetTrackEffectMsg{TrackID: trackID, Type: looproom.EffectEq, Eq: params})
}

// SetTrackReverb sets or removes (nil) a track's reverb.
func (e *Engine) SetTrackReverb(trackID string, params *looproom.ReverbParams) {
	e.mu.Lock()
	if track := e.session.Track(trackID); track != nil {
		track.Reverb = params
	}
	e.mu.Unlock()
	e.send(SetTrackEffectMsg{TrackID: trackID, Type: looproom.EffectReverb, Reverb: params})
}

// SetTrackSynth sets or removes (nil) an instrument track's synth settings.
// Already sounding notes keep their settings; newly scheduled ones pick up
// the change.
func (e *Engine) SetTrackSynth(trackID string, params *looproom.SynthParams) {
	e.mu.Lock()
	if track := e.session.Track(trackID); track != nil {
		track.Synth = params
	}
	e.mu.Unlock()
	e.send(SetTrackEffectMsg{TrackID: trackID, Type: looproom.EffectSynth, Synth: params})
}

// SetTrackArpeggiator sets or removes (nil) an instrument track's
// arpeggiator. Takes effect on the next scheduling pass; reschedule the
// track's MIDI clips to hear it immediately.
func (e *Engine) SetTrackArpeggiator(trackID string, params *looproom.ArpeggiatorParams) {
	e.mu.Lock()
	if track := e.session.Track(trackID); track != nil {
		track.Arpeggiator = params
	}
	e.mu.Unlock()
	e.send(SetTrackEffectMsg{TrackID: trackID, Type: looproom.EffectArpeggiator, Arpeggiator: params})
}

// SetMasterEq sets or removes (nil) the master bus EQ.
func (e *Engine) SetMasterEq(params *looproom.EqParams) {
	e.mu.Lock()
	e.session.MasterEq = params
	e.mu.Unlock()
	e.send(SetMasterEffectMsg{Type: looproom.EffectEq, Eq: params})
}

// SetMasterReverb sets or removes (nil) the master bus reverb.
func (e *Engine) SetMasterReverb(params *looproom.ReverbParams) {
	e.mu.Lock()
	e.session.MasterReverb = params
	e.mu.Unlock()
	e.send(SetMasterEffectMsg{Type: looproom.EffectReverb, Reverb: params})
}

func (e *Engine) send(msg any) {
	if !TrySend(e.broker.ToPlayer, msg) {
		e.log.Warn().Type("msg", msg).Msg("player message dropped, control channel full")
	}
}
