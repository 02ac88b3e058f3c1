package engine

import (
	"fmt"
	"math"

	"github.com/looproom/looproom"
	"github.com/looproom/looproom/dsp"
)

const (
	// BlockSize is the render quantum in frames. It is also the reverb
	// convolver's partition size, so the chains add no latency of their
	// own.
	BlockSize = 128

	// scheduleAheadSec is how far into the future a loop wrap places the
	// new epoch, so wrap-scheduled sources are not already late.
	scheduleAheadSec = 0.01
)

// playerVoice is one sounding source, tagged with the clip it came from so
// a mid-playback clip edit can stop exactly the sources of that clip.
type playerVoice struct {
	clipID string
	voice  dsp.Voice
}

// trackUnit is the live mixing state of one track: its signal chain and the
// voices currently sounding on it. The chain's output gain carries the
// track's mute/solo-aware volume.
type trackUnit struct {
	chain  *dsp.Chain
	voices []playerVoice
}

// Player renders the session. It runs on the audio goroutine: all its inputs
// arrive as messages through the broker, all its outputs leave as
// non-blocking sends, and the only clock it knows is its own frame counter.
type Player struct {
	broker     *Broker
	sampleRate int

	transport *Transport
	session   looproom.Session
	frame     int64

	units  map[string]*trackUnit
	master *dsp.Chain

	trackL, trackR []float32
	busL, busR     []float32
	peakScratch    []float32
}

// NewPlayer creates a player rendering at the given sample rate,
// compensating transport projections for the given output latency.
func NewPlayer(broker *Broker, sampleRate int, outputLatency float64) *Player {
	if sampleRate <= 0 {
		sampleRate = looproom.DefaultSampleRate
	}
	return &Player{
		broker:      broker,
		sampleRate:  sampleRate,
		transport:   NewTransport(outputLatency),
		units:       make(map[string]*trackUnit),
		master:      dsp.NewChain(sampleRate, BlockSize),
		trackL:      make([]float32, BlockSize),
		trackR:      make([]float32, BlockSize),
		busL:        make([]float32, BlockSize),
		busR:        make([]float32, BlockSize),
		peakScratch: make([]float32, BlockSize),
	}
}

// SampleRate returns the rate the player renders at.
func (p *Player) SampleRate() int { return p.sampleRate }

// Process renders into the buffer, one block at a time, handling pending
// control messages and loop wraps at every block boundary. The buffer length
// must be a multiple of BlockSize.
func (p *Player) Process(buffer looproom.AudioBuffer) error {
	if len(buffer)%BlockSize != 0 {
		return fmt.Errorf("buffer length %d is not a multiple of the block size %d", len(buffer), BlockSize)
	}
	for len(buffer) > 0 {
		p.renderBlock(buffer[:BlockSize])
		buffer = buffer[BlockSize:]
	}
	return nil
}

func (p *Player) renderBlock(out looproom.AudioBuffer) {
	p.processMessages()
	now := p.now()
	if p.transport.ShouldWrap(now) {
		p.stopAllVoices()
		p.transport.Wrap(now, scheduleAheadSec)
		p.scheduleAll(nil, 0)
	}

	dsp.Zero(p.busL)
	dsp.Zero(p.busR)
	if p.transport.State() == Playing {
		for _, id := range p.trackOrder() {
			unit := p.units[id]
			if len(unit.voices) == 0 {
				continue
			}
			dsp.Zero(p.trackL)
			dsp.Zero(p.trackR)
			alive := unit.voices[:0]
			for _, v := range unit.voices {
				if v.voice.Render(p.trackL, p.trackR, p.frame) {
					alive = append(alive, v)
				}
			}
			unit.voices = alive
			if err := unit.chain.Process(p.trackL, p.trackR); err != nil {
				p.alert("chain", err)
				continue
			}
			dsp.Accumulate(p.busL, p.trackL)
			dsp.Accumulate(p.busR, p.trackR)
		}
	}
	if err := p.master.Process(p.busL, p.busR); err != nil {
		p.alert("master chain", err)
	}
	dsp.Interleave(out, p.busL, p.busR)
	p.frame += int64(len(out))

	monitor := p.broker.GetAudioBuffer()
	*monitor = append(*monitor, out...)
	sent := TrySend(p.broker.ToModel, MsgToModel{
		PlayheadSec: p.transport.Playhead(p.now()),
		State:       p.transport.State(),
		PeakLevel:   dsp.Peak(p.busL, p.busR, p.peakScratch),
		Data:        monitor,
	})
	if !sent {
		p.broker.PutAudioBuffer(monitor)
	}
}

// now is the audio-clock reading: the frames rendered so far, in seconds.
func (p *Player) now() float64 {
	return float64(p.frame) / float64(p.sampleRate)
}

func (p *Player) processMessages() {
	for {
		select {
		case msg := <-p.broker.ToPlayer:
			p.handleMessage(msg)
		default:
			return
		}
	}
}

func (p *Player) handleMessage(msg any) {
	now := p.now()
	switch m := msg.(type) {
	case StartPlayMsg:
		p.applySession(m.Session)
		p.transport.SetLoop(m.Session.Loop)
		p.transport.Start(now)
		p.stopAllVoices()
		p.scheduleAll(nil, 0)
	case PauseMsg:
		p.transport.Pause(now)
		p.stopAllVoices()
	case StopMsg:
		p.transport.Stop(now)
		p.stopAllVoices()
	case SeekMsg:
		p.applySession(m.Session)
		p.transport.Seek(now, m.Sec)
		if p.transport.State() == Playing {
			p.stopAllVoices()
			p.scheduleAll(nil, 0)
		}
	case RescheduleClipsMsg:
		p.applySession(m.Session)
		if p.transport.State() != Playing {
			return
		}
		ids := make(map[string]bool, len(m.ClipIDs))
		for _, id := range m.ClipIDs {
			ids[id] = true
		}
		p.stopClipVoices(ids)
		p.scheduleAll(ids, m.EndLimitSec)
	case SetLoopMsg:
		p.transport.SetLoop(m.Loop)
		p.session.Loop = m.Loop
		if p.transport.State() == Playing {
			// the new bound can truncate or extend already scheduled
			// sources, so rebuild them all from the current playhead
			p.stopAllVoices()
			p.scheduleAll(nil, 0)
		}
	case SetTrackEffectMsg:
		p.applyTrackEffect(m)
	case SetMasterEffectMsg:
		p.applyMasterEffect(m)
	}
}

// applySession replaces the session snapshot and synchronizes the track
// units with it: new tracks get chains, removed tracks are dropped, and
// every surviving chain gets the snapshot's effect parameters and gain.
// EQ and reverb updates are applied in place so filter state and reverb
// tails survive parameter tweaks.
func (p *Player) applySession(session looproom.Session) {
	p.session = session
	seen := make(map[string]bool, len(session.Tracks))
	solo := session.SoloActive()
	for i := range session.Tracks {
		track := &session.Tracks[i]
		seen[track.ID] = true
		unit, ok := p.units[track.ID]
		if !ok {
			unit = &trackUnit{chain: dsp.NewChain(p.sampleRate, BlockSize)}
			p.units[track.ID] = unit
		}
		unit.chain.SetOutputGain(track.EffectiveGain(solo))
		unit.chain.SetEq(track.Eq)
		if err := unit.chain.SetReverb(track.Reverb); err != nil {
			p.alert("reverb", err)
		}
	}
	for id, unit := range p.units {
		if !seen[id] {
			unit.voices = nil
			delete(p.units, id)
		}
	}
	p.master.SetEq(session.MasterEq)
	if err := p.master.SetReverb(session.MasterReverb); err != nil {
		p.alert("master reverb", err)
	}
}

func (p *Player) applyTrackEffect(m SetTrackEffectMsg) {
	track := p.session.Track(m.TrackID)
	if track == nil {
		return
	}
	unit := p.units[m.TrackID]
	switch m.Type {
	case looproom.EffectEq:
		track.Eq = m.Eq
		if unit != nil {
			unit.chain.SetEq(m.Eq)
		}
	case looproom.EffectReverb:
		track.Reverb = m.Reverb
		if unit != nil {
			if err := unit.chain.SetReverb(m.Reverb); err != nil {
				p.alert("reverb", err)
			}
		}
	case looproom.EffectSynth:
		// affects only sources scheduled from now on
		track.Synth = m.Synth
	case looproom.EffectArpeggiator:
		track.Arpeggiator = m.Arpeggiator
	}
}

func (p *Player) applyMasterEffect(m SetMasterEffectMsg) {
	switch m.Type {
	case looproom.EffectEq:
		p.session.MasterEq = m.Eq
		p.master.SetEq(m.Eq)
	case looproom.EffectReverb:
		p.session.MasterReverb = m.Reverb
		if err := p.master.SetReverb(m.Reverb); err != nil {
			p.alert("master reverb", err)
		}
	}
}

func (p *Player) stopAllVoices() {
	for _, unit := range p.units {
		unit.voices = unit.voices[:0]
	}
}

func (p *Player) stopClipVoices(clipIDs map[string]bool) {
	for _, unit := range p.units {
		alive := unit.voices[:0]
		for _, v := range unit.voices {
			if !clipIDs[v.clipID] {
				alive = append(alive, v)
			}
		}
		unit.voices = alive
	}
}

// scheduleAll plans sources from the current playhead and turns them into
// voices. A non-nil clipIDs restricts planning to those clips; a positive
// endLimitOverride replaces the transport's loop bound.
func (p *Player) scheduleAll(clipIDs map[string]bool, endLimitOverride float64) {
	playhead := p.transport.Playhead(p.now())
	endLimit := 0.0
	if limit, ok := p.transport.EndLimit(); ok {
		endLimit = limit
	}
	if endLimitOverride > 0 {
		endLimit = endLimitOverride
	}
	specs := Plan(PlanRequest{
		Tracks:      p.session.Tracks,
		BPM:         p.session.BPM,
		PlayheadSec: playhead,
		EndLimitSec: endLimit,
		ClipIDs:     clipIDs,
		SoloActive:  p.session.SoloActive(),
	})
	for _, spec := range specs {
		p.addVoice(spec)
	}
}

func (p *Player) addVoice(spec SourceSpec) {
	unit, ok := p.units[spec.TrackID]
	if !ok {
		return
	}
	voice := spec.Voice(p.sampleRate, p.frameFor)
	if voice == nil {
		return
	}
	unit.voices = append(unit.voices, playerVoice{clipID: spec.ClipID, voice: voice})
}

// frameFor maps a timeline-absolute time onto the frame counter through the
// transport's epoch.
func (p *Player) frameFor(timelineSec float64) int64 {
	return int64(math.Round(p.transport.ContextSecFor(timelineSec) * float64(p.sampleRate)))
}

// trackOrder renders tracks in session order so the mix is deterministic.
func (p *Player) trackOrder() []string {
	order := make([]string, 0, len(p.session.Tracks))
	for i := range p.session.Tracks {
		order = append(order, p.session.Tracks[i].ID)
	}
	return order
}

func (p *Player) alert(name string, err error) {
	TrySend(p.broker.ToModel, MsgToModel{
		PlayheadSec: p.transport.Playhead(p.now()),
		State:       p.transport.State(),
		Data:        Alert{Name: name, Message: err.Error()},
	})
}
