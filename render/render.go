// Package render produces offline mixdowns: the same scheduling and signal
// chains as live playback, run faster than realtime into a buffer and
// encoded as a WAV file.
package render

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"

	"github.com/looproom/looproom"
	"github.com/looproom/looproom/dsp"
	"github.com/looproom/looproom/engine"
)

// Range is the timeline slice to render.
type Range struct {
	StartSec float64
	EndSec   float64
}

// DurationSec returns the length of the range.
func (r Range) DurationSec() float64 { return r.EndSec - r.StartSec }

// SessionRange covers the whole session, from zero to the end of the last
// clip.
func SessionRange(session *looproom.Session) Range {
	return Range{StartSec: 0, EndSec: session.EndSec()}
}

// LoopRange covers the session's loop region.
func LoopRange(session *looproom.Session) (Range, error) {
	if !session.Loop.Active() {
		return Range{}, errors.New("no active loop region to render")
	}
	return Range{StartSec: session.Loop.StartSec, EndSec: session.Loop.EndSec}, nil
}

// Options configures a mixdown.
type Options struct {
	SampleRate int  // 0 means looproom.DefaultSampleRate
	Pcm16      bool // write 16-bit integer samples instead of 32-bit float
}

// Mixdown renders the range of the session into a stereo buffer. Clips
// whose sample buffers are not materialized are skipped exactly as live
// playback skips them; the caller should materialize everything it wants
// audible first.
func Mixdown(logger zerolog.Logger, session looproom.Session, rng Range, opt Options) (looproom.AudioBuffer, error) {
	if rng.DurationSec() <= 0 {
		return nil, fmt.Errorf("empty render range [%v, %v)", rng.StartSec, rng.EndSec)
	}
	sampleRate := opt.SampleRate
	if sampleRate <= 0 {
		sampleRate = looproom.DefaultSampleRate
	}

	specs := engine.Plan(engine.PlanRequest{
		Tracks:      session.Tracks,
		BPM:         session.BPM,
		PlayheadSec: rng.StartSec,
		EndLimitSec: rng.EndSec,
		SoloActive:  session.SoloActive(),
	})
	logger.Debug().Int("sources", len(specs)).
		Float64("startSec", rng.StartSec).Float64("endSec", rng.EndSec).
		Msg("mixdown planned")

	// time zero of the output is the range start
	frameFor := func(timelineSec float64) int64 {
		return int64(math.Round((timelineSec - rng.StartSec) * float64(sampleRate)))
	}

	solo := session.SoloActive()
	type trackState struct {
		chain  *dsp.Chain
		voices []dsp.Voice
	}
	tracks := make(map[string]*trackState, len(session.Tracks))
	var order []string
	for i := range session.Tracks {
		track := &session.Tracks[i]
		chain := dsp.NewChain(sampleRate, engine.BlockSize)
		chain.SetOutputGain(track.EffectiveGain(solo))
		chain.SetEq(track.Eq)
		if err := chain.SetReverb(track.Reverb); err != nil {
			return nil, fmt.Errorf("track %s reverb: %w", track.ID, err)
		}
		tracks[track.ID] = &trackState{chain: chain}
		order = append(order, track.ID)
	}
	for _, spec := range specs {
		state := tracks[spec.TrackID]
		if voice := spec.Voice(sampleRate, frameFor); voice != nil {
			state.voices = append(state.voices, voice)
		}
	}

	master := dsp.NewChain(sampleRate, engine.BlockSize)
	master.SetEq(session.MasterEq)
	if err := master.SetReverb(session.MasterReverb); err != nil {
		return nil, fmt.Errorf("master reverb: %w", err)
	}

	totalFrames := int(math.Ceil(rng.DurationSec() * float64(sampleRate)))
	blocks := (totalFrames + engine.BlockSize - 1) / engine.BlockSize
	out := make(looproom.AudioBuffer, blocks*engine.BlockSize)
	trackL := make([]float32, engine.BlockSize)
	trackR := make([]float32, engine.BlockSize)
	busL := make([]float32, engine.BlockSize)
	busR := make([]float32, engine.BlockSize)

	for block := 0; block < blocks; block++ {
		blockStart := int64(block * engine.BlockSize)
		dsp.Zero(busL)
		dsp.Zero(busR)
		for _, id := range order {
			state := tracks[id]
			if len(state.voices) == 0 {
				continue
			}
			dsp.Zero(trackL)
			dsp.Zero(trackR)
			alive := state.voices[:0]
			for _, voice := range state.voices {
				if voice.Render(trackL, trackR, blockStart) {
					alive = append(alive, voice)
				}
			}
			state.voices = alive
			if err := state.chain.Process(trackL, trackR); err != nil {
				return nil, fmt.Errorf("track %s chain: %w", id, err)
			}
			dsp.Accumulate(busL, trackL)
			dsp.Accumulate(busR, trackR)
		}
		if err := master.Process(busL, busR); err != nil {
			return nil, fmt.Errorf("master chain: %w", err)
		}
		dsp.Interleave(out[blockStart:blockStart+engine.BlockSize], busL, busR)
	}

	// drop the padding of the final partial block
	return out[:totalFrames], nil
}

// WriteWav renders the range and writes it as a WAV stream.
func WriteWav(w io.Writer, logger zerolog.Logger, session looproom.Session, rng Range, opt Options) error {
	buffer, err := Mixdown(logger, session, rng, opt)
	if err != nil {
		return err
	}
	sampleRate := opt.SampleRate
	if sampleRate <= 0 {
		sampleRate = looproom.DefaultSampleRate
	}
	wav, err := buffer.Wav(sampleRate, opt.Pcm16)
	if err != nil {
		return err
	}
	_, err = w.Write(wav)
	return err
}
