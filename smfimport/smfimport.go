// Package smfimport turns standard MIDI files into instrument tracks: every
// SMF track carrying notes becomes one track with a single MIDI clip whose
// note beats preserve the file's musical timing.
package smfimport

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/looproom/looproom"
)

// DefaultBPM is assumed when the file carries no tempo event.
const DefaultBPM = 120

// pendingNote is a note-on waiting for its note-off.
type pendingNote struct {
	startBeat float64
	velocity  float64
}

// ImportFile reads a standard MIDI file and converts it. The returned BPM
// is the file's first tempo, for the caller to adopt or ignore.
func ImportFile(path string, startSec float64) ([]looproom.Track, float64, error) {
	data, err := smf.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return Convert(data, startSec)
}

// Convert builds instrument tracks from parsed SMF data. Each clip is
// placed at startSec; its duration covers the track's notes at the file's
// tempo, rounded up to a whole beat.
func Convert(data *smf.SMF, startSec float64) ([]looproom.Track, float64, error) {
	ticks, ok := data.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, 0, fmt.Errorf("unsupported SMF time format %v", data.TimeFormat)
	}
	tpq := float64(ticks.Ticks4th())
	if tpq <= 0 {
		return nil, 0, fmt.Errorf("SMF with zero ticks per quarter")
	}

	bpm := float64(DefaultBPM)
	if changes := data.TempoChanges(); len(changes) > 0 {
		bpm = changes[0].BPM
	}
	secondsPerBeat := 60 / bpm

	var tracks []looproom.Track
	for i, events := range data.Tracks {
		name := fmt.Sprintf("MIDI %d", i+1)
		notes := convertTrack(events, tpq, &name)
		if len(notes) == 0 {
			continue
		}
		extent := 0.0
		for _, note := range notes {
			if end := note.Beat + note.Length; end > extent {
				extent = end
			}
		}
		tracks = append(tracks, looproom.Track{
			ID:     uuid.NewString(),
			Name:   name,
			Kind:   looproom.TrackInstrument,
			Volume: 1,
			Clips: []looproom.Clip{{
				ID:       uuid.NewString(),
				Name:     name,
				StartSec: startSec,
				Duration: math.Ceil(extent) * secondsPerBeat,
				Midi: &looproom.MidiProgram{
					Waveform: looproom.WaveSine,
					Gain:     1,
					Notes:    notes,
				},
			}},
		})
	}
	if len(tracks) == 0 {
		return nil, bpm, fmt.Errorf("no notes in SMF data")
	}
	return tracks, bpm, nil
}

// convertTrack walks one SMF track, pairing note-ons with their note-offs.
// An unterminated note is closed a beat after it started.
func convertTrack(events smf.Track, tpq float64, name *string) []looproom.Note {
	var notes []looproom.Note
	pending := map[int]pendingNote{}
	absTicks := int64(0)
	for _, ev := range events {
		absTicks += int64(ev.Delta)
		beat := float64(absTicks) / tpq

		var trackName string
		if ev.Message.GetMetaTrackName(&trackName) && trackName != "" {
			*name = trackName
			continue
		}
		var channel, key, velocity uint8
		switch {
		case ev.Message.GetNoteStart(&channel, &key, &velocity):
			pending[int(key)] = pendingNote{startBeat: beat, velocity: float64(velocity) / 127}
		case ev.Message.GetNoteEnd(&channel, &key):
			start, ok := pending[int(key)]
			if !ok {
				continue
			}
			delete(pending, int(key))
			length := beat - start.startBeat
			if length <= 0 {
				continue
			}
			notes = append(notes, looproom.Note{
				Beat:     start.startBeat,
				Length:   length,
				Pitch:    int(key),
				Velocity: start.velocity,
			})
		}
	}
	for key, start := range pending {
		notes = append(notes, looproom.Note{
			Beat:     start.startBeat,
			Length:   1,
			Pitch:    key,
			Velocity: start.velocity,
		})
	}
	return notes
}
