package smfimport

import (
	"math"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/looproom/looproom"
)

func testSMF(t *testing.T, bpm float64) *smf.SMF {
	t.Helper()
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(960)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		t.Fatal(err)
	}

	var track smf.Track
	track.Add(0, smf.MetaTrackSequenceName("Bassline"))
	track.Add(0, midi.NoteOn(0, 60, 100))   // beat 0
	track.Add(960, midi.NoteOff(0, 60))     // beat 1
	track.Add(0, midi.NoteOn(0, 64, 127))   // beat 1
	track.Add(480, midi.NoteOff(0, 64))     // beat 1.5
	track.Add(480, midi.NoteOn(0, 67, 64))  // beat 2
	track.Add(1920, midi.NoteOff(0, 67))    // beat 4
	track.Close(0)
	if err := sm.Add(track); err != nil {
		t.Fatal(err)
	}
	return sm
}

func TestConvert(t *testing.T) {
	tracks, bpm, err := Convert(testSMF(t, 90), 2.5)
	if err != nil {
		t.Fatal(err)
	}
	if bpm != 90 {
		t.Errorf("expected tempo 90, got %v", bpm)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected one instrument track, got %d", len(tracks))
	}
	track := tracks[0]
	if track.Kind != looproom.TrackInstrument || track.Name != "Bassline" {
		t.Errorf("unexpected track %+v", track)
	}
	if len(track.Clips) != 1 {
		t.Fatalf("expected one clip, got %d", len(track.Clips))
	}
	clip := track.Clips[0]
	if clip.StartSec != 2.5 {
		t.Errorf("clip should start where requested, got %v", clip.StartSec)
	}
	// 4 beats at 90 BPM
	if want := 4 * 60.0 / 90; math.Abs(clip.Duration-want) > 1e-9 {
		t.Errorf("expected duration %v, got %v", want, clip.Duration)
	}
	notes := clip.Midi.Notes
	if len(notes) != 3 {
		t.Fatalf("expected three notes, got %d", len(notes))
	}
	want := []looproom.Note{
		{Beat: 0, Length: 1, Pitch: 60, Velocity: 100.0 / 127},
		{Beat: 1, Length: 0.5, Pitch: 64, Velocity: 1},
		{Beat: 2, Length: 2, Pitch: 67, Velocity: 64.0 / 127},
	}
	for i, note := range notes {
		if math.Abs(note.Beat-want[i].Beat) > 1e-9 ||
			math.Abs(note.Length-want[i].Length) > 1e-9 ||
			note.Pitch != want[i].Pitch ||
			math.Abs(note.Velocity-want[i].Velocity) > 1e-9 {
			t.Errorf("note %d: got %+v, want %+v", i, note, want[i])
		}
	}
	if err := clip.Validate(); err != nil {
		t.Errorf("imported clip should validate: %v", err)
	}
}

func TestConvertDefaultsTempo(t *testing.T) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(480)
	var track smf.Track
	track.Add(0, midi.NoteOn(0, 72, 90))
	track.Add(480, midi.NoteOff(0, 72))
	track.Close(0)
	if err := sm.Add(track); err != nil {
		t.Fatal(err)
	}
	_, bpm, err := Convert(sm, 0)
	if err != nil {
		t.Fatal(err)
	}
	if bpm != DefaultBPM {
		t.Errorf("expected the default tempo, got %v", bpm)
	}
}

func TestConvertRejectsEmpty(t *testing.T) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(480)
	var track smf.Track
	track.Close(0)
	if err := sm.Add(track); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Convert(sm, 0); err == nil {
		t.Fatal("expected an error for a file without notes")
	}
}
