package main

import (
	"reflect"
	"sort"
	"testing"

	"github.com/looproom/looproom"
)

func diffSession() looproom.Session {
	return looproom.Session{
		BPM: 120,
		Tracks: []looproom.Track{
			{
				ID: "t1", Kind: looproom.TrackAudio, Volume: 1,
				Clips: []looproom.Clip{
					{ID: "a", StartSec: 0, Duration: 1, SampleURL: "u1"},
					{ID: "b", StartSec: 2, Duration: 1, SampleURL: "u2"},
				},
			},
			{
				ID: "t2", Kind: looproom.TrackInstrument, Volume: 1,
				Clips: []looproom.Clip{
					{ID: "m", StartSec: 0, Duration: 2, Midi: &looproom.MidiProgram{Gain: 1}},
				},
			},
		},
	}
}

func TestChangedClipIDsEqualSessions(t *testing.T) {
	ids, ok := changedClipIDs(diffSession(), diffSession())
	if !ok || len(ids) != 0 {
		t.Fatalf("identical sessions should diff to nothing, got %v ok=%v", ids, ok)
	}
}

func TestChangedClipIDsClipEdits(t *testing.T) {
	after := diffSession()
	after.Tracks[0].Clips[1].StartSec = 3 // moved
	// and one edited
	after.Tracks[1].Clips[0].Midi.Notes = []looproom.Note{
		{Beat: 0, Length: 1, Pitch: 60, Velocity: 1},
	}
	ids, ok := changedClipIDs(diffSession(), after)
	if !ok {
		t.Fatal("clip-only edits should not force a rebuild")
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"b", "m"}) {
		t.Fatalf("expected the moved and edited clips, got %v", ids)
	}
}

func TestChangedClipIDsAddRemove(t *testing.T) {
	after := diffSession()
	after.Tracks[0].Clips = append(after.Tracks[0].Clips,
		looproom.Clip{ID: "c", StartSec: 4, Duration: 1, SampleURL: "u3"})
	before := diffSession()
	before.Tracks[1].Clips = append(before.Tracks[1].Clips,
		looproom.Clip{ID: "gone", StartSec: 3, Duration: 1, Midi: &looproom.MidiProgram{Gain: 1}})
	ids, ok := changedClipIDs(before, after)
	if !ok {
		t.Fatal("adding and removing clips should not force a rebuild")
	}
	sort.Strings(ids)
	if !reflect.DeepEqual(ids, []string{"c", "gone"}) {
		t.Fatalf("expected the added and removed clips, got %v", ids)
	}
}

func TestChangedClipIDsStructural(t *testing.T) {
	cases := map[string]func(*looproom.Session){
		"bpm":          func(s *looproom.Session) { s.BPM = 90 },
		"loop":         func(s *looproom.Session) { s.Loop = looproom.LoopRegion{Enabled: true, StartSec: 0, EndSec: 2} },
		"track volume": func(s *looproom.Session) { s.Tracks[0].Volume = 0.5 },
		"track effect": func(s *looproom.Session) { s.Tracks[1].Synth = &looproom.SynthParams{Gain: 1} },
		"track gone":   func(s *looproom.Session) { s.Tracks = s.Tracks[:1] },
		"master eq":    func(s *looproom.Session) { s.MasterEq = &looproom.EqParams{Enabled: true} },
	}
	for name, mutate := range cases {
		after := diffSession()
		mutate(&after)
		if _, ok := changedClipIDs(diffSession(), after); ok {
			t.Errorf("%v change should force a full rebuild", name)
		}
	}
}
