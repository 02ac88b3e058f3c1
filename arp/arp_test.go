package arp_test

import (
	"reflect"
	"testing"

	"github.com/looproom/looproom"
	"github.com/looproom/looproom/arp"
)

func chordNotes(pitches ...int) []looproom.Note {
	notes := make([]looproom.Note, len(pitches))
	for i, p := range pitches {
		notes[i] = looproom.Note{Beat: 0, Length: 2, Pitch: p, Velocity: 0.8}
	}
	return notes
}

func params(pattern looproom.ArpPattern, rate looproom.ArpRate) looproom.ArpeggiatorParams {
	return looproom.ArpeggiatorParams{
		Enabled: true,
		Pattern: pattern,
		Rate:    rate,
		Octaves: 1,
		Gate:    1.0,
	}
}

func TestExpandUpPattern(t *testing.T) {
	got := arp.Expand(chordNotes(60, 64, 67), params(looproom.ArpUp, looproom.ArpRate8), 4)
	wantPitches := []int{60, 64, 67, 60}
	if len(got) != len(wantPitches) {
		t.Fatalf("expected %v notes, got %v", len(wantPitches), len(got))
	}
	for i, n := range got {
		if n.Pitch != wantPitches[i] {
			t.Errorf("note %v: expected pitch %v, got %v", i, wantPitches[i], n.Pitch)
		}
		if wantBeat := float64(i) * 0.5; n.Beat != wantBeat {
			t.Errorf("note %v: expected beat %v, got %v", i, wantBeat, n.Beat)
		}
		if n.Length != 0.5 {
			t.Errorf("note %v: expected length 0.5, got %v", i, n.Length)
		}
		if end := n.Beat + n.Length; end > 2 {
			t.Errorf("note %v ends at %v, past the chord end", i, end)
		}
	}
}

func TestExpandDownPattern(t *testing.T) {
	got := arp.Expand(chordNotes(60, 64, 67), params(looproom.ArpDown, looproom.ArpRate8), 4)
	wantPitches := []int{67, 64, 60, 67}
	for i, n := range got {
		if n.Pitch != wantPitches[i] {
			t.Errorf("note %v: expected pitch %v, got %v", i, wantPitches[i], n.Pitch)
		}
	}
}

func TestExpandUpDownExcludesEndpoints(t *testing.T) {
	p := params(looproom.ArpUpDown, looproom.ArpRate16)
	got := arp.Expand(chordNotes(60, 64, 67), p, 4)
	// cycle is 60 64 67 64; over a 2-beat chord at 1/16 that is 8 steps
	wantPitches := []int{60, 64, 67, 64, 60, 64, 67, 64}
	if len(got) != len(wantPitches) {
		t.Fatalf("expected %v notes, got %v", len(wantPitches), len(got))
	}
	for i, n := range got {
		if n.Pitch != wantPitches[i] {
			t.Errorf("note %v: expected pitch %v, got %v", i, wantPitches[i], n.Pitch)
		}
	}
}

func TestExpandRandomIsDeterministic(t *testing.T) {
	p := params(looproom.ArpRandom, looproom.ArpRate16)
	p.Octaves = 2
	a := arp.Expand(chordNotes(60, 64, 67), p, 4)
	b := arp.Expand(chordNotes(60, 64, 67), p, 4)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("two expansions of the same chord differ: %v vs %v", a, b)
	}
	// a chord at a different beat should (in general) permute differently
	moved := chordNotes(60, 64, 67)
	for i := range moved {
		moved[i].Beat = 1
	}
	c := arp.Expand(moved, p, 4)
	if len(c) == 0 {
		t.Fatal("expected notes from the moved chord")
	}
}

func TestExpandOctaves(t *testing.T) {
	p := params(looproom.ArpUp, looproom.ArpRate32)
	p.Octaves = 2
	got := arp.Expand(chordNotes(60, 64), p, 4)
	wantCycle := []int{60, 64, 72, 76}
	for i, n := range got[:4] {
		if n.Pitch != wantCycle[i] {
			t.Errorf("note %v: expected pitch %v, got %v", i, wantCycle[i], n.Pitch)
		}
	}
}

func TestExpandHoldRunsToClipEnd(t *testing.T) {
	notes := []looproom.Note{{Beat: 0, Length: 1, Pitch: 60, Velocity: 1}}
	p := params(looproom.ArpUp, looproom.ArpRate4)
	p.Hold = true
	got := arp.Expand(notes, p, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 held steps, got %v", len(got))
	}
	if last := got[len(got)-1]; last.Beat != 3 {
		t.Errorf("expected last step at beat 3, got %v", last.Beat)
	}
}

func TestExpandGateShortensNotes(t *testing.T) {
	p := params(looproom.ArpUp, looproom.ArpRate8)
	p.Gate = 0.5
	got := arp.Expand(chordNotes(60), p, 4)
	for i, n := range got {
		if n.Length != 0.25 {
			t.Errorf("note %v: expected length 0.25, got %v", i, n.Length)
		}
	}
}

func TestExpandZeroGateEmitsNothing(t *testing.T) {
	p := params(looproom.ArpUp, looproom.ArpRate8)
	p.Gate = 0
	if got := arp.Expand(chordNotes(60, 64), p, 4); got != nil {
		t.Errorf("expected no notes for zero gate, got %v", got)
	}
}

func TestExpandGroupsNearbyNotes(t *testing.T) {
	notes := []looproom.Note{
		{Beat: 0, Length: 2, Pitch: 60, Velocity: 0.5},
		{Beat: 0.01, Length: 2.5, Pitch: 64, Velocity: 0.9},
	}
	got := arp.Expand(notes, params(looproom.ArpUp, looproom.ArpRate4), 4)
	if len(got) == 0 {
		t.Fatal("expected notes")
	}
	// merged into one chord: representative velocity is the first note's,
	// the end is the max end beat (2.51)
	for i, n := range got {
		if n.Velocity != 0.5 {
			t.Errorf("note %v: expected velocity 0.5, got %v", i, n.Velocity)
		}
	}
	last := got[len(got)-1]
	if last.Beat < 2 {
		t.Errorf("expected steps to continue past beat 2 (merged end 2.51), last at %v", last.Beat)
	}
}

func TestExpandDisabledOrEmpty(t *testing.T) {
	p := params(looproom.ArpUp, looproom.ArpRate8)
	p.Enabled = false
	if got := arp.Expand(chordNotes(60), p, 4); got != nil {
		t.Errorf("expected nil for a disabled arpeggiator, got %v", got)
	}
	p.Enabled = true
	if got := arp.Expand(nil, p, 4); got != nil {
		t.Errorf("expected nil for no notes, got %v", got)
	}
}
