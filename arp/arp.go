// Package arp expands chord and note data of a MIDI clip into a timed,
// rhythmically subdivided note sequence. Expansion is a pure function of its
// inputs; in particular the "random" pattern uses a PRNG seeded from the
// chord's pitch content and start beat, so the same chord at the same
// position always arpeggiates identically. The live scheduler and the
// offline renderer both call Expand, which is what keeps exported audio
// matching live playback.
package arp

import (
	"math"
	"sort"

	"github.com/looproom/looproom"
)

// GroupEpsilonBeats is the maximum distance between two note starts for them
// to be grouped into the same chord. A variable rather than a constant; the
// 0.02 value is a product-level tuning knob.
var GroupEpsilonBeats = 0.02

// chord is a group of simultaneously starting notes.
type chord struct {
	beat     float64
	endBeat  float64
	velocity float64
	pitches  []int
}

// Expand transforms the notes of a clip into the arpeggiated sequence.
// clipLengthBeats is the clip's total duration in beats, which bounds the
// expansion when params.Hold is set. Notes are grouped into chords, each
// chord's pitches are layered across octaves, reordered per the pattern and
// then stepped through at the configured rate. A gate of zero or below
// yields no notes.
func Expand(notes []looproom.Note, params looproom.ArpeggiatorParams, clipLengthBeats float64) []looproom.Note {
	if !params.Enabled || len(notes) == 0 || params.Gate <= 0 {
		return nil
	}
	params.Clamp()
	stepBeats := params.Rate.Beats()
	var expanded []looproom.Note
	for _, ch := range groupChords(notes) {
		sequence := orderPitches(ch, params)
		if len(sequence) == 0 {
			continue
		}
		limit := ch.endBeat
		if params.Hold {
			limit = clipLengthBeats
		}
		for i := 0; ; i++ {
			beat := ch.beat + float64(i)*stepBeats
			if beat >= limit {
				break
			}
			length := stepBeats * params.Gate
			if beat+length > limit {
				length = limit - beat
			}
			expanded = append(expanded, looproom.Note{
				Beat:     beat,
				Length:   length,
				Pitch:    sequence[i%len(sequence)],
				Velocity: ch.velocity,
			})
		}
	}
	return expanded
}

// groupChords sorts the notes by start beat and merges notes starting within
// GroupEpsilonBeats of each other into one chord, collecting all pitches,
// taking the latest end beat and the first note's velocity.
func groupChords(notes []looproom.Note) []chord {
	sorted := make([]looproom.Note, len(notes))
	copy(sorted, notes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Beat < sorted[j].Beat })
	var chords []chord
	for _, n := range sorted {
		if len(chords) > 0 && n.Beat-chords[len(chords)-1].beat <= GroupEpsilonBeats {
			c := &chords[len(chords)-1]
			c.pitches = append(c.pitches, n.Pitch)
			if end := n.Beat + n.Length; end > c.endBeat {
				c.endBeat = end
			}
			continue
		}
		chords = append(chords, chord{
			beat:     n.Beat,
			endBeat:  n.Beat + n.Length,
			velocity: n.Velocity,
			pitches:  []int{n.Pitch},
		})
	}
	return chords
}

// orderPitches layers the chord's pitches across the configured octaves and
// reorders the resulting flat list per the pattern.
func orderPitches(ch chord, params looproom.ArpeggiatorParams) []int {
	pitches := make([]int, 0, len(ch.pitches)*params.Octaves)
	for octave := 0; octave < params.Octaves; octave++ {
		for _, p := range ch.pitches {
			pitches = append(pitches, p+12*octave)
		}
	}
	sort.Ints(pitches)
	switch params.Pattern {
	case looproom.ArpDown:
		reverse(pitches)
	case looproom.ArpUpDown:
		// ascending then descending, without repeating either endpoint
		for i := len(pitches) - 2; i >= 1; i-- {
			pitches = append(pitches, pitches[i])
		}
	case looproom.ArpRandom:
		shuffle(pitches, chordSeed(ch))
	}
	return pitches
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// chordSeed derives a 32-bit seed from the chord's pitch content and start
// beat. FNV-style mixing; any deterministic hash would do, the contract is
// only that identical chords at identical positions shuffle identically.
func chordSeed(ch chord) uint32 {
	seed := uint32(2166136261)
	for _, p := range ch.pitches {
		seed = (seed ^ uint32(p)) * 16777619
	}
	bits := math.Float64bits(ch.beat)
	seed = (seed ^ uint32(bits)) * 16777619
	seed = (seed ^ uint32(bits>>32)) * 16777619
	if seed == 0 {
		seed = 1
	}
	return seed
}

// shuffle is a Fisher-Yates permutation driven by a xorshift32 generator.
func shuffle(s []int, seed uint32) {
	for i := len(s) - 1; i > 0; i-- {
		seed ^= seed << 13
		seed ^= seed >> 17
		seed ^= seed << 5
		j := int(seed % uint32(i+1))
		s[i], s[j] = s[j], s[i]
	}
}
