// Package looproom contains the domain types of the looproom engine: a
// collaboratively edited multi-track timeline of audio and MIDI clips,
// together with the effect parameter sets that describe each track's and the
// master bus's signal chain. The types here are pure data; the realtime
// machinery lives in the engine, dsp and render subpackages, which only ever
// read snapshots of these values and never own them.
package looproom

import "io"

type (
	// AudioBuffer is a buffer of stereo audio samples of the form
	// [[l1,r1],[l2,r2],...]. Values should be [-1,1] for full-scale audio.
	AudioBuffer [][2]float32

	// AudioSink is something we can dump an AudioBuffer into, e.g. a
	// realtime audio output or a file.
	AudioSink interface {
		WriteAudio(buffer AudioBuffer) error
		Close() error
	}

	// AudioContext represents the realtime audio environment, e.g. an oto
	// context. Output returns a sink that plays whatever is written to it.
	AudioContext interface {
		Output() AudioSink
		Close() error
	}
)

// NumFrames returns the number of stereo frames in the buffer.
func (b AudioBuffer) NumFrames() int { return len(b) }

// Source returns an io.Reader that yields the buffer as interleaved 16-bit
// little-endian PCM, the format realtime outputs consume.
func (b AudioBuffer) Source() io.Reader {
	return &bufferSource{buffer: b}
}

type bufferSource struct {
	buffer AudioBuffer
	frame  int
	phase  int // 0..3, byte offset within the current frame
}

func (s *bufferSource) Read(p []byte) (int, error) {
	if s.frame >= len(s.buffer) {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && s.frame < len(s.buffer) {
		v := s.buffer[s.frame][s.phase/2]
		u := int16(clampFloat(float64(v), -1, 1) * 32767)
		if s.phase%2 == 0 {
			p[n] = byte(u)
		} else {
			p[n] = byte(uint16(u) >> 8)
		}
		n++
		s.phase++
		if s.phase == 4 {
			s.phase = 0
			s.frame++
		}
	}
	return n, nil
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
