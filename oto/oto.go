// Package oto adapts the realtime audio output to the looproom audio
// interfaces.
package oto

import (
	"fmt"
	"io"
	"time"

	oto "github.com/ebitengine/oto/v3"

	"github.com/looproom/looproom"
)

// bufferDuration is the device-side buffer length. Writes block once the
// device holds this much unplayed audio, which is what paces the engine.
const bufferDuration = 50 * time.Millisecond

// Context wraps the process-wide realtime audio context.
type Context struct {
	ctx        *oto.Context
	sampleRate int
}

// NewContext opens the realtime audio device at the given sample rate,
// stereo 16-bit, and waits until it is ready.
func NewContext(sampleRate int) (*Context, error) {
	if sampleRate <= 0 {
		sampleRate = looproom.DefaultSampleRate
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create audio context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, sampleRate: sampleRate}, nil
}

// OutputLatency is the approximate delay between writing a sample and
// hearing it, for transport playhead compensation.
func (c *Context) OutputLatency() float64 {
	return bufferDuration.Seconds()
}

// Output starts a realtime sink. Whatever is written to it plays
// immediately; writes block while the device buffer is full.
func (c *Context) Output() looproom.AudioSink {
	pr, pw := io.Pipe()
	player := c.ctx.NewPlayer(pr)
	player.Play()
	return &Output{player: player, pw: pw}
}

// Close suspends the audio context. The underlying device context cannot be
// fully torn down; suspending silences it.
func (c *Context) Close() error {
	return c.ctx.Suspend()
}

// Output is a realtime playback sink.
type Output struct {
	player *oto.Player
	pw     *io.PipeWriter
}

// WriteAudio plays the buffer in the device format, blocking when the
// device is saturated.
func (o *Output) WriteAudio(buffer looproom.AudioBuffer) error {
	if _, err := io.Copy(o.pw, buffer.Source()); err != nil {
		return fmt.Errorf("cannot write to player: %w", err)
	}
	return nil
}

// Close stops playback and releases the player.
func (o *Output) Close() error {
	o.pw.Close()
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close player: %w", err)
	}
	return nil
}
