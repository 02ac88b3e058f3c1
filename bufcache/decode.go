package bufcache

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/looproom/looproom"
)

// decode turns raw asset bytes into a stereo buffer at the target rate. The
// container is sniffed from the content, falling back to the URL extension.
func decode(raw []byte, url string, sampleRate int) (*looproom.SampleBuffer, error) {
	switch {
	case bytes.HasPrefix(raw, []byte("RIFF")):
		return decodeWav(raw, sampleRate)
	case strings.HasSuffix(strings.ToLower(url), ".mp3"),
		bytes.HasPrefix(raw, []byte("ID3")),
		len(raw) > 1 && raw[0] == 0xff && raw[1]&0xe0 == 0xe0:
		return decodeMp3(raw, sampleRate)
	default:
		return nil, fmt.Errorf("unrecognized audio container in %s", url)
	}
}

func decodeWav(raw []byte, sampleRate int) (*looproom.SampleBuffer, error) {
	decoder := wav.NewDecoder(bytes.NewReader(raw))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid wav data")
	}
	if err := decoder.FwdToPCM(); err != nil {
		return nil, err
	}
	format := decoder.Format()
	bitDepth := int(decoder.SampleBitDepth())
	if bitDepth == 0 {
		return nil, fmt.Errorf("wav data with unknown bit depth")
	}
	bytesPerSample := (bitDepth-1)/8 + 1
	nsamples := int(decoder.PCMLen()) / bytesPerSample
	buf := &audio.IntBuffer{
		Format:         format,
		Data:           make([]int, nsamples),
		SourceBitDepth: bitDepth,
	}
	if _, err := decoder.PCMBuffer(buf); err != nil {
		return nil, err
	}
	scale := float32(math.Pow(2, float64(bitDepth-1)))
	nchannels := format.NumChannels
	if nchannels < 1 {
		return nil, fmt.Errorf("wav data with no channels")
	}
	nframes := nsamples / nchannels
	data := make(looproom.AudioBuffer, nframes)
	for i := 0; i < nframes; i++ {
		left := float32(buf.Data[i*nchannels]) / scale
		right := left
		if nchannels > 1 {
			right = float32(buf.Data[i*nchannels+1]) / scale
		}
		data[i] = [2]float32{left, right}
	}
	return resample(data, format.SampleRate, sampleRate), nil
}

func decodeMp3(raw []byte, sampleRate int) (*looproom.SampleBuffer, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	// the decoder always yields interleaved stereo signed 16-bit LE
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, err
	}
	nframes := len(pcm) / 4
	data := make(looproom.AudioBuffer, nframes)
	for i := 0; i < nframes; i++ {
		left := int16(uint16(pcm[i*4]) | uint16(pcm[i*4+1])<<8)
		right := int16(uint16(pcm[i*4+2]) | uint16(pcm[i*4+3])<<8)
		data[i] = [2]float32{float32(left) / 32768, float32(right) / 32768}
	}
	return resample(data, decoder.SampleRate(), sampleRate), nil
}

// resample converts the buffer to the target rate with linear
// interpolation.
func resample(data looproom.AudioBuffer, from, to int) *looproom.SampleBuffer {
	if from == to || from <= 0 || len(data) == 0 {
		return &looproom.SampleBuffer{Data: data, SampleRate: to}
	}
	ratio := float64(from) / float64(to)
	nframes := int(math.Ceil(float64(len(data)) / ratio))
	out := make(looproom.AudioBuffer, nframes)
	for i := 0; i < nframes; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(data)-1 {
			out[i] = data[len(data)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = [2]float32{
			data[j][0] + (data[j+1][0]-data[j][0])*frac,
			data[j][1] + (data[j+1][1]-data[j][1])*frac,
		}
	}
	return &looproom.SampleBuffer{Data: out, SampleRate: to}
}
