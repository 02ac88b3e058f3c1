package dsp

import (
	"math"
	"testing"

	"github.com/looproom/looproom"
)

func TestDesignBandIgnoresGainForNonGainTypes(t *testing.T) {
	for _, ft := range []looproom.FilterType{
		looproom.FilterLowpass, looproom.FilterHighpass,
		looproom.FilterBandpass, looproom.FilterNotch,
	} {
		withGain := DesignBand(looproom.EqBandParams{Type: ft, FrequencyHz: 1000, GainDb: 12, Q: 0.7}, 44100)
		without := DesignBand(looproom.EqBandParams{Type: ft, FrequencyHz: 1000, GainDb: 0, Q: 0.7}, 44100)
		if withGain != without {
			t.Errorf("%v: gainDb should not affect the design, got %+v vs %+v", ft, withGain, without)
		}
	}
	peaking := DesignBand(looproom.EqBandParams{Type: looproom.FilterPeaking, FrequencyHz: 1000, GainDb: 12, Q: 0.7}, 44100)
	flat := DesignBand(looproom.EqBandParams{Type: looproom.FilterPeaking, FrequencyHz: 1000, GainDb: 0, Q: 0.7}, 44100)
	if peaking == flat {
		t.Error("peaking: gainDb should affect the design")
	}
}

func TestPeakingFlatGainIsIdentityLike(t *testing.T) {
	coeffs := DesignBand(looproom.EqBandParams{Type: looproom.FilterPeaking, FrequencyHz: 1000, GainDb: 0, Q: 1}, 44100)
	// 0 dB peaking filter should pass a constant signal unchanged
	f := NewBiquad(coeffs)
	l := make([]float32, 256)
	r := make([]float32, 256)
	for i := range l {
		l[i], r[i] = 0.5, 0.5
	}
	f.Process(l, r)
	if math.Abs(float64(l[255])-0.5) > 1e-3 {
		t.Errorf("expected flat peaking filter to pass DC, got %v", l[255])
	}
}

func TestConvolverDeltaIsIdentity(t *testing.T) {
	const block = 64
	impulse := make([]float32, 8)
	impulse[0] = 1
	c, err := newConvolver(impulse, block)
	if err != nil {
		t.Fatalf("newConvolver failed: %v", err)
	}
	in := make([]float32, block)
	for i := range in {
		in[i] = float32(math.Sin(float64(i) / 5))
	}
	buf := make([]float32, block)
	copy(buf, in)
	if err := c.Process(buf); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for i := range buf {
		if math.Abs(float64(buf[i]-in[i])) > 1e-6 {
			t.Fatalf("sample %v: expected %v, got %v", i, in[i], buf[i])
		}
	}
}

func TestConvolverDelayedDelta(t *testing.T) {
	const block = 32
	// a delta in the second partition delays the signal by block+3 samples
	impulse := make([]float32, block+4)
	impulse[block+3] = 1
	c, err := newConvolver(impulse, block)
	if err != nil {
		t.Fatalf("newConvolver failed: %v", err)
	}
	first := make([]float32, block)
	first[0] = 1
	if err := c.Process(first); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for i, v := range first {
		if math.Abs(float64(v)) > 1e-6 {
			t.Fatalf("block 0 sample %v: expected silence, got %v", i, v)
		}
	}
	second := make([]float32, block)
	if err := c.Process(second); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for i, v := range second {
		want := 0.0
		if i == 3 {
			want = 1
		}
		if math.Abs(float64(v)-want) > 1e-6 {
			t.Fatalf("block 1 sample %v: expected %v, got %v", i, want, v)
		}
	}
}

func TestImpulseResponseDeterministicAndDecaying(t *testing.T) {
	a := impulseResponse(1, 44100, noiseSeeds[0])
	b := impulseResponse(1, 44100, noiseSeeds[0])
	if len(a) != 44100 {
		t.Fatalf("expected 44100 samples, got %v", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("impulse responses differ at %v", i)
		}
	}
	if a[len(a)-1] != 0 && math.Abs(float64(a[len(a)-1])) > 1e-3 {
		t.Errorf("expected the tail to decay to ~0, got %v", a[len(a)-1])
	}
	c := impulseResponse(1, 44100, noiseSeeds[1])
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("the two channel seeds should give different noise")
	}
}

func TestChainEqUpdateKeepsSections(t *testing.T) {
	chain := NewChain(44100, 64)
	params := &looproom.EqParams{Enabled: true, Bands: []looproom.EqBandParams{
		{Type: looproom.FilterPeaking, FrequencyHz: 1000, GainDb: 6, Q: 1, Enabled: true},
	}}
	chain.SetEq(params)
	before := chain.bands[0]
	params.Bands[0].FrequencyHz = 2000
	chain.SetEq(params)
	if chain.bands[0] != before {
		t.Error("a frequency tweak should update the section in place, not rebuild it")
	}
	if chain.BandCoefficients(0) == DesignBand(looproom.EqBandParams{Type: looproom.FilterPeaking, FrequencyHz: 1000, GainDb: 6, Q: 1}, 44100) {
		t.Error("coefficients should have changed")
	}
	params.Bands = append(params.Bands, looproom.EqBandParams{Type: looproom.FilterNotch, FrequencyHz: 60, Q: 2, Enabled: true})
	chain.SetEq(params)
	if len(chain.bands) != 2 {
		t.Fatalf("expected a rebuilt two-band chain, got %v sections", len(chain.bands))
	}
}

func TestChainGains(t *testing.T) {
	chain := NewChain(44100, 4)
	chain.SetInputGain(0.5)
	chain.SetOutputGain(0.5)
	l := []float32{1, 1, 1, 1}
	r := []float32{1, 1, 1, 1}
	if err := chain.Process(l, r); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for i := range l {
		if l[i] != 0.25 || r[i] != 0.25 {
			t.Errorf("frame %v: expected 0.25, got %v/%v", i, l[i], r[i])
		}
	}
}

func TestReverbDisabledIsPassThrough(t *testing.T) {
	rv, err := NewReverb(looproom.ReverbParams{Enabled: false, Wet: 0.5, DecaySec: 0.1}, 44100, 32)
	if err != nil {
		t.Fatalf("NewReverb failed: %v", err)
	}
	l := []float32{1, 0, -1, 0}
	r := []float32{0, 1, 0, -1}
	wantL := append([]float32(nil), l...)
	if err := rv.Process(l, r); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for i := range l {
		if l[i] != wantL[i] {
			t.Errorf("frame %v changed from %v to %v", i, wantL[i], l[i])
		}
	}
}

func TestBufferVoiceTrims(t *testing.T) {
	buffer := &looproom.SampleBuffer{SampleRate: 44100, Data: make(looproom.AudioBuffer, 100)}
	for i := range buffer.Data {
		buffer.Data[i] = [2]float32{1, 1}
	}
	v := &BufferVoice{Buffer: buffer, StartFrame: 10, SrcOffset: 20, Length: 50, Gain: 1}
	l := make([]float32, 32)
	r := make([]float32, 32)
	active := v.Render(l, r, 0)
	if !active {
		t.Error("voice should still be active after the first block")
	}
	for i := 0; i < 10; i++ {
		if l[i] != 0 {
			t.Errorf("frame %v: expected silence before the start frame, got %v", i, l[i])
		}
	}
	for i := 10; i < 32; i++ {
		if l[i] != 1 {
			t.Errorf("frame %v: expected audio, got %v", i, l[i])
		}
	}
	// the voice finishes at frame 60, inside the second block
	Zero(l)
	Zero(r)
	if active = v.Render(l, r, 32); active {
		t.Error("voice should report done once its last frame is rendered")
	}
	if l[27] != 1 || l[28] != 0 {
		t.Errorf("expected the last audible frame at 59, got %v/%v", l[27], l[28])
	}
}

func TestOscVoiceEnvelope(t *testing.T) {
	v := &OscVoice{
		Waveform:      looproom.WaveSquare,
		FreqHz:        1, // phase stays ~0 over a short block, sample is +1
		SampleRate:    44100,
		Gain:          1,
		StartFrame:    0,
		EndFrame:      100,
		AttackFrames:  10,
		ReleaseFrames: 10,
	}
	l := make([]float32, 100)
	r := make([]float32, 100)
	if v.Render(l, r, 0) {
		t.Error("voice should be done after its whole range rendered")
	}
	if l[0] != 0 {
		t.Errorf("attack should start at zero, got %v", l[0])
	}
	if math.Abs(float64(l[5])-0.5) > 1e-6 {
		t.Errorf("expected mid-attack amplitude 0.5, got %v", l[5])
	}
	if math.Abs(float64(l[50])-1) > 1e-6 {
		t.Errorf("expected full amplitude during hold, got %v", l[50])
	}
	if math.Abs(float64(l[95])-0.5) > 1e-6 {
		t.Errorf("expected mid-release amplitude 0.5, got %v", l[95])
	}
}

func TestNoteFreq(t *testing.T) {
	if f := NoteFreq(69); math.Abs(f-440) > 1e-9 {
		t.Errorf("A4 should be 440 Hz, got %v", f)
	}
	if f := NoteFreq(60); math.Abs(f-261.6255653) > 1e-3 {
		t.Errorf("C4 should be ~261.63 Hz, got %v", f)
	}
}
