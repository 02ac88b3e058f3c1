package bufcache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/looproom/looproom"
)

func wavAsset(t *testing.T, frames, rate int) []byte {
	t.Helper()
	data := make(looproom.AudioBuffer, frames)
	for i := range data {
		data[i] = [2]float32{0.5, -0.5}
	}
	wav, err := data.Wav(rate, true)
	if err != nil {
		t.Fatal(err)
	}
	return wav
}

func TestEnsureFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.wav")
	if err := os.WriteFile(path, wavAsset(t, 1000, 44100), 0644); err != nil {
		t.Fatal(err)
	}
	cache := New(zerolog.Nop(), 44100)
	buffer, err := cache.Ensure(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if buffer.SampleRate != 44100 || len(buffer.Data) != 1000 {
		t.Fatalf("unexpected buffer: rate %d, %d frames", buffer.SampleRate, len(buffer.Data))
	}
	if l, r := buffer.Data[10][0], buffer.Data[10][1]; l < 0.499 || l > 0.501 || r > -0.499 || r < -0.501 {
		t.Errorf("pcm16 round trip mangled samples: %v", buffer.Data[10])
	}
	if got, ok := cache.Get(path); !ok || got != buffer {
		t.Errorf("Get should return the cached buffer")
	}
}

func TestEnsureResamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.wav")
	if err := os.WriteFile(path, wavAsset(t, 800, 8000), 0644); err != nil {
		t.Fatal(err)
	}
	cache := New(zerolog.Nop(), 16000)
	buffer, err := cache.Ensure(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if buffer.SampleRate != 16000 {
		t.Fatalf("expected resample to 16000, got %d", buffer.SampleRate)
	}
	if got := len(buffer.Data); got != 1600 {
		t.Errorf("0.1s at 16000 should be 1600 frames, got %d", got)
	}
}

func TestEnsureCoalescesConcurrentFetches(t *testing.T) {
	var requests atomic.Int32
	asset := wavAsset(t, 100, 44100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.Write(asset)
	}))
	defer srv.Close()

	cache := New(zerolog.Nop(), 44100)
	var wg sync.WaitGroup
	buffers := make([]*looproom.SampleBuffer, 8)
	for i := 0; i < len(buffers); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buffer, err := cache.Ensure(context.Background(), srv.URL+"/loop.wav")
			if err != nil {
				t.Error(err)
				return
			}
			buffers[i] = buffer
		}(i)
	}
	wg.Wait()
	if got := requests.Load(); got != 1 {
		t.Errorf("concurrent ensures should share one fetch, saw %d", got)
	}
	for _, buffer := range buffers[1:] {
		if buffer != buffers[0] {
			t.Fatal("all callers should share the same decoded buffer")
		}
	}
}

func TestEnsureAbandonsAfterRetries(t *testing.T) {
	defer func(attempts int, delay time.Duration) {
		MaxAttempts, BaseDelay = attempts, delay
	}(MaxAttempts, BaseDelay)
	MaxAttempts, BaseDelay = 3, time.Millisecond

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := New(zerolog.Nop(), 44100)
	if _, err := cache.Ensure(context.Background(), srv.URL+"/gone.wav"); err == nil {
		t.Fatal("expected an abandonment error")
	}
	if got := requests.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, saw %d", got)
	}
	// abandoned URLs stay abandoned, no new fetches
	if _, err := cache.Ensure(context.Background(), srv.URL+"/gone.wav"); err == nil {
		t.Fatal("expected the cached failure")
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("abandoned URL refetched, saw %d requests", got)
	}

	// until explicitly invalidated
	cache.Invalidate(srv.URL + "/gone.wav")
	cache.Ensure(context.Background(), srv.URL+"/gone.wav")
	if got := requests.Load(); got != 6 {
		t.Errorf("invalidate should allow a fresh attempt, saw %d requests", got)
	}
}

func TestEnsureRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.bin")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0644); err != nil {
		t.Fatal(err)
	}
	cache := New(zerolog.Nop(), 44100)
	if _, err := cache.Ensure(context.Background(), path); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestResampleLinearMidpoints(t *testing.T) {
	data := looproom.AudioBuffer{{0, 0}, {1, -1}}
	out := resample(data, 1000, 2000)
	if len(out.Data) < 2 {
		t.Fatalf("expected upsampled frames, got %d", len(out.Data))
	}
	if out.Data[1][0] != 0.5 || out.Data[1][1] != -0.5 {
		t.Errorf("expected linear midpoint, got %v", out.Data[1])
	}
}
