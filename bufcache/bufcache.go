// Package bufcache materializes sample buffers: it fetches audio assets by
// URL, decodes and resamples them to the engine rate, and caches the result
// so every clip referencing the same URL shares one decoded buffer.
package bufcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/looproom/looproom"
)

// Retry policy for failed fetches. After MaxAttempts the URL is abandoned:
// the failure is remembered, the clip stays silent, and playback goes on.
var (
	MaxAttempts = 4
	BaseDelay   = 250 * time.Millisecond
	MaxDelay    = 5 * time.Second
)

// Cache materializes and holds decoded sample buffers, keyed by URL.
type Cache struct {
	sampleRate int
	client     *http.Client
	log        zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	done   chan struct{}
	buffer *looproom.SampleBuffer
	err    error
}

// New creates a cache that resamples everything it decodes to the given
// rate.
func New(logger zerolog.Logger, sampleRate int) *Cache {
	if sampleRate <= 0 {
		sampleRate = looproom.DefaultSampleRate
	}
	return &Cache{
		sampleRate: sampleRate,
		client:     &http.Client{Timeout: 30 * time.Second},
		log:        logger,
		entries:    make(map[string]*entry),
	}
}

// Get returns the buffer for the URL if it has already been materialized.
func (c *Cache) Get(url string) (*looproom.SampleBuffer, bool) {
	c.mu.Lock()
	e, ok := c.entries[url]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.done:
		return e.buffer, e.err == nil
	default:
		return nil, false
	}
}

// Ensure returns the materialized buffer for the URL, fetching, decoding
// and resampling it on first use. Concurrent calls for the same URL share
// one in-flight fetch; repeated calls after success are cheap lookups.
// Transient fetch failures retry with exponential backoff; once the policy
// is exhausted the failure is cached and returned without further attempts.
func (c *Cache) Ensure(ctx context.Context, url string) (*looproom.SampleBuffer, error) {
	c.mu.Lock()
	e, ok := c.entries[url]
	if !ok {
		e = &entry{done: make(chan struct{})}
		c.entries[url] = e
		c.mu.Unlock()
		c.materialize(ctx, url, e)
	} else {
		c.mu.Unlock()
	}
	select {
	case <-e.done:
		return e.buffer, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate forgets the URL so the next Ensure fetches it again. Used when
// an abandoned asset should be retried after the user fixed its source.
func (c *Cache) Invalidate(url string) {
	c.mu.Lock()
	delete(c.entries, url)
	c.mu.Unlock()
}

func (c *Cache) materialize(ctx context.Context, url string, e *entry) {
	defer close(e.done)
	delay := BaseDelay
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		raw, err := c.fetch(ctx, url)
		if err == nil {
			buffer, err := decode(raw, url, c.sampleRate)
			if err == nil {
				c.log.Debug().Str("url", url).
					Int("frames", len(buffer.Data)).
					Msg("sample materialized")
				e.buffer = buffer
				return
			}
			// a decode failure will not fix itself, abandon immediately
			c.log.Warn().Str("url", url).Err(err).Msg("sample decode failed")
			e.err = err
			return
		}
		lastErr = err
		c.log.Warn().Str("url", url).Int("attempt", attempt).Err(err).
			Msg("sample fetch failed")
		if attempt == MaxAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			e.err = ctx.Err()
			return
		}
		if delay *= 2; delay > MaxDelay {
			delay = MaxDelay
		}
	}
	e.err = fmt.Errorf("abandoned after %d attempts: %w", MaxAttempts, lastErr)
}

func (c *Cache) fetch(ctx context.Context, url string) ([]byte, error) {
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching %s: %s", url, resp.Status)
		}
		return io.ReadAll(resp.Body)
	case strings.HasPrefix(url, "file://"):
		return os.ReadFile(strings.TrimPrefix(url, "file://"))
	default:
		return os.ReadFile(url)
	}
}
