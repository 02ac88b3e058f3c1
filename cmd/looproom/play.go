package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/looproom/looproom"
	"github.com/looproom/looproom/bufcache"
	"github.com/looproom/looproom/engine"
	"github.com/looproom/looproom/oto"
)

var playWatch bool

var playCmd = &cobra.Command{
	Use:   "play <session.yaml>",
	Short: "Play a session through the realtime audio output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return play(args[0])
	},
}

func init() {
	playCmd.Flags().BoolVarP(&playWatch, "watch", "w", false,
		"reload the session file when it changes on disk")
	rootCmd.AddCommand(playCmd)
}

func play(path string) error {
	session, err := looproom.ReadSessionFile(path)
	if err != nil {
		return err
	}

	audio, err := oto.NewContext(cfg.SampleRate)
	if err != nil {
		return err
	}
	defer audio.Close()
	sink := audio.Output()
	defer sink.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache := bufcache.New(logger, cfg.SampleRate)
	eng := engine.New(logger, cfg.SampleRate, audio.OutputLatency())
	if err := materialize(ctx, cache, &session); err != nil {
		return err
	}
	eng.SetSession(session)
	eng.Play()

	if playWatch {
		go watchSession(ctx, path, cache, eng)
	}
	go reportPlayhead(ctx, eng)

	logger.Info().Str("session", path).Int("sampleRate", cfg.SampleRate).Msg("playing")
	err = eng.Run(ctx, sink)
	if err == context.Canceled {
		return nil
	}
	return err
}

// materialize fetches and decodes every sample the session references,
// attaching the buffers to their clips. Failures are logged and leave the
// clip silent, matching what the engine does for missing buffers.
func materialize(ctx context.Context, cache *bufcache.Cache, session *looproom.Session) error {
	var wg sync.WaitGroup
	for i := range session.Tracks {
		for j := range session.Tracks[i].Clips {
			clip := &session.Tracks[i].Clips[j]
			if clip.SampleURL == "" {
				continue
			}
			wg.Add(1)
			go func(clip *looproom.Clip) {
				defer wg.Done()
				buffer, err := cache.Ensure(ctx, clip.SampleURL)
				if err != nil {
					logger.Warn().Str("url", clip.SampleURL).Err(err).
						Msg("sample unavailable, clip stays silent")
					return
				}
				clip.Buffer = buffer
			}(clip)
		}
	}
	wg.Wait()
	return ctx.Err()
}

// watchSession reloads the session file whenever it changes, keeping the
// playhead where it is.
func watchSession(ctx context.Context, path string, cache *bufcache.Cache, eng *engine.Engine) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error().Err(err).Msg("cannot watch session file")
		return
	}
	defer watcher.Close()
	// watch the directory; editors often replace the file instead of
	// writing it in place
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Error().Err(err).Msg("cannot watch session directory")
		return
	}
	target := filepath.Clean(path)
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-watcher.Events:
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(100 * time.Millisecond)
		case err := <-watcher.Errors:
			logger.Warn().Err(err).Msg("session watch error")
		case <-debounce:
			debounce = nil
			session, err := looproom.ReadSessionFile(path)
			if err != nil {
				logger.Warn().Err(err).Msg("ignoring unreadable session file")
				continue
			}
			if err := materialize(ctx, cache, &session); err != nil {
				return
			}
			before := eng.Session()
			eng.SetSession(session)
			if ids, ok := changedClipIDs(before, session); ok {
				if len(ids) > 0 {
					eng.RescheduleClips(ids...)
				}
				logger.Info().Str("session", path).Strs("clips", ids).
					Msg("session reloaded")
			} else {
				// structural change; rebuild everything from the
				// current position
				eng.Seek(eng.PlayheadSec())
				logger.Info().Str("session", path).Msg("session reloaded")
			}
		}
	}
}

// changedClipIDs compares two sessions and returns the ids of clips that
// were added, removed or edited, suitable for a subset reschedule. It
// reports false when the difference is structural (tempo, loop, tracks or
// effects) and playback needs a full rebuild instead.
func changedClipIDs(before, after looproom.Session) ([]string, bool) {
	if before.BPM != after.BPM || before.Loop != after.Loop ||
		len(before.Tracks) != len(after.Tracks) ||
		!reflect.DeepEqual(before.MasterEq, after.MasterEq) ||
		!reflect.DeepEqual(before.MasterReverb, after.MasterReverb) {
		return nil, false
	}
	var ids []string
	for i := range after.Tracks {
		oldTrack, newTrack := &before.Tracks[i], &after.Tracks[i]
		oldClips, newClips := oldTrack.Clips, newTrack.Clips
		oldTrack.Clips, newTrack.Clips = nil, nil
		sameTrack := reflect.DeepEqual(oldTrack, newTrack)
		oldTrack.Clips, newTrack.Clips = oldClips, newClips
		if !sameTrack {
			return nil, false
		}
		seen := make(map[string]bool, len(newClips))
		for j := range newClips {
			clip := &newClips[j]
			seen[clip.ID] = true
			old := oldTrack.Clip(clip.ID)
			if old == nil || !reflect.DeepEqual(old, clip) {
				ids = append(ids, clip.ID)
			}
		}
		for j := range oldClips {
			if !seen[oldClips[j].ID] {
				ids = append(ids, oldClips[j].ID)
			}
		}
	}
	return ids, true
}

func reportPlayhead(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if eng.State() == engine.Playing {
				fmt.Fprintf(os.Stderr, "\r%8.2fs  peak %5.2f  rms %5.2f",
					eng.PlayheadSec(), eng.PeakLevel(), eng.RmsLevel())
			}
		}
	}
}
