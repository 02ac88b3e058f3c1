package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/looproom/looproom"
	"github.com/looproom/looproom/bufcache"
	"github.com/looproom/looproom/render"
)

var (
	renderOut   string
	renderRange string
	renderPcm16 bool
)

var renderCmd = &cobra.Command{
	Use:   "render <session.yaml>",
	Short: "Mix a session down to a WAV file",
	Long: `Mix a session down to a WAV file, offline and faster than realtime.

The --range flag selects what to render:
  whole          the whole session (default)
  loop           the session's loop region
  <start>:<end>  a custom range in seconds, e.g. 4:12.5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return renderSession(args[0])
	},
}

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "out.wav", "output file")
	renderCmd.Flags().StringVar(&renderRange, "range", "whole", "range to render")
	renderCmd.Flags().BoolVar(&renderPcm16, "pcm16", false, "write 16-bit integer samples instead of 32-bit float")
	rootCmd.AddCommand(renderCmd)
}

func renderSession(path string) error {
	session, err := looproom.ReadSessionFile(path)
	if err != nil {
		return err
	}
	rng, err := parseRange(&session, renderRange)
	if err != nil {
		return err
	}

	ctx := context.Background()
	cache := bufcache.New(logger, cfg.SampleRate)
	if err := materialize(ctx, cache, &session); err != nil {
		return err
	}

	out, err := os.Create(renderOut)
	if err != nil {
		return err
	}
	defer out.Close()
	opt := render.Options{SampleRate: cfg.SampleRate, Pcm16: renderPcm16}
	if err := render.WriteWav(out, logger, session, rng, opt); err != nil {
		return err
	}
	logger.Info().Str("file", renderOut).
		Float64("seconds", rng.DurationSec()).
		Msg("mixdown written")
	return nil
}

func parseRange(session *looproom.Session, spec string) (render.Range, error) {
	switch spec {
	case "whole", "":
		return render.SessionRange(session), nil
	case "loop":
		return render.LoopRange(session)
	}
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return render.Range{}, fmt.Errorf("bad range %q, want whole, loop or start:end", spec)
	}
	start, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return render.Range{}, fmt.Errorf("bad range start %q: %w", parts[0], err)
	}
	end, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return render.Range{}, fmt.Errorf("bad range end %q: %w", parts[1], err)
	}
	return render.Range{StartSec: start, EndSec: end}, nil
}
