package main

import (
	"github.com/spf13/cobra"

	"github.com/looproom/looproom"
	"github.com/looproom/looproom/smfimport"
)

var (
	importAt       float64
	importSetTempo bool
)

var importCmd = &cobra.Command{
	Use:   "import <file.mid> <session.yaml>",
	Short: "Import a standard MIDI file into a session as instrument tracks",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importSMF(args[0], args[1])
	},
}

func init() {
	importCmd.Flags().Float64Var(&importAt, "at", 0, "timeline position for the imported clips, in seconds")
	importCmd.Flags().BoolVar(&importSetTempo, "set-tempo", false, "adopt the MIDI file's tempo as the session BPM")
	rootCmd.AddCommand(importCmd)
}

func importSMF(midiPath, sessionPath string) error {
	session, err := looproom.ReadSessionFile(sessionPath)
	if err != nil {
		return err
	}
	tracks, bpm, err := smfimport.ImportFile(midiPath, importAt)
	if err != nil {
		return err
	}
	if importSetTempo {
		session.BPM = bpm
	}
	session.Tracks = append(session.Tracks, tracks...)
	if err := session.Validate(); err != nil {
		return err
	}
	if err := looproom.WriteSessionFile(sessionPath, &session); err != nil {
		return err
	}
	logger.Info().Str("midi", midiPath).Int("tracks", len(tracks)).
		Float64("bpm", bpm).Msg("MIDI imported")
	return nil
}
