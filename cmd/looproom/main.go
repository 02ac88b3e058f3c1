// Command looproom plays, renders and edits looproom sessions from the
// command line.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/looproom/looproom/config"
	"github.com/looproom/looproom/version"
)

var (
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "looproom",
	Short:   "A collaborative loop-based audio workstation engine",
	Version: version.VersionOrHash,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
