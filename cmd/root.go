package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aoutctl",
	Short: "Audio output core command line driver",
	Long: `aoutctl drives the audio output core directly against a real PortAudio
device and a real decoded file: the filter pipeline, resampler, volume/
replay-gain, FIFO/date engine, sync controller and audio meter all run
exactly as they would inside a full media player, with no video or
subtitle core attached.

Commands:
  - play: decode a file and play it through the output core
  - transform: convert a file to a different sample rate and WAV format`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
