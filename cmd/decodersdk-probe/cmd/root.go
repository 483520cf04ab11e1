package cmd

import (
	"fmt"
	"log"
	"strings"

	astiav "github.com/asticode/go-astiav"
	"github.com/spf13/cobra"
)

var debugFFmpeg bool

var rootCmd = &cobra.Command{
	Use:   "decodersdk-probe",
	Short: "Exercise a decodersdk Controller session from the command line",
	Long: `decodersdk-probe opens a media source through decodersdk, prints its
event stream, and reports decode/sync state. It exists to drive the
library outside of an embedding application.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if debugFFmpeg {
			astiav.SetLogLevel(astiav.LogLevelDebug)
			astiav.SetLogCallback(func(c astiav.Classer, l astiav.LogLevel, fmt string, msg string) {
				var cs string
				if c != nil {
					if cl := c.Class(); cl != nil {
						cs = " - class: " + cl.String()
					}
				}
				log.Printf("ffmpeg: %s%s - level: %d", strings.TrimSpace(msg), cs, l)
			})
		}
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("decodersdk-probe: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFFmpeg, "debug-ffmpeg", false, "bridge FFmpeg's internal log to stderr")
}
