package cmd

import (
	"fmt"
	"log"

	astiav "github.com/asticode/go-astiav"
	"github.com/spf13/cobra"
	"github.com/yaxinqq/decodersdk"
)

var probeHWAccel string

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Open a media source just long enough to report its stream layout, then close",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVar(&probeHWAccel, "hwaccel", "none", "hardware acceleration to attempt while probing")
}

func runProbe(_ *cobra.Command, args []string) error {
	url := args[0]

	hwType, err := parseHWAccel(probeHWAccel)
	if err != nil {
		return err
	}

	cfg := decodersdk.DefaultConfig()
	cfg.HWAccel = hwType

	ctrl := decodersdk.NewController()
	if err := ctrl.Open(url, cfg); err != nil {
		return fmt.Errorf("open %q: %w", url, err)
	}
	defer ctrl.Close()

	fc := ctrl.FormatContext()
	if fc == nil {
		return fmt.Errorf("probe %q: no format context after open", url)
	}

	log.Printf("source: %s", url)
	for _, s := range fc.Streams() {
		par := s.CodecParameters()
		switch par.MediaType() {
		case astiav.MediaTypeVideo:
			log.Printf("  stream %d: video, codec=%s", s.Index(), par.CodecID())
		case astiav.MediaTypeAudio:
			log.Printf("  stream %d: audio, codec=%s", s.Index(), par.CodecID())
		default:
			log.Printf("  stream %d: %s", s.Index(), par.MediaType())
		}
	}
	// Opening codecs (briefly) is the only way to surface the estimated
	// frame rate; stop decoding again immediately, nothing is displayed.
	if err := ctrl.StartDecode(); err == nil {
		log.Printf("video frame rate: %.3f", ctrl.VideoFrameRate())
		_ = ctrl.StopDecode()
	}

	return nil
}
