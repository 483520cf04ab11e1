package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yaxinqq/decodersdk"
)

var (
	recordHWAccel  string
	recordDuration time.Duration
)

var recordCmd = &cobra.Command{
	Use:   "record <url> <output.mp4>",
	Short: "Open a media source and tee-record it to an mp4 file until stopped",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().StringVar(&recordHWAccel, "hwaccel", "none", "hardware acceleration to use while decoding")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "stop recording after this long (0 = run until interrupted)")
}

func runRecord(_ *cobra.Command, args []string) error {
	url, outPath := args[0], args[1]

	hwType, err := parseHWAccel(recordHWAccel)
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

	if err := ctrl.StartDecode(); err != nil {
		return fmt.Errorf("start decode: %w", err)
	}
	defer ctrl.StopDecode()

	if err := ctrl.StartRecording(outPath); err != nil {
		return fmt.Errorf("start recording %q: %w", outPath, err)
	}
	defer ctrl.StopRecording()

	log.Printf("recording %q to %q", url, outPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var timeout <-chan time.Time
	if recordDuration > 0 {
		timer := time.NewTimer(recordDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case sig := <-sigCh:
		log.Printf("received %s, stopping recording", sig)
	case <-timeout:
		log.Printf("duration elapsed, stopping recording")
	}

	return nil
}
