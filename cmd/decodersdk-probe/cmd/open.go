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
	"gopkg.in/yaml.v2"
)

// sessionOverrides is the subset of decodersdk.Config a YAML file passed
// via --config may override; zero-value fields are left at their
// DefaultConfig()/flag value.
type sessionOverrides struct {
	HWAccel              string `yaml:"hwaccel"`
	Speed                float64 `yaml:"speed"`
	EnableAutoReconnect  *bool  `yaml:"reconnect"`
	ReconnectIntervalMs  int    `yaml:"reconnect_interval_ms"`
	MaxReconnectAttempts *int   `yaml:"max_reconnect_attempts"`
	PreBuffer            *struct {
		VideoFrames        int  `yaml:"video_frames"`
		AudioPackets       int  `yaml:"audio_packets"`
		RequireBothStreams bool `yaml:"require_both_streams"`
	} `yaml:"prebuffer"`
}

func loadSessionOverrides(path string) (sessionOverrides, error) {
	var o sessionOverrides
	data, err := os.ReadFile(path)
	if err != nil {
		return o, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parse config %q: %w", path, err)
	}
	return o, nil
}

var (
	openHWAccel         string
	openSpeed           float64
	openReconnect       bool
	openReconnectIntvMs int
	openMaxReconnects   int
	openPreBufVideo     int
	openPreBufAudio     int
	openPreBufBoth      bool
	openDuration        time.Duration
	openRecordPath      string
	openConfigPath      string
)

var openCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Open a media source and report its events until stopped",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)

	openCmd.Flags().StringVar(&openHWAccel, "hwaccel", "auto", "hardware acceleration: none, auto, dxva2, d3d11va, cuda, vaapi, vdpau, qsv, videotoolbox")
	openCmd.Flags().Float64Var(&openSpeed, "speed", 1.0, "initial playback speed")
	openCmd.Flags().BoolVar(&openReconnect, "reconnect", true, "enable automatic reconnect on stream read errors")
	openCmd.Flags().IntVar(&openReconnectIntvMs, "reconnect-interval-ms", 1000, "delay between reconnect attempts")
	openCmd.Flags().IntVar(&openMaxReconnects, "max-reconnect-attempts", -1, "reconnect attempt cap (-1 = infinite)")
	openCmd.Flags().IntVar(&openPreBufVideo, "prebuffer-video-frames", 0, "video frames to queue before releasing decode (0 disables pre-buffering)")
	openCmd.Flags().IntVar(&openPreBufAudio, "prebuffer-audio-packets", 0, "audio packets to queue before releasing decode")
	openCmd.Flags().BoolVar(&openPreBufBoth, "prebuffer-require-both", false, "require both streams to satisfy their pre-buffer threshold")
	openCmd.Flags().DurationVar(&openDuration, "duration", 0, "stop after this long (0 = run until interrupted)")
	openCmd.Flags().StringVar(&openRecordPath, "record", "", "tee the source to an mp4 file at this path while decoding")
	openCmd.Flags().StringVar(&openConfigPath, "config", "", "YAML file overriding the session config (its set fields take precedence over flags)")
}

func runOpen(_ *cobra.Command, args []string) error {
	url := args[0]

	hwType, err := parseHWAccel(openHWAccel)
	if err != nil {
		return err
	}

	cfg := decodersdk.DefaultConfig()
	cfg.HWAccel = hwType
	cfg.Speed = openSpeed
	cfg.EnableAutoReconnect = openReconnect
	cfg.ReconnectIntervalMs = openReconnectIntvMs
	cfg.MaxReconnectAttempts = openMaxReconnects
	if openPreBufVideo > 0 || openPreBufAudio > 0 {
		cfg.PreBuffer = decodersdk.PreBufferConfig{
			Enabled:            true,
			VideoFrames:        openPreBufVideo,
			AudioPackets:       openPreBufAudio,
			RequireBothStreams: openPreBufBoth,
		}
	}

	if openConfigPath != "" {
		overrides, err := loadSessionOverrides(openConfigPath)
		if err != nil {
			return err
		}
		if overrides.HWAccel != "" {
			if t, err := parseHWAccel(overrides.HWAccel); err == nil {
				cfg.HWAccel = t
			} else {
				return err
			}
		}
		if overrides.Speed > 0 {
			cfg.Speed = overrides.Speed
		}
		if overrides.EnableAutoReconnect != nil {
			cfg.EnableAutoReconnect = *overrides.EnableAutoReconnect
		}
		if overrides.ReconnectIntervalMs > 0 {
			cfg.ReconnectIntervalMs = overrides.ReconnectIntervalMs
		}
		if overrides.MaxReconnectAttempts != nil {
			cfg.MaxReconnectAttempts = *overrides.MaxReconnectAttempts
		}
		if overrides.PreBuffer != nil {
			cfg.PreBuffer = decodersdk.PreBufferConfig{
				Enabled:            true,
				VideoFrames:        overrides.PreBuffer.VideoFrames,
				AudioPackets:       overrides.PreBuffer.AudioPackets,
				RequireBothStreams: overrides.PreBuffer.RequireBothStreams,
			}
		}
	}

	ctrl := decodersdk.NewController()
	handle := ctrl.Events().AddGlobalEventListener(func(t decodersdk.EventType, args decodersdk.EventArgs) {
		log.Printf("event: %s source=%s", t, args.Source())
	})
	defer ctrl.Events().RemoveGlobalEventListener(handle)

	if err := ctrl.Open(url, cfg); err != nil {
		return fmt.Errorf("open %q: %w", url, err)
	}
	defer ctrl.Close()

	if openRecordPath != "" {
		if err := ctrl.StartRecording(openRecordPath); err != nil {
			return fmt.Errorf("start recording: %w", err)
		}
		defer ctrl.StopRecording()
	}

	if err := ctrl.StartDecode(); err != nil {
		return fmt.Errorf("start decode: %w", err)
	}
	defer ctrl.StopDecode()

	log.Printf("decoding %q (hwaccel=%s speed=%.2f)", url, cfg.HWAccel, cfg.Speed)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var timeout <-chan time.Time
	if openDuration > 0 {
		timer := time.NewTimer(openDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			log.Printf("received %s, stopping", sig)
			return nil
		case <-timeout:
			log.Printf("duration elapsed, stopping")
			return nil
		case <-ticker.C:
			reportState(ctrl)
		}
	}
}

func reportState(ctrl *decodersdk.Controller) {
	stats := ctrl.Events().Stats()
	log.Printf("state: prebuffer=%d fps=%.2f speed=%.2f recording=%t events_triggered=%d events_dropped=%d",
		ctrl.PreBufferState(), ctrl.VideoFrameRate(), ctrl.CurSpeed(), ctrl.IsRecording(), stats.Triggered, stats.Dropped)
}

func parseHWAccel(s string) (decodersdk.HWAccelType, error) {
	switch s {
	case "none":
		return decodersdk.HWAccelNone, nil
	case "auto":
		return decodersdk.HWAccelAuto, nil
	case "dxva2":
		return decodersdk.HWAccelDXVA2, nil
	case "d3d11va":
		return decodersdk.HWAccelD3D11VA, nil
	case "cuda":
		return decodersdk.HWAccelCUDA, nil
	case "vaapi":
		return decodersdk.HWAccelVAAPI, nil
	case "vdpau":
		return decodersdk.HWAccelVDPAU, nil
	case "qsv":
		return decodersdk.HWAccelQSV, nil
	case "videotoolbox":
		return decodersdk.HWAccelVideoToolbox, nil
	default:
		return decodersdk.HWAccelNone, fmt.Errorf("unknown hwaccel %q", s)
	}
}
