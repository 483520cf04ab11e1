package decodersdk

import astiav "github.com/asticode/go-astiav"

// HWAccelType selects the hardware acceleration strategy a decoder
// should attempt.
type HWAccelType int

const (
	HWAccelNone HWAccelType = iota
	HWAccelAuto
	HWAccelDXVA2
	HWAccelD3D11VA
	HWAccelCUDA
	HWAccelVAAPI
	HWAccelVDPAU
	HWAccelQSV
	HWAccelVideoToolbox
)

// PreBufferConfig gates presentation until the demuxer has queued enough
// data for a smooth start.
type PreBufferConfig struct {
	Enabled           bool
	VideoFrames       int
	AudioPackets      int
	RequireBothStreams bool
}

// Config configures a Controller's decode session.
type Config struct {
	EnableFrameRateControl    bool
	Speed                     float64
	HWAccel                   HWAccelType
	HWDeviceIndex             int
	VideoOutFormat            astiav.PixelFormat
	RequireFrameInSystemMemory bool
	EnableAutoReconnect       bool
	MaxReconnectAttempts      int
	ReconnectIntervalMs       int
	PreBuffer                 PreBufferConfig
}

// DefaultConfig returns the Controller's default session configuration.
func DefaultConfig() Config {
	return Config{
		EnableFrameRateControl:    true,
		Speed:                     1.0,
		HWAccel:                   HWAccelAuto,
		HWDeviceIndex:             0,
		VideoOutFormat:            astiav.PixelFormatYuv420P,
		RequireFrameInSystemMemory: false,
		EnableAutoReconnect:       true,
		MaxReconnectAttempts:      -1,
		ReconnectIntervalMs:       1000,
		PreBuffer: PreBufferConfig{
			Enabled:           false,
			VideoFrames:       30,
			AudioPackets:      60,
			RequireBothStreams: false,
		},
	}
}

// Validate reports a ConfigInvalid error if the configuration cannot be
// used to start a decode session.
func (c Config) Validate() error {
	if c.Speed <= 0 {
		return newError(ErrKindConfigInvalid, "Config.Validate", errInvalidSpeed)
	}
	return nil
}

var errInvalidSpeed = configError("speed must be > 0")

type configError string

func (e configError) Error() string { return string(e) }
