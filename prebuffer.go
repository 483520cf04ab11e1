package decodersdk

import "math"

// PreBufferState reports where the Controller's pre-buffer gate is in
// its lifecycle for the current session.
type PreBufferState int

const (
	// PreBufferDisabled means pre-buffering was not requested for this
	// session, or the session is closed.
	PreBufferDisabled PreBufferState = iota
	// PreBufferWaiting means decode has started but decoders are
	// withholding frames until the gate fires.
	PreBufferWaiting
	// PreBufferReady means the gate has fired; decoders release frames
	// normally.
	PreBufferReady
)

// PreBufferProgress reports the pre-buffer gate's buffered counts and
// readiness, derived from the demuxer's queued packet counts.
type PreBufferProgress struct {
	VideoBufferedFrames  int
	AudioBufferedPackets int
	VideoRequiredFrames  int
	AudioRequiredPackets int
	IsVideoReady         bool
	IsAudioReady         bool
	IsOverallReady       bool
}

// ProgressPercent summarizes p as a single 0..1 completion fraction,
// combining the video/audio fractions per requireBoth the same way
// IsOverallReady combines the boolean readiness flags (min when both
// streams are required, max otherwise).
func (p PreBufferProgress) ProgressPercent(requireBoth bool) float64 {
	videoFrac := 1.0
	if p.VideoRequiredFrames > 0 {
		videoFrac = math.Min(1.0, float64(p.VideoBufferedFrames)/float64(p.VideoRequiredFrames))
	}
	audioFrac := 1.0
	if p.AudioRequiredPackets > 0 {
		audioFrac = math.Min(1.0, float64(p.AudioBufferedPackets)/float64(p.AudioRequiredPackets))
	}
	if requireBoth {
		return math.Min(videoFrac, audioFrac)
	}
	return math.Max(videoFrac, audioFrac)
}
