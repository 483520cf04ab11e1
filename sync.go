package decodersdk

import (
	"math"
	"sync"
)

// Sync thresholds, grounded in the master-clock delay algorithm: a
// deviation smaller than kAVSyncThreshold is ignored, a deviation larger
// than kAVNoSyncThreshold is treated as an unsynchronizable discontinuity
// (seek, reconnect) rather than a drift to correct for.
const (
	kAVSyncThreshold  = 0.01
	kAVNoSyncThreshold = 10.0
	kMaxFrameDuration = 10.0
)

// MasterClockType selects which clock the sync controller treats as the
// timeline other streams are scheduled against.
type MasterClockType int

const (
	MasterClockAudio MasterClockType = iota
	MasterClockVideo
	MasterClockExternal
)

// SyncController owns the audio, video, and external clocks and computes
// the delay the video decode loop should wait before releasing each
// frame, so video tracks whichever clock is selected as master.
type SyncController struct {
	mu sync.Mutex

	audioClock    *Clock
	videoClock    *Clock
	externalClock *Clock
	masterType    MasterClockType

	lastFramePts float64
	frameTimer   float64
}

// NewSyncController creates a controller with its own audio/video/
// external clocks, audio selected as master by default.
func NewSyncController() *SyncController {
	return &SyncController{
		audioClock:    NewClock(),
		videoClock:    NewClock(),
		externalClock: NewClock(),
		masterType:    MasterClockAudio,
	}
}

// AudioClock, VideoClock, ExternalClock expose the owned clocks so
// decoders can update them as they produce frames.
func (s *SyncController) AudioClock() *Clock    { return s.audioClock }
func (s *SyncController) VideoClock() *Clock    { return s.videoClock }
func (s *SyncController) ExternalClock() *Clock { return s.externalClock }

// SetMasterClockType selects which clock other streams are scheduled
// against.
func (s *SyncController) SetMasterClockType(t MasterClockType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masterType = t
}

// MasterClock returns the clock currently selected as master.
func (s *SyncController) MasterClock() *Clock {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.masterType {
	case MasterClockVideo:
		return s.videoClock
	case MasterClockExternal:
		return s.externalClock
	default:
		return s.audioClock
	}
}

// ComputeVideoDelay computes how long the video decode loop should wait
// before releasing the frame at pts with the given nominal duration, so
// that video tracks the master clock:
//
//  1. The first frame (no prior pts observed) is released immediately.
//  2. The sync threshold is the frame's own duration, floored at
//     kAVSyncThreshold, so short frames are not chased into jitter.
//  3. If the clock has drifted from master by less than
//     kAVNoSyncThreshold: a video clock that is behind master by more
//     than the threshold is released with zero delay (catch up); one
//     that is ahead by more than the threshold waits twice as long
//     (slow down); otherwise it uses the nominal duration.
//  4. A drift of kAVNoSyncThreshold or more is treated as a
//     discontinuity (seek/reconnect) and the nominal duration is used
//     rather than trying to correct it in one step.
//  5. The running frame timer is advanced by the chosen delay and
//     rebased to now if it has fallen behind, so playback cannot spiral
//     into an ever-growing backlog of negative delays.
func (s *SyncController) ComputeVideoDelay(pts, duration float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frameTimer == 0.0 {
		s.lastFramePts = pts
		s.frameTimer = monotonicSeconds()
		return 0
	}

	diff := pts - s.lastFramePts
	if diff <= 0 || diff >= kMaxFrameDuration {
		diff = duration
	}
	s.lastFramePts = pts

	delay := duration
	syncThreshold := duration
	if syncThreshold < kAVSyncThreshold {
		syncThreshold = kAVSyncThreshold
	}

	master := s.masterClockLocked()
	clockDiff := pts - master.GetClock()

	if clockDiff < kAVNoSyncThreshold && clockDiff > -kAVNoSyncThreshold {
		switch {
		case clockDiff <= -syncThreshold:
			delay = 0
		case clockDiff >= syncThreshold:
			delay = 2 * duration
		default:
			delay = duration
		}
	}

	s.frameTimer += delay
	now := monotonicSeconds()
	actualDelay := s.frameTimer - now
	if actualDelay < 0 {
		actualDelay = 0
		s.frameTimer = now
	}
	return actualDelay
}

func (s *SyncController) masterClockLocked() *Clock {
	switch s.masterType {
	case MasterClockVideo:
		return s.videoClock
	case MasterClockExternal:
		return s.externalClock
	default:
		return s.audioClock
	}
}

// ResetClocks clears the frame-pacing state and re-anchors all three
// clocks to an undefined (NaN) pts under an invalid serial, used after a
// seek or reconnect before decoding resumes.
func (s *SyncController) ResetClocks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameTimer = 0
	s.lastFramePts = 0
	s.audioClock.SetClock(math.NaN(), -1)
	s.videoClock.SetClock(math.NaN(), -1)
	s.externalClock.SetClock(math.NaN(), -1)
}
