package decodersdk

import astiav "github.com/asticode/go-astiav"

// Frame wraps a decoded raw frame tagged with the serial of the queue
// epoch it was decoded under, its presentation duration, and whether it
// still lives in hardware (device) memory.
type Frame struct {
	frame      *astiav.Frame
	serial     int
	pts        float64
	duration   float64
	isHardware bool
}

func newFrame() *Frame {
	return &Frame{frame: astiav.AllocFrame()}
}

// AVFrame exposes the underlying astiav frame.
func (f *Frame) AVFrame() *astiav.Frame { return f.frame }

// Serial reports the queue epoch this frame was decoded under.
func (f *Frame) Serial() int { return f.serial }

// SetSerial tags the frame with a queue epoch.
func (f *Frame) SetSerial(serial int) { f.serial = serial }

// PTS reports the frame's presentation timestamp in seconds.
func (f *Frame) PTS() float64 { return f.pts }

// SetPTS sets the frame's presentation timestamp in seconds.
func (f *Frame) SetPTS(pts float64) { f.pts = pts }

// Duration reports the frame's presentation duration in seconds.
func (f *Frame) Duration() float64 { return f.duration }

// SetDuration sets the frame's presentation duration in seconds.
func (f *Frame) SetDuration(d float64) { f.duration = d }

// IsInHardware reports whether the frame still references device memory
// (i.e. has not been transferred to system memory).
func (f *Frame) IsInHardware() bool { return f.isHardware }

// SetIsInHardware marks whether the frame lives in device memory.
func (f *Frame) SetIsInHardware(v bool) { f.isHardware = v }

// MoveFrom transfers the contents of src into f, leaving src empty and
// ready for its next decode iteration.
func (f *Frame) MoveFrom(src *astiav.Frame) error {
	f.frame.Unref()
	if err := f.frame.Ref(src); err != nil {
		return err
	}
	return nil
}

// Unref releases the frame's buffer reference without freeing the
// underlying astiav.Frame, so it can be reused by the queue slot.
func (f *Frame) Unref() {
	if f.frame != nil {
		f.frame.Unref()
	}
	f.pts = 0
	f.duration = 0
	f.isHardware = false
}

// Free releases the underlying astiav.Frame entirely.
func (f *Frame) Free() {
	if f.frame != nil {
		f.frame.Free()
		f.frame = nil
	}
}
