// Package ffopts centralizes the AVDictionary option sets applied when
// opening an input, so the live-open path and the reconnect supervisor
// apply identical options.
package ffopts

import (
	"fmt"

	astiav "github.com/asticode/go-astiav"
)

// OpenOptions configures the dictionary passed to avformat_open_input.
type OpenOptions struct {
	// IsRealTime selects RTSP/live-stream oriented options (low-latency,
	// TCP transport, no internal buffering).
	IsRealTime bool
	// TimeoutUs bounds how long the open/read calls may block, in
	// microseconds. Zero uses the package default.
	TimeoutUs int64
	// ProbeSize overrides the stream-probing buffer size, in bytes. Zero
	// uses FFmpeg's default.
	ProbeSize int64
}

// Dictionary builds the AVDictionary matching o. Caller owns the
// returned dictionary and must Free it.
func Dictionary(o OpenOptions) *astiav.Dictionary {
	d := astiav.NewDictionary()

	timeout := o.TimeoutUs
	if timeout <= 0 {
		timeout = 5_000_000
	}
	_ = d.Set("stimeout", fmt.Sprintf("%d", timeout), 0)
	_ = d.Set("timeout", fmt.Sprintf("%d", timeout), 0)

	if o.IsRealTime {
		_ = d.Set("rtsp_transport", "tcp", 0)
		_ = d.Set("rtsp_flags", "prefer_tcp", 0)
		_ = d.Set("max_delay", "0", 0)
		_ = d.Set("buffer_size", "1048576", 0)
		_ = d.Set("fflags", "nobuffer", 0)
		_ = d.Set("flags", "low_delay", 0)
	}

	if o.ProbeSize > 0 {
		_ = d.Set("probesize", fmt.Sprintf("%d", o.ProbeSize), 0)
	}

	return d
}
