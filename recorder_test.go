package decodersdk

import (
	"testing"

	astiav "github.com/asticode/go-astiav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecorderDefaults(t *testing.T) {
	r := NewRecorder(NewEventDispatcher(), "rtsp://example/cam")
	assert.NotNil(t, r.videoQueue)
	assert.NotNil(t, r.audioQueue)
	assert.False(t, r.hasKeyFrame)
}

func TestRecorderIsVideoStreamLockedFalseBeforeStart(t *testing.T) {
	r := NewRecorder(NewEventDispatcher(), "rtsp://example/cam")
	assert.False(t, r.isVideoStreamLocked(0))
}

func TestRecorderTeeIsNoOpBeforeStart(t *testing.T) {
	r := NewRecorder(NewEventDispatcher(), "rtsp://example/cam")

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	pkt.SetStreamIndex(0)

	r.tee(pkt, 0, 1)

	assert.Equal(t, 0, r.videoQueue.PacketCount())
	assert.Equal(t, 0, r.audioQueue.PacketCount())
}

func TestRecorderStopWithoutStartIsSafe(t *testing.T) {
	r := NewRecorder(NewEventDispatcher(), "rtsp://example/cam")
	require.NoError(t, r.Stop())
}

func TestRecorderWriteVideoGatesOnKeyframeAndResetsOnSerialChange(t *testing.T) {
	r := NewRecorder(NewEventDispatcher(), "rtsp://example/cam")
	r.lastSerial = 1
	r.hasKeyFrame = true

	pkt := NewPacket()
	pkt.AVPacket().SetStreamIndex(0)
	pkt.SetSerial(2)

	// No output format context mapped: writeVideo must bail out without
	// panicking, but it still resets the keyframe gate for the new serial.
	r.writeVideo(pkt)

	assert.Equal(t, 2, r.lastSerial)
	assert.False(t, r.hasKeyFrame)
}

func TestRecorderWriteAudioSkippedBeforeKeyframeSeen(t *testing.T) {
	r := NewRecorder(NewEventDispatcher(), "rtsp://example/cam")
	r.hasKeyFrame = false

	pkt := NewPacket()
	pkt.AVPacket().SetStreamIndex(0)

	// Must not panic even though no output context is configured: the
	// keyframe gate short-circuits before any of that is touched.
	r.writeAudio(pkt)
}

func TestRecorderWriteMappedLockedRewritesStreamIndexForAnyMappedStream(t *testing.T) {
	oc, err := astiav.AllocOutputFormatContext(nil, "mp4", "")
	require.NoError(t, err)
	require.NotNil(t, oc)
	defer oc.Free()

	os := oc.NewStream(nil)
	require.NotNil(t, os)

	r := NewRecorder(NewEventDispatcher(), "rtsp://example/cam")
	r.oc = oc
	r.streamMapping = map[int]int{5: os.Index()}

	pkt := NewPacket()
	defer pkt.Free()
	pkt.AVPacket().SetStreamIndex(5)

	// writeMappedLocked is the single stream-copy path shared by both
	// writeVideo and writeAudio: no media-type-specific encode step.
	r.writeMappedLocked(pkt)

	assert.Equal(t, os.Index(), pkt.AVPacket().StreamIndex())
}

func TestRecorderWriteMappedLockedIgnoresUnmappedStream(t *testing.T) {
	oc, err := astiav.AllocOutputFormatContext(nil, "mp4", "")
	require.NoError(t, err)
	require.NotNil(t, oc)
	defer oc.Free()

	r := NewRecorder(NewEventDispatcher(), "rtsp://example/cam")
	r.oc = oc
	r.streamMapping = map[int]int{}

	pkt := NewPacket()
	defer pkt.Free()
	pkt.AVPacket().SetStreamIndex(7)

	r.writeMappedLocked(pkt)

	assert.Equal(t, 7, pkt.AVPacket().StreamIndex())
}
