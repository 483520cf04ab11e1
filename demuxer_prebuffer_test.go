package decodersdk

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemuxerPreBufferRequireBothStreamsNeedsBoth(t *testing.T) {
	d := NewDemuxer(NewEventDispatcher())

	var fired int32
	d.SetPreBufferConfig(PreBufferConfig{
		Enabled:            true,
		VideoFrames:        2,
		AudioPackets:       2,
		RequireBothStreams: true,
	}, func() { atomic.AddInt32(&fired, 1) })

	d.notePreBufferProgress(true)
	d.notePreBufferProgress(true)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "video alone must not satisfy a require-both gate")

	d.notePreBufferProgress(false)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "audio below its own threshold must not fire either")

	d.notePreBufferProgress(false)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	progress := d.PreBufferProgress()
	assert.True(t, progress.IsOverallReady)
	assert.True(t, progress.IsVideoReady)
	assert.True(t, progress.IsAudioReady)
}

func TestDemuxerPreBufferEitherStreamSatisfiesGate(t *testing.T) {
	d := NewDemuxer(NewEventDispatcher())

	var fired int32
	d.SetPreBufferConfig(PreBufferConfig{
		Enabled:            true,
		VideoFrames:        5,
		AudioPackets:       5,
		RequireBothStreams: false,
	}, func() { atomic.AddInt32(&fired, 1) })

	for i := 0; i < 5; i++ {
		d.notePreBufferProgress(true)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))

	progress := d.PreBufferProgress()
	assert.True(t, progress.IsVideoReady)
	assert.False(t, progress.IsAudioReady)
	assert.True(t, progress.IsOverallReady)
}

func TestDemuxerPreBufferFiresExactlyOnce(t *testing.T) {
	d := NewDemuxer(NewEventDispatcher())

	var fired int32
	d.SetPreBufferConfig(PreBufferConfig{
		Enabled:      true,
		VideoFrames:  1,
		AudioPackets: 0,
	}, func() { atomic.AddInt32(&fired, 1) })

	for i := 0; i < 10; i++ {
		d.notePreBufferProgress(true)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestDemuxerClearPreBufferCallbackDisarmsGate(t *testing.T) {
	d := NewDemuxer(NewEventDispatcher())

	var fired int32
	d.SetPreBufferConfig(PreBufferConfig{
		Enabled:     true,
		VideoFrames: 1,
	}, func() { atomic.AddInt32(&fired, 1) })

	d.ClearPreBufferCallback()
	d.notePreBufferProgress(true)

	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestDemuxerPreBufferDisabledIsNoOp(t *testing.T) {
	d := NewDemuxer(NewEventDispatcher())
	// No SetPreBufferConfig call: cfg.Enabled defaults to false.
	d.notePreBufferProgress(true)
	d.notePreBufferProgress(false)

	progress := d.PreBufferProgress()
	require.Equal(t, 0, progress.VideoBufferedFrames)
	require.Equal(t, 0, progress.AudioBufferedPackets)
}
