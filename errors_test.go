package decodersdk

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsOpKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := newError(ErrKindIoOpenFailed, "demuxer.Open", cause)
	assert.Equal(t, "demuxer.Open: io_open_failed: connection refused", err.Error())
}

func TestErrorFormatsWithoutCause(t *testing.T) {
	err := newError(ErrKindCancelled, "asyncOpen", nil)
	assert.Equal(t, "asyncOpen: cancelled", err.Error())
}

func TestErrorUnwrapExposesCause(t *testing.T) {
	cause := errors.New("eof")
	err := newError(ErrKindIoReadFatal, "demuxLoop", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestKindOfRecoversKindThroughWrapping(t *testing.T) {
	cause := errors.New("bad url")
	err := newError(ErrKindConfigInvalid, "Config.Validate", cause)
	wrapped := fmt.Errorf("open: %w", err)

	assert.Equal(t, ErrKindConfigInvalid, KindOf(wrapped))
}

func TestKindOfReturnsUnknownForPlainError(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
}
