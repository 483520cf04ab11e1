package decodersdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsNonPositiveSpeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Speed = 0
	assert.Error(t, cfg.Validate())
	assert.Equal(t, ErrKindConfigInvalid, KindOf(cfg.Validate()))

	cfg.Speed = -2
	assert.Error(t, cfg.Validate())
}
