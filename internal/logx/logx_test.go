package logx

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetupLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Setup("test", "debug", "json")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Setup("test", "nonsense", "console")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Setup("test", "", "json")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
