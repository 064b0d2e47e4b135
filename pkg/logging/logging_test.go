package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNewHonoursLevel(t *testing.T) {
	log := New("error", true)
	assert.Equal(t, zerolog.ErrorLevel, log.GetLevel())
}

func TestNewDevelopment(t *testing.T) {
	log := New("debug", false)
	assert.Equal(t, zerolog.DebugLevel, log.GetLevel())
}
