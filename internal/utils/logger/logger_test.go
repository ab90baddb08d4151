package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, LevelFor("dev"))
	assert.Equal(t, zerolog.TraceLevel, LevelFor("TEST"))
	assert.Equal(t, zerolog.InfoLevel, LevelFor("prod"))
	assert.Equal(t, zerolog.InfoLevel, LevelFor("staging"))
	assert.Equal(t, zerolog.InfoLevel, LevelFor(""))
}
