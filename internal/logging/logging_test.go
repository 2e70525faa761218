package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_LevelFiltersEvents(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})

	Debug().Msg("debug message")
	Info().Msg("info message")
	Warn().Str("key", "value").Msg("warn message")
	Error().Msg("error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
	assert.Contains(t, out, `"key":"value"`)
}

func TestInit_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "not-a-level", Format: "json", Output: &buf})

	Debug().Msg("debug message")
	Info().Msg("info message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.Contains(t, out, "info message")
}

func TestInit_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})

	Info().Msg("console message")
	require.Contains(t, buf.String(), "console message")
	// ConsoleWriter output is human-oriented, not JSON.
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestInit_LastCallWins(t *testing.T) {
	var first, second bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &first})
	Init(Config{Level: "info", Format: "json", Output: &second})

	Info().Msg("routed")
	assert.Empty(t, first.String())
	assert.Contains(t, second.String(), "routed")
}
