package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreGlobals(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})
}

func TestSetupJSON(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	require.NoError(t, setup(&buf, "warn", "json"))

	log.Info().Msg("hidden")
	log.Warn().Str("room", "r1").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "r1", entry["room"])
	assert.Equal(t, "shown", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestSetupConsole(t *testing.T) {
	restoreGlobals(t)

	var buf bytes.Buffer
	require.NoError(t, setup(&buf, "", "console"))
	log.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetupRejectsUnknownValues(t *testing.T) {
	restoreGlobals(t)

	assert.Error(t, setup(&bytes.Buffer{}, "loud", "json"))
	assert.Error(t, setup(&bytes.Buffer{}, "info", "xml"))
}
