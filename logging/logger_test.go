package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "debug", "json")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := ActivityLogger("DeployCompute", "wf-1", "run-1")
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "deployctl", entry["service"])
	assert.Equal(t, "activity", entry["component"])
	assert.Equal(t, "DeployCompute", entry["activity"])
	assert.Equal(t, "wf-1", entry["workflow_id"])
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	initLogger(&buf, "chatty", "json")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := ComponentLogger("packager")
	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
