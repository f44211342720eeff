package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelParsing(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, New("warn", false).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("bogus", false).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("", false).GetLevel())
}

func TestNew_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "debug", false)

	log.Info().Str("course_id", "c-1").Msg("reserved")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "c-1", entry["course_id"])
	assert.Equal(t, "reserved", entry["message"])
}
