package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Output: &buf})
	require.NoError(t, err)

	log.WithField("requirement_id", "r1").Info("application filed")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "application filed", entry["msg"])
	assert.Equal(t, "r1", entry["requirement_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Format: "text", Output: &buf})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, log.GetLevel())

	log.Info("hidden")
	assert.Empty(t, buf.String())
	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")

	_, err = New(Options{Level: "chatty"})
	assert.Error(t, err)
	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}
