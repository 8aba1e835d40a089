package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFormat_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithFormat(&buf, slog.LevelInfo, "json")

	l.Info("failed", "error", errors.New("boom"))

	assert.Contains(t, buf.String(), `"err":"boom"`)
}

func TestNewWithFormat_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithFormat(&buf, slog.LevelWarn, "text")

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
