package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|___/")
}

func TestSpeakerAndWarningKeepText(t *testing.T) {
	assert.Contains(t, Speaker("psychologist"), "psychologist")
	assert.Contains(t, Warning("careful"), "careful")
}

func TestRenderer(t *testing.T) {
	render := NewRenderer()
	out, err := render("**Rest** and drink fluids")
	require.NoError(t, err)
	assert.Contains(t, out, "Rest")
	assert.Contains(t, out, "fluids")
}
