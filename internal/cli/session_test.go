package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/triage/internal/config"
	"github.com/aretw0/triage/internal/logging"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunChat(t *testing.T) {
	app, err := Build(config.Default(), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	var out bytes.Buffer
	err = RunChat(context.Background(), app.Engine, ChatOptions{
		SessionID: "chat-1",
		In:        strings.NewReader("fever, \n\nI feel sad\nexit\nignored\n"),
		Out:       &out,
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Session 'chat-1' active.")
	assert.Contains(t, text, "[internal_specialist] FINAL ANSWER")
	assert.Contains(t, text, "[psychologist]")
	assert.Contains(t, text, "Bye!")
	assert.NotContains(t, text, "ignored")

	sess, err := app.Engine.Session(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "fever,", sess.Messages[0].Content)
}

func TestRunChat_ResetAndEOF(t *testing.T) {
	app, err := Build(config.Default(), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	var out bytes.Buffer
	err = RunChat(context.Background(), app.Engine, ChatOptions{
		SessionID: "chat-2",
		In:        strings.NewReader("cough\n/reset\n"),
		Out:       &out,
		Quiet:     true,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Session 'chat-2' cleared.")

	_, err = app.Engine.Session(context.Background(), "chat-2")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRunChat_SensitiveNotice(t *testing.T) {
	app, err := Build(config.Default(), logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	var out bytes.Buffer
	err = RunChat(context.Background(), app.Engine, ChatOptions{
		In:    strings.NewReader("I think about suicide\n"),
		Out:   &out,
		Quiet: true,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "crisis line")
}
