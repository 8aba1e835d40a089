package triage_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/triage"
	"github.com/aretw0/triage/pkg/adapters/memory"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/graph"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted returns a factory handing each node its own canned replies.
func scripted(replies map[string][]string) (triage.ResponderFactory, map[string]*memory.ScriptedResponder) {
	made := make(map[string]*memory.ScriptedResponder)
	factory := func(node, _ string, _ []domain.Tool) ports.Responder {
		var msgs []domain.Message
		for _, r := range replies[node] {
			msgs = append(msgs, domain.AssistantMessage("", r))
		}
		if len(msgs) == 0 {
			msgs = append(msgs, domain.AssistantMessage("", "FINAL ANSWER from "+node))
		}
		made[node] = memory.NewScriptedResponder(msgs...)
		return made[node]
	}
	return factory, made
}

func newEngine(t *testing.T, replies map[string][]string, opts ...triage.Option) (*triage.Engine, map[string]*memory.ScriptedResponder) {
	t.Helper()
	factory, made := scripted(replies)
	g, err := triage.NewClinicGraph(triage.ClinicConfig{Responder: factory})
	require.NoError(t, err)
	return triage.New(g, opts...), made
}

func TestHandle_TerminatesAtGP(t *testing.T) {
	eng, made := newEngine(t, map[string][]string{
		triage.NodeGP: {"FINAL ANSWER rest and fluids"},
	})

	out, err := eng.Handle(context.Background(), domain.Inbound{SessionID: "s1", Message: "fever, "})
	require.NoError(t, err)

	assert.Equal(t, triage.NodeGP, out.Sender)
	assert.Equal(t, 1, out.Steps)
	assert.Equal(t, domain.DecisionTerminate, out.Decision.Kind)
	assert.Equal(t, "FINAL ANSWER rest and fluids", out.Reply)
	assert.Equal(t, []string{triage.NodeGP}, out.Path)
	assert.Equal(t, 0, made[triage.NodeSpecialist].Calls())
}

func TestHandle_ContinuesToSpecialist(t *testing.T) {
	eng, _ := newEngine(t, map[string][]string{
		triage.NodeGP:         {"Patient reports a fever for three days."},
		triage.NodeSpecialist: {"FINAL ANSWER likely viral infection"},
	})

	out, err := eng.Handle(context.Background(), domain.Inbound{SessionID: "s1", Message: "I have a fever"})
	require.NoError(t, err)

	assert.Equal(t, triage.NodeSpecialist, out.Sender)
	assert.Equal(t, []string{triage.NodeGP, triage.NodeSpecialist}, out.Path)
	assert.Equal(t, "FINAL ANSWER likely viral infection", out.Reply)
	require.Len(t, out.NewMessages, 2)
	assert.Equal(t, triage.NodeGP, out.NewMessages[0].Name)
}

func TestHandle_EscalatesToPsychologist(t *testing.T) {
	eng, made := newEngine(t, map[string][]string{
		triage.NodeGP:           {"The patient sounds sad and tired."},
		triage.NodePsychologist: {"I hear you. It is okay to feel this way."},
	})

	out, err := eng.Handle(context.Background(), domain.Inbound{SessionID: "s1", Message: "I feel low"})
	require.NoError(t, err)

	assert.Equal(t, triage.NodePsychologist, out.Sender)
	assert.Equal(t, []string{triage.NodeGP, triage.NodePsychologist}, out.Path)
	assert.Equal(t, 0, made[triage.NodeSpecialist].Calls())
}

func TestHandle_SensitiveTermination(t *testing.T) {
	eng, _ := newEngine(t, map[string][]string{
		triage.NodeGP: {"The patient mentions suicide."},
	})

	out, err := eng.Handle(context.Background(), domain.Inbound{SessionID: "s1", Message: "help"})
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionTerminateSensitive, out.Decision.Kind)
	assert.Equal(t, triage.SensitiveNotice, out.Notice)
	assert.Equal(t, 1, out.Steps)
}

func TestHandle_PersistsHistory(t *testing.T) {
	store := memory.NewStore()
	eng, _ := newEngine(t, map[string][]string{
		triage.NodeGP: {"FINAL ANSWER noted"},
	}, triage.WithSessionStore(store))
	ctx := context.Background()

	_, err := eng.Handle(ctx, domain.Inbound{UserID: "u1", Message: "first"})
	require.NoError(t, err)
	_, err = eng.Handle(ctx, domain.Inbound{UserID: "u1", Message: "second"})
	require.NoError(t, err)

	sess, err := eng.Session(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 4)
	assert.Equal(t, "first", sess.Messages[0].Content)
	assert.Equal(t, "second", sess.Messages[2].Content)

	ids, err := eng.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	require.NoError(t, eng.DeleteSession(ctx, "u1"))
	_, err = eng.Session(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestHandle_HistoryLimit(t *testing.T) {
	eng, _ := newEngine(t, map[string][]string{
		triage.NodeGP: {"FINAL ANSWER ok"},
	}, triage.WithHistoryLimit(3))
	ctx := context.Background()

	for _, m := range []string{"one", "two", "three"} {
		_, err := eng.Handle(ctx, domain.Inbound{SessionID: "s", Message: m})
		require.NoError(t, err)
	}

	sess, err := eng.Session(ctx, "s")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, "three", sess.Messages[1].Content)
}

func TestHandle_GeneratesSessionID(t *testing.T) {
	eng, _ := newEngine(t, nil)

	out, err := eng.Handle(context.Background(), domain.Inbound{Message: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.SessionID)
}

func TestHandle_EmptyMessage(t *testing.T) {
	eng, _ := newEngine(t, nil)

	_, err := eng.Handle(context.Background(), domain.Inbound{SessionID: "s", Message: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
}

func TestHandle_StepLimitLeavesSessionUntouched(t *testing.T) {
	factory, _ := scripted(map[string][]string{
		triage.NodeGP:         {"still thinking"},
		triage.NodeSpecialist: {"still thinking"},
	})
	g, err := triage.NewClinicGraph(triage.ClinicConfig{Responder: factory})
	require.NoError(t, err)
	eng := triage.New(g, triage.WithRunOptions(graph.WithMaxSteps(1)))
	ctx := context.Background()

	_, err = eng.Handle(ctx, domain.Inbound{SessionID: "s", Message: "hi"})
	require.Error(t, err)

	var limit *domain.StepLimitError
	require.True(t, errors.As(err, &limit))
	assert.Equal(t, 1, limit.Limit)

	_, err = eng.Session(ctx, "s")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestInspect(t *testing.T) {
	eng, _ := newEngine(t, nil)

	desc := eng.Inspect()
	assert.Equal(t, triage.NodeGP, desc.Start)
	require.Len(t, desc.Nodes, 3)
	assert.Contains(t, desc.Edges, domain.Edge{From: triage.NodeGP, Label: domain.LabelContinue, To: triage.NodeSpecialist})
	assert.Contains(t, desc.Edges, domain.Edge{From: triage.NodeSpecialist, Label: "psychologist", To: triage.NodePsychologist})
}

func TestSystemPrompt(t *testing.T) {
	p := triage.SystemPrompt(triage.NodeGP, []string{"calculator", "search"})
	assert.Contains(t, p, "calculator, search")
	assert.True(t, strings.HasSuffix(p, triage.Roles[triage.NodeGP]))

	assert.Contains(t, triage.SystemPrompt(triage.NodePsychologist, nil), "tools: none.")
}

func TestNewClinicGraph_RequiresResponder(t *testing.T) {
	_, err := triage.NewClinicGraph(triage.ClinicConfig{})
	assert.Error(t, err)
}
