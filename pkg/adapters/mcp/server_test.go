package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/triage"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	out *domain.Outcome
	err error
	in  domain.Inbound
}

func (e *stubEngine) Handle(_ context.Context, in domain.Inbound) (*domain.Outcome, error) {
	e.in = in
	return e.out, e.err
}

func (e *stubEngine) Inspect() domain.GraphDescription {
	return domain.GraphDescription{Start: "GP", Nodes: []domain.NodeInfo{{Name: "GP"}}}
}

type stubSessions struct{}

func (stubSessions) Session(_ context.Context, id string) (*domain.Session, error) {
	if id != "s1" {
		return nil, domain.ErrSessionNotFound
	}
	sess := domain.NewSession(id)
	sess.Messages = append(sess.Messages, domain.HumanMessage("hello"))
	return sess, nil
}

func (stubSessions) DeleteSession(context.Context, string) error { return nil }

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestConsult(t *testing.T) {
	eng := &stubEngine{out: &domain.Outcome{
		SessionID: "s1",
		Reply:     "I hear you.",
		Sender:    "psychologist",
		Decision:  domain.Escalate("psychologist"),
		Path:      []string{"GP", "psychologist"},
	}}
	s := NewServer(eng)

	resp, err := s.handleConsult(context.Background(), mcp.CallToolRequest{}, ConsultArgs{SessionID: "s1", Message: "I am sad"})
	require.NoError(t, err)

	assert.Equal(t, "I am sad", eng.in.Message)
	assert.Equal(t, "psychologist", resp.Sender)
	assert.Equal(t, "escalate(psychologist)", resp.Decision)
	assert.Empty(t, resp.Notice)
}

func TestConsult_Sensitive(t *testing.T) {
	eng := &stubEngine{out: &domain.Outcome{SessionID: "s1", Decision: domain.TerminateSensitive(), Notice: domain.SensitiveNotice}}
	s := NewServer(eng)

	resp, err := s.handleConsult(context.Background(), mcp.CallToolRequest{}, ConsultArgs{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, triage.SensitiveNotice, resp.Notice)
}

func TestConsult_Error(t *testing.T) {
	s := NewServer(&stubEngine{err: domain.ErrEmptyMessage})

	_, err := s.handleConsult(context.Background(), mcp.CallToolRequest{}, ConsultArgs{})
	assert.True(t, errors.Is(err, domain.ErrEmptyMessage))
}

func TestGetGraph(t *testing.T) {
	s := NewServer(&stubEngine{})

	res, err := s.handleGetGraph(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), `"start":"GP"`)

	res, err = s.handleGetGraph(context.Background(), callRequest(map[string]any{"format": "mermaid"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "graph TD")
}

func TestGetSession(t *testing.T) {
	s := NewServer(&stubEngine{}, WithSessions(stubSessions{}))

	res, err := s.handleGetSession(context.Background(), callRequest(map[string]any{"session_id": "s1"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "hello")

	res, err = s.handleGetSession(context.Background(), callRequest(map[string]any{"session_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGetSession(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
