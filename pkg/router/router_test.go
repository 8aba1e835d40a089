package router_test

import (
	"testing"

	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/router"
	"github.com/stretchr/testify/assert"
)

func stateWith(msg domain.Message) *domain.State {
	s := domain.NewState("s1", domain.HumanMessage("hi"))
	s.Append(msg.Name, msg)
	return s
}

func TestKeyword_Decide(t *testing.T) {
	r := router.New()
	search := domain.ToolCall{ID: "c1", Name: "search", Arguments: `{"query":"x"}`}

	tests := []struct {
		name string
		msg  domain.Message
		want domain.Decision
	}{
		{"emotional wins over final marker", domain.AssistantMessage("GP", "I feel so SAD. FINAL ANSWER"), domain.Escalate("psychologist")},
		{"emotional wins over tool calls", domain.AssistantMessage("GP", "you seem anxious", search), domain.Escalate("psychologist")},
		{"tool calls win over final marker", domain.AssistantMessage("GP", "FINAL ANSWER", search), domain.Continue()},
		{"final marker", domain.AssistantMessage("GP", "Rest well. FINAL ANSWER"), domain.Terminate()},
		{"final marker wins over sensitive", domain.AssistantMessage("GP", "not dead tissue. FINAL ANSWER"), domain.Terminate()},
		{"sensitive", domain.AssistantMessage("GP", "thoughts of Suicide"), domain.TerminateSensitive()},
		{"default", domain.AssistantMessage("GP", "tell me more"), domain.Continue()},
		{"marker is case sensitive", domain.AssistantMessage("GP", "final answer"), domain.Continue()},
		{"emotional substring", domain.AssistantMessage("GP", "lots of stressful work"), domain.Escalate("psychologist")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Decide(stateWith(tt.msg)))
		})
	}
}

func TestKeyword_EmptyState(t *testing.T) {
	r := router.New()
	assert.Equal(t, domain.Continue(), r.Decide(domain.NewState("s1")))
	assert.Equal(t, domain.Continue(), r.Decide(nil))
}

func TestKeyword_Options(t *testing.T) {
	r := router.New(
		router.WithEmotionalWords("Lonely"),
		router.WithSensitiveWords("harm"),
		router.WithFinalMarker("DONE"),
		router.WithEscalationTarget("counselor"),
	)

	assert.Equal(t, domain.Escalate("counselor"), r.Decide(stateWith(domain.AssistantMessage("GP", "feeling lonely"))))
	assert.Equal(t, domain.Continue(), r.Decide(stateWith(domain.AssistantMessage("GP", "I am sad"))))
	assert.Equal(t, domain.Terminate(), r.Decide(stateWith(domain.AssistantMessage("GP", "DONE"))))
	assert.Equal(t, domain.TerminateSensitive(), r.Decide(stateWith(domain.AssistantMessage("GP", "self harm"))))
	assert.Equal(t, []string{"continue", "__end__", "sensitive", "counselor"}, r.Labels())
}
