package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who produced a message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// SenderUser is recorded as the state's sender when the latest message came from the user.
const SenderUser = "user"

// Message is a single conversation entry. Values are treated as immutable once created:
// constructors copy the slices they receive.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`

	// Name is the node that produced the message (assistant) or the tool that was run (tool).
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// ToolCalls are the invocations requested by an assistant reply.
	ToolCalls []ToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`

	// ToolCallID links a tool result back to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`

	// IsError marks a tool result that carries a fallback text instead of a real result.
	IsError bool `json:"is_error,omitempty" yaml:"is_error,omitempty"`
}

// HumanMessage creates a message authored by the end user.
func HumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

// SystemMessage creates a system instruction.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// AssistantMessage creates a reply produced by the named node.
func AssistantMessage(name, content string, calls ...ToolCall) Message {
	m := Message{Role: RoleAssistant, Name: name, Content: content}
	if len(calls) > 0 {
		m.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return m
}

// ToolMessage wraps the result of a tool invocation.
func ToolMessage(callID, toolName, content string) Message {
	return Message{Role: RoleTool, Name: toolName, Content: content, ToolCallID: callID}
}

// ToolErrorMessage wraps a fallback text for a tool invocation that failed.
func ToolErrorMessage(callID, toolName, content string) Message {
	m := ToolMessage(callID, toolName, content)
	m.IsError = true
	return m
}

// HasToolCalls reports whether the message requests at least one tool invocation.
// It is defined for every message: only assistant messages can carry calls.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// WithName returns a copy of the message attributed to another producer.
func (m Message) WithName(name string) Message {
	out := m
	out.Name = name
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	return out
}

// ToolCall is a single invocation requested by a responder.
type ToolCall struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	// Arguments holds the serialized JSON object produced by the responder.
	Arguments string `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// ParseArguments decodes the serialized arguments into a map.
// Empty arguments decode to an empty map; anything that is not a JSON object is an error.
func (c ToolCall) ParseArguments() (map[string]any, error) {
	raw := strings.TrimSpace(c.Arguments)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("malformed arguments for tool %q: %w", c.Name, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
