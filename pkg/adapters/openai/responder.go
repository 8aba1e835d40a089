// Package openai implements the Responder port with the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/triage/pkg/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Responder asks a chat model for the next reply of a conversation.
type Responder struct {
	client *openai.Client
	model  string
	system string
	tools  []domain.Tool
}

// Option configures a Responder.
type Option func(*Responder)

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(r *Responder) {
		if model != "" {
			r.model = model
		}
	}
}

// WithSystemPrompt sets the instruction sent before the conversation.
func WithSystemPrompt(prompt string) Option {
	return func(r *Responder) { r.system = prompt }
}

// WithTools advertises tools the model may call.
func WithTools(tools ...domain.Tool) Option {
	return func(r *Responder) { r.tools = append([]domain.Tool(nil), tools...) }
}

// New creates a responder. Request options (API key, base URL, retries) are passed to
// the SDK client.
func New(reqOpts []option.RequestOption, opts ...Option) *Responder {
	client := openai.NewClient(reqOpts...)
	r := &Responder{client: &client, model: DefaultModel}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewWithKey is a shorthand for New with an API key.
func NewWithKey(apiKey string, opts ...Option) *Responder {
	return New([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
}

// Respond implements ports.Responder.
func (r *Responder) Respond(ctx context.Context, state *domain.State) (domain.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    r.model,
		Messages: convertMessages(r.system, state.Messages),
	}
	if len(r.tools) > 0 {
		params.Tools = convertTools(r.tools)
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.Message{}, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return domain.Message{}, errors.New("openai: empty response")
	}

	msg := resp.Choices[0].Message
	calls := make([]domain.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return domain.AssistantMessage("", msg.Content, calls...), nil
}

// convertMessages maps the conversation to chat messages. The API rejects tool results
// without the assistant message that requested them and tool requests without results,
// so unmatched ones are rewritten as plain text.
func convertMessages(system string, msgs []domain.Message) []openai.ChatCompletionMessageParamUnion {
	answered := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == domain.RoleTool && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	var result []openai.ChatCompletionMessageParamUnion
	if system != "" {
		result = append(result, openai.SystemMessage(system))
	}

	requested := make(map[string]bool)
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleHuman:
			if m.Content != "" {
				result = append(result, openai.UserMessage(m.Content))
			}
		case domain.RoleSystem:
			if m.Content != "" {
				result = append(result, openai.SystemMessage(m.Content))
			}
		case domain.RoleAssistant:
			var toolCalls []openai.ChatCompletionMessageToolCallParam
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					continue
				}
				requested[tc.ID] = true
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			if len(toolCalls) == 0 && m.Content == "" {
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if m.Name != "" {
				assistant.Name = openai.String(m.Name)
			}
			if m.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case domain.RoleTool:
			if requested[m.ToolCallID] {
				result = append(result, openai.ToolMessage(m.Content, m.ToolCallID))
				continue
			}
			result = append(result, openai.AssistantMessage(fmt.Sprintf("[%s result] %s", m.Name, m.Content)))
		}
	}
	return result
}

func convertTools(tools []domain.Tool) []openai.ChatCompletionToolParam {
	result := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		result[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		}
	}
	return result
}

// Error reports a failed API call with its HTTP status.
type Error struct {
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("openai: status %d: %v", e.StatusCode, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed later.
func (e *Error) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

func wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.StatusCode, Err: err}
	}
	return fmt.Errorf("openai: %w", err)
}
