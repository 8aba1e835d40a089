package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidGraph is returned when a workflow graph fails structural validation.
var ErrInvalidGraph = errors.New("invalid workflow graph")

// ErrStepLimitExceeded is returned when a run does not reach the terminal within its step budget.
var ErrStepLimitExceeded = errors.New("step limit exceeded")

// ErrToolInvocation is returned when a tool call cannot be parsed or executed.
var ErrToolInvocation = errors.New("tool invocation failed")

// ErrUnknownTool is returned by tool invokers for names they do not serve.
var ErrUnknownTool = errors.New("unknown tool")

// ErrBrokerConnection is returned when the message broker cannot be reached.
var ErrBrokerConnection = errors.New("broker connection failed")

// ErrEmptyMessage is returned when an inbound message carries no text.
var ErrEmptyMessage = errors.New("empty message")

// ErrQueueClosed is returned by brokers after Close.
var ErrQueueClosed = errors.New("queue closed")

// InvalidGraphError lists every structural problem found while compiling a graph.
type InvalidGraphError struct {
	Problems []string
}

func (e *InvalidGraphError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidGraph, strings.Join(e.Problems, "; "))
}

func (e *InvalidGraphError) Unwrap() error { return ErrInvalidGraph }

// StepLimitError reports a run aborted after Limit node invocations.
type StepLimitError struct {
	Limit int
	// Node is the node that would have run next.
	Node string
	Path []string
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("%s: %d steps without reaching the end (next node %q, path %s)",
		ErrStepLimitExceeded, e.Limit, e.Node, strings.Join(e.Path, " -> "))
}

func (e *StepLimitError) Unwrap() error { return ErrStepLimitExceeded }

// ToolInvocationError wraps the failure of a single tool call.
type ToolInvocationError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %q (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolInvocationError) Unwrap() []error { return []error{ErrToolInvocation, e.Err} }

// BrokerConnectionError wraps a failure to reach or use the message broker.
type BrokerConnectionError struct {
	Broker string
	Err    error
}

func (e *BrokerConnectionError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrBrokerConnection, e.Broker, e.Err)
}

func (e *BrokerConnectionError) Unwrap() []error { return []error{ErrBrokerConnection, e.Err} }

// NodeError attributes a failure to the node that produced it.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// IsPermanent reports whether retrying the same input can never succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrStepLimitExceeded) ||
		errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrInvalidGraph)
}
