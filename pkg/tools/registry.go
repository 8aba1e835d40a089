// Package tools provides the tools handlers can call: web search and a calculator.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/triage/pkg/domain"
)

// Tool is a named function with a JSON Schema description of its arguments.
type Tool interface {
	Spec() domain.Tool
	Call(ctx context.Context, args map[string]any) (string, error)
}

// Registry implements ports.ToolInvoker over a set of tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Spec().Name] = t
}

// Invoke runs the named tool.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}
	return t.Call(ctx, args)
}

// Names lists registered tools in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns tool descriptions in name order, ready to advertise to a model.
func (r *Registry) Specs() []domain.Tool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]domain.Tool, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// stringArg reads a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}
