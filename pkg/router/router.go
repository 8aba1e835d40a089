// Package router implements the keyword router that decides, after each node,
// whether a conversation continues, escalates or ends.
package router

import (
	"strings"

	"github.com/aretw0/triage/pkg/domain"
)

// Defaults used when no option overrides them.
var (
	DefaultEmotionalWords = []string{"sad", "depressed", "anxious", "stress", "unhappy"}
	DefaultSensitiveWords = []string{"dead", "suicide"}
)

const (
	DefaultFinalMarker      = "FINAL ANSWER"
	DefaultEscalationTarget = "psychologist"
)

// Keyword routes on the content of the latest message. Rules are checked in a fixed
// order and the first match wins:
//
//  1. an emotional keyword escalates to the escalation target
//  2. pending tool calls continue
//  3. the final marker terminates
//  4. a sensitive keyword terminates with DecisionTerminateSensitive
//  5. anything else continues
//
// Keyword matches are case-insensitive substrings; the final marker is matched literally.
type Keyword struct {
	emotional []string
	sensitive []string
	marker    string
	target    string
}

// Option configures a Keyword router.
type Option func(*Keyword)

// WithEmotionalWords replaces the escalation keywords.
func WithEmotionalWords(words ...string) Option {
	return func(k *Keyword) { k.emotional = lowerAll(words) }
}

// WithSensitiveWords replaces the sensitive keywords.
func WithSensitiveWords(words ...string) Option {
	return func(k *Keyword) { k.sensitive = lowerAll(words) }
}

// WithFinalMarker replaces the completion marker.
func WithFinalMarker(marker string) Option {
	return func(k *Keyword) {
		if marker != "" {
			k.marker = marker
		}
	}
}

// WithEscalationTarget sets the node emotional messages escalate to.
func WithEscalationTarget(target string) Option {
	return func(k *Keyword) {
		if target != "" {
			k.target = target
		}
	}
}

// New creates a keyword router.
func New(opts ...Option) *Keyword {
	k := &Keyword{
		emotional: lowerAll(DefaultEmotionalWords),
		sensitive: lowerAll(DefaultSensitiveWords),
		marker:    DefaultFinalMarker,
		target:    DefaultEscalationTarget,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Decide inspects the latest message of the state.
func (k *Keyword) Decide(state *domain.State) domain.Decision {
	if state == nil {
		return domain.Continue()
	}
	last, ok := state.Last()
	if !ok {
		return domain.Continue()
	}
	lower := strings.ToLower(last.Content)

	if containsAny(lower, k.emotional) {
		return domain.Escalate(k.target)
	}
	if last.HasToolCalls() {
		return domain.Continue()
	}
	if strings.Contains(last.Content, k.marker) {
		return domain.Terminate()
	}
	if containsAny(lower, k.sensitive) {
		return domain.TerminateSensitive()
	}
	return domain.Continue()
}

// Labels lists every edge label Decide can produce.
func (k *Keyword) Labels() []string {
	return []string{domain.LabelContinue, domain.LabelEnd, domain.LabelSensitive, k.target}
}

// EscalationTarget returns the node emotional messages escalate to.
func (k *Keyword) EscalationTarget() string { return k.target }

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}
