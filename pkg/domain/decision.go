package domain

// DecisionKind is the router's verdict for the latest message.
type DecisionKind string

const (
	DecisionContinue           DecisionKind = "continue"
	DecisionTerminate          DecisionKind = "terminate"
	// DecisionTerminateSensitive ends the run because sensitive language was detected.
	// It is kept apart from DecisionTerminate so callers can react differently.
	DecisionTerminateSensitive DecisionKind = "terminate_sensitive"
	DecisionEscalate           DecisionKind = "escalate"
)

// Edge labels emitted by the standard decisions. Escalations use their target as label.
const (
	LabelContinue  = "continue"
	LabelEnd       = "__end__"
	LabelSensitive = "sensitive"
)

// Decision is what the router returns. Target is only set for escalations.
type Decision struct {
	Kind   DecisionKind `json:"kind"`
	Target string       `json:"target,omitempty"`
}

func Continue() Decision           { return Decision{Kind: DecisionContinue} }
func Terminate() Decision          { return Decision{Kind: DecisionTerminate} }
func TerminateSensitive() Decision { return Decision{Kind: DecisionTerminateSensitive} }

// Escalate routes the conversation to a more specialized handler.
func Escalate(target string) Decision {
	return Decision{Kind: DecisionEscalate, Target: target}
}

// Label is the key used to look the decision up in a node's edge map.
func (d Decision) Label() string {
	switch d.Kind {
	case DecisionTerminate:
		return LabelEnd
	case DecisionTerminateSensitive:
		return LabelSensitive
	case DecisionEscalate:
		return d.Target
	default:
		return LabelContinue
	}
}

func (d Decision) String() string {
	if d.Kind == DecisionEscalate {
		return string(d.Kind) + "(" + d.Target + ")"
	}
	return string(d.Kind)
}
