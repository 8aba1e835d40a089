package domain

// Inbound is a chat message received from a queue or the HTTP surface.
type Inbound struct {
	SessionID string            `json:"session_id,omitempty" mapstructure:"session_id"`
	UserID    string            `json:"user_id,omitempty" mapstructure:"user_id"`
	Message   string            `json:"message" mapstructure:"message"`
	Metadata  map[string]string `json:"metadata,omitempty" mapstructure:"metadata"`
}

// Key returns the id used to look up conversation memory.
// Producers that only know the user get one conversation per user.
func (in Inbound) Key() string {
	if in.SessionID != "" {
		return in.SessionID
	}
	return in.UserID
}

// SensitiveNotice is shown to users when a conversation ends on sensitive language.
const SensitiveNotice = "If you are in danger or thinking about harming yourself, please contact local emergency services or a crisis line right away."

// NoticeFor returns the notice every surface must show for decision d, if any.
func NoticeFor(d Decision) string {
	if d.Kind == DecisionTerminateSensitive {
		return SensitiveNotice
	}
	return ""
}

// Outcome is the result of handling one inbound message.
type Outcome struct {
	SessionID string   `json:"session_id"`
	Reply     string   `json:"response"`
	Sender    string   `json:"sender"`
	Decision  Decision `json:"decision"`
	Steps     int      `json:"steps"`
	Path      []string `json:"path"`
	Notice    string   `json:"notice,omitempty"`

	// NewMessages are the messages the run contributed after the human message.
	NewMessages []Message `json:"-"`
}
