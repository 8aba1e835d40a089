package domain

import "time"

// State is the conversation handed from node to node during one workflow run.
// Messages are append-only: nodes contribute new messages, never replace old ones.
type State struct {
	SessionID string    `json:"session_id,omitempty"`
	Messages  []Message `json:"messages"`

	// Sender is the name of whoever produced the latest batch of messages.
	Sender string `json:"sender,omitempty"`
}

// NewState creates a state seeded with prior history.
func NewState(sessionID string, history ...Message) *State {
	msgs := make([]Message, len(history))
	copy(msgs, history)
	return &State{SessionID: sessionID, Messages: msgs}
}

// Append adds messages to the conversation and records their producer.
func (s *State) Append(sender string, msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
	s.Sender = sender
}

// Last returns the most recent message.
func (s *State) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Snapshot returns a copy whose message slice can be appended to independently.
func (s *State) Snapshot() *State {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}

// Session is the retained conversation memory for one session id.
type Session struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, Messages: []Message{}, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep enough copy for stores that must not share slices with callers.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	copy(cp.Messages, s.Messages)
	return &cp
}
