package state

import (
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleSummary   Role = "summary" // synthetic marker emitted by the history compressor
)

// Message is a single role-tagged turn in the conversation history.
type Message struct {
	ID        string                 `json:"id"`
	Role      Role                   `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Conversation holds the full per-thread state that flows through the graph.
// Messages accumulate additively; every other field has last-write-wins
// replace semantics (see Apply).
type Conversation struct {
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`

	// Rolling summary of compressed-away history.
	Summary string `json:"summary"`

	// Research episode fields. Goal and OpenQuestions are set by the
	// planner; OpenQuestions is replaced by the judge on every pass.
	Goal          string   `json:"goal"`
	OpenQuestions []string `json:"open_questions"`

	// Evidence is recomputed in full on every fusion pass.
	Evidence []EvidenceRef `json:"evidence"`

	// Confidence in [0,1] from the last judge pass.
	Confidence float64 `json:"confidence"`

	// LoopCount advances exactly once per judge invocation and never
	// decreases within an episode.
	LoopCount int `json:"loop_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// EvidenceRef mirrors evidence.Evidence for persistence. It is kept as a
// separate struct so the state package does not depend on the evidence
// package (which imports state for deltas in the agent layer).
type EvidenceRef struct {
	Source    string                 `json:"source"`
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Text      string                 `json:"text"`
	Relevance float64                `json:"relevance"`
	Meta      map[string]interface{} `json:"meta"`
}

// New returns an empty conversation for a thread.
func New(threadID string) *Conversation {
	return &Conversation{
		ThreadID:      threadID,
		Messages:      make([]Message, 0),
		OpenQuestions: make([]string, 0),
		Evidence:      make([]EvidenceRef, 0),
	}
}

// LastUserMessage returns the most recent user turn, or false when the
// history contains no user turn at all (e.g. only system messages).
func (c *Conversation) LastUserMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}
