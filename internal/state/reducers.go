package state

import (
	"time"
)

// Delta is the partial update a graph node returns. Nil fields leave the
// conversation untouched. Messages is the only additive field; everything
// else replaces the previous value wholesale.
type Delta struct {
	Messages      []Message      `json:"messages,omitempty"`
	Summary       *string        `json:"summary,omitempty"`
	Goal          *string        `json:"goal,omitempty"`
	OpenQuestions *[]string      `json:"open_questions,omitempty"`
	Evidence      *[]EvidenceRef `json:"evidence,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	LoopCount     *int           `json:"loop_count,omitempty"`
}

// reducer merges one field of a delta into the conversation.
type reducer struct {
	field string
	apply func(c *Conversation, d Delta)
}

// reducers is the per-field merge table. Order is fixed so Apply is
// deterministic; messages append, all other fields are last-write-wins.
var reducers = []reducer{
	{"messages", func(c *Conversation, d Delta) {
		c.Messages = append(c.Messages, d.Messages...)
	}},
	{"summary", func(c *Conversation, d Delta) {
		if d.Summary != nil {
			c.Summary = *d.Summary
		}
	}},
	{"goal", func(c *Conversation, d Delta) {
		if d.Goal != nil {
			c.Goal = *d.Goal
		}
	}},
	{"open_questions", func(c *Conversation, d Delta) {
		if d.OpenQuestions != nil {
			c.OpenQuestions = *d.OpenQuestions
		}
	}},
	{"evidence", func(c *Conversation, d Delta) {
		if d.Evidence != nil {
			c.Evidence = *d.Evidence
		}
	}},
	{"confidence", func(c *Conversation, d Delta) {
		if d.Confidence != nil {
			c.Confidence = *d.Confidence
		}
	}},
	{"loop_count", func(c *Conversation, d Delta) {
		if d.LoopCount != nil {
			c.LoopCount = *d.LoopCount
		}
	}},
}

// Apply merges a delta into the conversation using the reducer table.
func (c *Conversation) Apply(d Delta) {
	for _, r := range reducers {
		r.apply(c, d)
	}
	c.UpdatedAt = time.Now()
}

// Helpers for building deltas without pointer noise at call sites.

func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }

func IntPtr(i int) *int { return &i }

func QuestionsPtr(q []string) *[]string { return &q }

func EvidencePtr(e []EvidenceRef) *[]EvidenceRef { return &e }
