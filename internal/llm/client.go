// Package llm is the boundary to the local language model service
// (an OpenAI-compatible endpoint, e.g. LM Studio or vLLM).
package llm

import (
	"context"
)

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response carries the generated text and token accounting.
type Response struct {
	Content    string
	TokensUsed int
}

// Client is implemented by language model backends. Purpose labels the
// call site (router-chat, compressor, judge, answer, synthesis) for
// metrics; it never changes the request semantics.
type Client interface {
	Invoke(ctx context.Context, purpose string, messages []Message) (Response, error)
	Stream(ctx context.Context, purpose string, messages []Message, onDelta func(delta string) error) (Response, error)
}

// System builds a system turn.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user turn.
func User(content string) Message { return Message{Role: "user", Content: content} }

// Assistant builds an assistant turn.
func Assistant(content string) Message { return Message{Role: "assistant", Content: content} }
