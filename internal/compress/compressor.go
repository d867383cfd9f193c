// Package compress keeps conversation history bounded by folding older
// turns into a rolling summary while preserving the recent window.
package compress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/metrics"
	"github.com/ikaris-ai/ikaris/internal/state"
)

const (
	// MaxMessages is the history length that triggers compression.
	MaxMessages = 20
	// KeepRecent is the number of trailing turns kept verbatim.
	KeepRecent = 6
)

// Compressor produces rolling summaries via the language model.
type Compressor struct {
	llm    llm.Client
	logger *zap.Logger
}

// New creates a compressor.
func New(client llm.Client, logger *zap.Logger) *Compressor {
	return &Compressor{llm: client, logger: logger}
}

// Result is what one compression pass yields. When Compressed is false
// the history was under the threshold and Delta is empty. When true,
// Delta holds the replacement window to prepend to the message reducer:
// one synthetic summary marker turn followed by the recent messages.
// Callers must never re-emit the already-stored older turns.
type Result struct {
	Compressed bool
	Summary    string
	Delta      []state.Message
}

// Compress inspects the history and, when it exceeds MaxMessages,
// summarizes everything but the last KeepRecent turns. Errors from the
// model propagate untouched; the caller's state stays unmodified, and
// the length test makes a retry on the next turn safe.
func (c *Compressor) Compress(ctx context.Context, messages []state.Message, priorSummary string) (Result, error) {
	if len(messages) <= MaxMessages {
		metrics.CompressionEvents.WithLabelValues("skipped").Inc()
		return Result{Compressed: false, Summary: priorSummary}, nil
	}

	older := messages[:len(messages)-KeepRecent]
	recent := messages[len(messages)-KeepRecent:]

	var transcript strings.Builder
	for _, msg := range older {
		role := "Ikaris"
		if msg.Role == state.RoleUser {
			role = "User"
		}
		fmt.Fprintf(&transcript, "%s: %s\n", role, msg.Content)
	}

	prev := ""
	if priorSummary != "" {
		prev = fmt.Sprintf("Previous summary:\n%s\n\n", priorSummary)
	}
	prompt := fmt.Sprintf(
		"%sConversation to summarize:\n%s\n"+
			"Provide a concise but comprehensive summary of the above conversation. "+
			"Capture key topics discussed, decisions made, and any important context. "+
			"Keep it under 200 words.",
		prev, transcript.String(),
	)

	resp, err := c.llm.Invoke(ctx, "compressor", []llm.Message{
		llm.System("You are a conversation summarizer. Be concise and factual."),
		llm.User(prompt),
	})
	if err != nil {
		metrics.CompressionEvents.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("summarize history: %w", err)
	}

	summary := strings.TrimSpace(resp.Content)
	c.logger.Info("Compressed conversation history",
		zap.Int("older", len(older)),
		zap.Int("recent", len(recent)),
		zap.Int("summary_chars", len(summary)),
	)
	metrics.CompressionEvents.WithLabelValues("compressed").Inc()

	delta := make([]state.Message, 0, 1+len(recent))
	delta = append(delta, state.Message{
		Role:      state.RoleSummary,
		Content:   summary,
		Timestamp: time.Now(),
	})
	delta = append(delta, recent...)

	return Result{Compressed: true, Summary: summary, Delta: delta}, nil
}
