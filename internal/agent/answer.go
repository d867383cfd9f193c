package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/state"
)

// AnswerNode renders the fused evidence into a grounded final answer
// with per-item ordinal citations, then logs a one-line research note
// to the journal as a side effect.
type AnswerNode struct{}

func (AnswerNode) Name() string { return "answer" }

func (AnswerNode) Execute(ctx context.Context, conv *state.Conversation, deps Deps) (state.Delta, error) {
	items := evidence.FromRefs(conv.Evidence)
	if len(items) == 0 {
		return state.Delta{Messages: []state.Message{
			assistantMessage("I couldn't find anything relevant to your question in my sources."),
		}}, nil
	}

	var block strings.Builder
	for i, ev := range items {
		text := truncate(ev.Text, 1200)
		anchors := ev.Anchors()
		if anchors != "" {
			anchors = " (" + anchors + ")"
		}
		fmt.Fprintf(&block, "[Item %d] [%s]%s %s\n", i+1, strings.ToUpper(ev.Source), anchors, text)
	}

	prompt := fmt.Sprintf(
		"You are Ikaris, a highly technical research assistant.\n\n"+
			"GOAL: %s\n\n"+
			"EVIDENCE:\n%s\n"+
			"Answer the goal strictly from the evidence above. Cite evidence inline "+
			"using its [Item N] tag. If the evidence is insufficient on some point, say so.",
		conv.Goal, block.String(),
	)

	resp, err := invokeMaybeStreaming(ctx, deps, "answer", []llm.Message{llm.System(prompt)})
	if err != nil {
		return state.Delta{}, fmt.Errorf("answer synthesis: %w", err)
	}

	logResearchNote(ctx, conv, deps, resp.Content)

	return state.Delta{Messages: []state.Message{assistantMessage(resp.Content)}}, nil
}

// logResearchNote appends a "Researched: ... | Insight: ..." journal
// line with history-derived tags. Failure is logged, never surfaced.
func logResearchNote(ctx context.Context, conv *state.Conversation, deps Deps, answer string) {
	if deps.Notes == nil {
		return
	}
	insight := truncate(answer, 100)
	note := fmt.Sprintf("Researched: %s | Insight: %s", conv.Goal, insight)
	if _, err := deps.Notes.Append(ctx, note, deriveTags(conv)); err != nil {
		deps.Logger.Warn("Failed to append research note", zap.Error(err))
	}
}

// deriveTags scans the conversation for recurring topics worth tagging
// in the journal.
func deriveTags(conv *state.Conversation) string {
	var history strings.Builder
	for _, m := range conv.Messages {
		history.WriteString(strings.ToLower(m.Content))
		history.WriteString(" ")
	}
	text := history.String()

	var tags []string
	if strings.Contains(text, "msc") || strings.Contains(text, "m.sc") ||
		strings.Contains(text, "project") || strings.Contains(text, "assignment") {
		tags = append(tags, "# [[MSc Project]]")
	}
	if strings.Contains(text, "attention") || strings.Contains(text, "transformer") {
		tags = append(tags, "# [[LLM Research]]")
	}
	return strings.Join(tags, " ")
}

// invokeMaybeStreaming uses the streaming path when a delta sink is
// wired, falling back to a blocking call otherwise.
func invokeMaybeStreaming(ctx context.Context, deps Deps, purpose string, messages []llm.Message) (llm.Response, error) {
	if deps.OnDelta != nil {
		return deps.LLM.Stream(ctx, purpose, messages, deps.OnDelta)
	}
	return deps.LLM.Invoke(ctx, purpose, messages)
}

// truncate caps s at max bytes without splitting a rune, marking the
// cut with an ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func assistantMessage(content string) state.Message {
	return state.Message{
		ID:        uuid.New().String(),
		Role:      state.RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
}
