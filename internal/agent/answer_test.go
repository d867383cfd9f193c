package agent

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikaris-ai/ikaris/internal/evidence"
)

func TestAnswerNodeShortCircuitsWithoutEvidence(t *testing.T) {
	client := newScriptedLLM()
	notes := &fakeNotes{}
	deps := testDeps(client, nil)
	deps.Notes = notes

	conv := convWith("what did we learn")
	conv.Goal = "what did we learn"

	delta, err := AnswerNode{}.Execute(context.Background(), conv, deps)

	require.NoError(t, err)
	require.Len(t, delta.Messages, 1)
	assert.Contains(t, delta.Messages[0].Content, "couldn't find anything relevant")
	assert.Zero(t, client.callCount("answer"))
	assert.Empty(t, notes.entries)
}

func TestAnswerNodeJournalsResearchNote(t *testing.T) {
	client := newScriptedLLM()
	client.on("answer", "Attention lets each token weigh every other token [Item 1].")
	notes := &fakeNotes{}
	deps := testDeps(client, nil)
	deps.Notes = notes

	conv := convWith("explain attention")
	conv.Goal = "explain attention"
	conv.Evidence = evidence.ToRefs([]evidence.Evidence{
		ev("arxiv", "1706.03762", "Attention is all you need.", 0.9),
	})

	delta, err := AnswerNode{}.Execute(context.Background(), conv, deps)

	require.NoError(t, err)
	assert.Contains(t, delta.Messages[0].Content, "[Item 1]")
	require.Len(t, notes.entries, 1)
	assert.Contains(t, notes.entries[0], "Researched: explain attention")
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	// Two-byte runes, cut point landing mid-rune.
	greek := strings.Repeat("α", 5)
	got := truncate(greek, 5)
	assert.Equal(t, "αα...", got)
	assert.True(t, utf8.ValidString(got))
}
