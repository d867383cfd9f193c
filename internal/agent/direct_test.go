package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/state"
)

func convWith(utterance string) *state.Conversation {
	conv := state.New("t1")
	conv.Messages = append(conv.Messages, userTurn(utterance))
	return conv
}

func TestTelemetryNodeSurfacesPlainFailure(t *testing.T) {
	deps := testDeps(newScriptedLLM(), nil)
	deps.Telemetry = fakeTelemetry{err: assert.AnError}

	delta, err := TelemetryNode{}.Execute(context.Background(), convWith("battery?"), deps)

	require.NoError(t, err)
	require.Len(t, delta.Messages, 1)
	assert.Equal(t, "System telemetry is unavailable right now.", delta.Messages[0].Content)
}

func TestNotesNodeAppends(t *testing.T) {
	notes := &fakeNotes{}
	deps := testDeps(newScriptedLLM(), nil)
	deps.Notes = notes

	delta, err := NotesNode{}.Execute(context.Background(),
		convWith("add a note that the demo went well"), deps)

	require.NoError(t, err)
	require.Len(t, notes.entries, 1)
	assert.Contains(t, notes.entries[0], "demo went well")
	assert.Equal(t, "Note added to journal.", delta.Messages[0].Content)
}

func TestNotesNodeSearchesAndAnswers(t *testing.T) {
	client := newScriptedLLM()
	client.on("notes", "Per your notes, the deadline is Friday.")
	notes := &fakeNotes{found: "--- From Page: msc.md ---\nDeadline: Friday"}
	deps := testDeps(client, nil)
	deps.Notes = notes

	delta, err := NotesNode{}.Execute(context.Background(),
		convWith("what do my notes say about the deadline"), deps)

	require.NoError(t, err)
	assert.Equal(t, "Per your notes, the deadline is Friday.", delta.Messages[0].Content)
	assert.Empty(t, notes.entries)
}

func TestBatchFetchCountsOutcomes(t *testing.T) {
	fetcher := &fakeFetcher{
		existing: map[string]bool{"1706.03762": true},
		failing:  map[string]bool{"2101.00001": true},
	}
	reindex := &fakeReindexer{}
	notes := &fakeNotes{}
	deps := testDeps(newScriptedLLM(), nil)
	deps.Papers = fetcher
	deps.Reindex = reindex
	deps.Notes = notes

	delta, err := BatchFetchNode{}.Execute(context.Background(),
		convWith("download 1706.03762 2307.09288 2101.00001"), deps)

	require.NoError(t, err)
	msg := delta.Messages[0].Content
	assert.Contains(t, msg, "New papers: 1")
	assert.Contains(t, msg, "Skipped: 1")
	assert.Contains(t, msg, "Errors: 1")
	// One reindex for the whole batch, one journal block per new paper.
	assert.Equal(t, 1, reindex.calls)
	require.Len(t, notes.entries, 1)
	assert.Contains(t, notes.entries[0], "Paper_2307.09288")
	assert.Contains(t, notes.entries[0], "**Source**: #arxiv")
	// Failed items contribute no evidence.
	require.NotNil(t, delta.Evidence)
	assert.Len(t, *delta.Evidence, 2)
}

func TestBatchFetchNoIDs(t *testing.T) {
	deps := testDeps(newScriptedLLM(), nil)
	deps.Papers = &fakeFetcher{}

	delta, err := BatchFetchNode{}.Execute(context.Background(),
		convWith("download something interesting"), deps)

	require.NoError(t, err)
	assert.Contains(t, delta.Messages[0].Content, "couldn't find any paper identifiers")
}

func TestBatchFetchBiomedicalSubPath(t *testing.T) {
	pubmed := &fakeFetcher{}
	notes := &fakeNotes{}
	deps := testDeps(newScriptedLLM(), nil)
	deps.Papers = &fakeFetcher{}
	deps.Biomedical = pubmed
	deps.Notes = notes
	deps.Reindex = &fakeReindexer{}

	_, err := BatchFetchNode{}.Execute(context.Background(),
		convWith("fetch pubmed 31452104"), deps)

	require.NoError(t, err)
	assert.Equal(t, []string{"31452104"}, pubmed.fetched)
	require.Len(t, notes.entries, 1)
	assert.Contains(t, notes.entries[0], "**Source**: #pubmed")
}

func TestChatNodeUsesSummaryAndWindow(t *testing.T) {
	client := newScriptedLLM()
	client.on("chat", "Sure.")
	deps := testDeps(client, nil)

	conv := convWith("one more thing")
	conv.Summary = "earlier we discussed transformers"

	delta, err := ChatNode{}.Execute(context.Background(), conv, deps)

	require.NoError(t, err)
	assert.Equal(t, "Sure.", delta.Messages[0].Content)
}

func TestSynthesisRequiresTwoItems(t *testing.T) {
	client := newScriptedLLM()
	conv := convWith("compare these")
	conv.Evidence = evidence.ToRefs([]evidence.Evidence{ev("arxiv", "a", "only one", 0.8)})

	delta, err := SynthesisNode{}.Execute(context.Background(), conv, testDeps(client, nil))

	require.NoError(t, err)
	assert.Equal(t, insufficientEvidenceMessage, delta.Messages[0].Content)
	assert.Zero(t, client.callCount("synthesis"))
}

func TestSynthesisFourSections(t *testing.T) {
	client := newScriptedLLM()
	client.on("synthesis", "1. Consensus ...")
	conv := convWith("compare these")
	conv.Evidence = evidence.ToRefs([]evidence.Evidence{
		ev("arxiv", "a", "paper one", 0.8),
		ev("biomedical-index", "b", "paper two", 0.7),
	})

	delta, err := SynthesisNode{}.Execute(context.Background(), conv, testDeps(client, nil))

	require.NoError(t, err)
	assert.Equal(t, "1. Consensus ...", delta.Messages[0].Content)
	assert.Equal(t, 1, client.callCount("synthesis"))
}
