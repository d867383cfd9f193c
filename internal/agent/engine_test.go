package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/compress"
	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
	"github.com/ikaris-ai/ikaris/internal/state"
)

func newTestEngine(deps Deps, cp Checkpointer) *Engine {
	compressor := compress.New(deps.LLM, zap.NewNop())
	return NewEngine(deps, compressor, cp, zap.NewNop())
}

func TestEngineResearchFinalizesOnConfidence(t *testing.T) {
	client := newScriptedLLM()
	client.on("judge", `{"confidence": 0.9, "open_questions": [], "reasoning": "enough"}`)
	client.on("answer", "Grounded answer [Item 1].")

	adapter := &fakeAdapter{name: "local", cap: retrieval.CapabilityGeneral,
		items: []evidence.Evidence{ev("local-index", "a", "relevant chunk", 0.8)}}
	deps := testDeps(client, retrieval.NewRegistry(adapter))
	notes := &fakeNotes{}
	deps.Notes = notes

	eng := newTestEngine(deps, nil)
	conv := state.New("t1")

	answer, err := eng.Invoke(context.Background(), conv, "what does the research paper say")

	require.NoError(t, err)
	assert.Equal(t, "Grounded answer [Item 1].", answer)
	assert.Equal(t, 1, client.callCount("judge"))
	assert.Equal(t, 1, conv.LoopCount)
	// Research-note side effect.
	require.Len(t, notes.entries, 1)
	assert.Contains(t, notes.entries[0], "Researched:")
}

func TestEngineSafetyValveBoundsLoop(t *testing.T) {
	client := newScriptedLLM()
	// Judge never gets confident; the loop must still terminate.
	client.on("judge",
		`{"confidence": 0.1, "open_questions": ["more"], "reasoning": ""}`,
		`{"confidence": 0.1, "open_questions": ["more"], "reasoning": ""}`,
		`{"confidence": 0.1, "open_questions": ["more"], "reasoning": ""}`,
	)
	client.on("answer", "Best effort answer.")

	adapter := &fakeAdapter{name: "local", cap: retrieval.CapabilityGeneral,
		items: []evidence.Evidence{ev("local-index", "a", "a thin lead", 0.4)}}
	deps := testDeps(client, retrieval.NewRegistry(adapter))
	eng := newTestEngine(deps, nil)
	conv := state.New("t1")

	answer, err := eng.Invoke(context.Background(), conv, "research the unanswerable")

	require.NoError(t, err)
	assert.Equal(t, "Best effort answer.", answer)
	assert.Equal(t, 3, client.callCount("judge"))
	assert.Equal(t, 3, conv.LoopCount)
}

func TestEngineResearchWithNoEvidenceReportsNothingFound(t *testing.T) {
	client := newScriptedLLM()
	client.on("judge",
		`{"confidence": 0.1, "open_questions": ["more"], "reasoning": ""}`,
		`{"confidence": 0.1, "open_questions": ["more"], "reasoning": ""}`,
		`{"confidence": 0.1, "open_questions": ["more"], "reasoning": ""}`,
	)

	adapter := &fakeAdapter{name: "local", cap: retrieval.CapabilityGeneral}
	deps := testDeps(client, retrieval.NewRegistry(adapter))
	eng := newTestEngine(deps, nil)

	answer, err := eng.Invoke(context.Background(), state.New("t1"), "research the unanswerable")

	require.NoError(t, err)
	assert.Contains(t, answer, "couldn't find anything relevant")
	assert.Zero(t, client.callCount("answer"))
}

func TestEngineRoutesTelemetry(t *testing.T) {
	deps := testDeps(newScriptedLLM(), nil)
	deps.Telemetry = fakeTelemetry{stats: "CPU: 12.0% | Battery: 80.0%"}
	eng := newTestEngine(deps, nil)

	answer, err := eng.Invoke(context.Background(), state.New("t1"), "how is my cpu doing")

	require.NoError(t, err)
	assert.Equal(t, "System Status: CPU: 12.0% | Battery: 80.0%", answer)
}

func TestEngineDefaultChat(t *testing.T) {
	client := newScriptedLLM()
	client.on("chat", "Hello!")
	eng := newTestEngine(testDeps(client, nil), nil)
	conv := state.New("t1")

	answer, err := eng.Invoke(context.Background(), conv, "hi there")

	require.NoError(t, err)
	assert.Equal(t, "Hello!", answer)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, state.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, state.RoleAssistant, conv.Messages[1].Role)
}

func TestEngineCheckpointsAfterInvocation(t *testing.T) {
	client := newScriptedLLM()
	client.on("chat", "ok")
	cp := newMemCheckpointer()
	eng := newTestEngine(testDeps(client, nil), cp)

	conv, err := eng.Load(context.Background(), "t1")
	require.NoError(t, err)

	_, err = eng.Invoke(context.Background(), conv, "hello")
	require.NoError(t, err)

	assert.Equal(t, 1, cp.puts)
	stored, found, err := cp.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, stored.Messages, 2)
}

func TestEngineCompressesLongHistory(t *testing.T) {
	client := newScriptedLLM()
	client.on("compressor", "rolled up summary")
	client.on("chat", "ok")
	eng := newTestEngine(testDeps(client, nil), nil)

	conv := state.New("t1")
	for i := 0; i < 22; i++ {
		conv.Messages = append(conv.Messages, userTurn("older turn"))
	}

	_, err := eng.Invoke(context.Background(), conv, "latest")
	require.NoError(t, err)

	assert.Equal(t, "rolled up summary", conv.Summary)
	// 1 summary marker + 6 recent + the assistant reply.
	require.Len(t, conv.Messages, 8)
	assert.Equal(t, state.RoleSummary, conv.Messages[0].Role)
}

func TestEngineBatchFetchThenSynthesis(t *testing.T) {
	client := newScriptedLLM()
	client.on("synthesis", "1. Consensus ... [Paper 1] [Paper 2]")

	fetcher := &fakeFetcher{}
	reindex := &fakeReindexer{}
	deps := testDeps(client, nil)
	deps.Papers = fetcher
	deps.Reindex = reindex
	deps.Notes = &fakeNotes{}
	eng := newTestEngine(deps, nil)
	conv := state.New("t1")

	answer, err := eng.Invoke(context.Background(), conv, "download 1706.03762 2307.09288 and compare them")

	require.NoError(t, err)
	assert.Equal(t, []string{"1706.03762", "2307.09288"}, fetcher.fetched)
	assert.Equal(t, 1, reindex.calls)
	assert.True(t, strings.Contains(answer, "Consensus"))
	// The batch summary precedes the synthesis turn.
	require.Len(t, conv.Messages, 3)
	assert.Contains(t, conv.Messages[1].Content, "New papers: 2")
}
