package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikaris-ai/ikaris/internal/state"
)

func episodeConv(goal string, loopCount int) *state.Conversation {
	conv := state.New("t1")
	conv.Goal = goal
	conv.LoopCount = loopCount
	return conv
}

func TestJudgeParsesVerdict(t *testing.T) {
	client := newScriptedLLM()
	client.on("judge", `{"confidence": 0.9, "open_questions": [], "reasoning": "covered"}`)

	delta, err := JudgeNode{}.Execute(context.Background(), episodeConv("goal", 1), testDeps(client, nil))

	require.NoError(t, err)
	assert.Equal(t, 0.9, *delta.Confidence)
	assert.Empty(t, *delta.OpenQuestions)
	assert.Equal(t, 2, *delta.LoopCount)
}

func TestJudgeStripsCodeFences(t *testing.T) {
	client := newScriptedLLM()
	client.on("judge", "```json\n{\"confidence\": 0.4, \"open_questions\": [\"next\"], \"reasoning\": \"thin\"}\n```")

	delta, err := JudgeNode{}.Execute(context.Background(), episodeConv("goal", 0), testDeps(client, nil))

	require.NoError(t, err)
	assert.Equal(t, 0.4, *delta.Confidence)
	assert.Equal(t, []string{"next"}, *delta.OpenQuestions)
	assert.Equal(t, 1, *delta.LoopCount)
}

func TestJudgeFailsClosedOnGarbage(t *testing.T) {
	client := newScriptedLLM()
	client.on("judge", "I think we need more evidence, probably.")

	delta, err := JudgeNode{}.Execute(context.Background(), episodeConv("the goal", 2), testDeps(client, nil))

	require.NoError(t, err)
	assert.Equal(t, 0.0, *delta.Confidence)
	assert.Equal(t, []string{"the goal"}, *delta.OpenQuestions)
	// Loop progress is observable even when the output is unusable.
	assert.Equal(t, 3, *delta.LoopCount)
}

func TestJudgeFailsClosedOnModelError(t *testing.T) {
	client := newScriptedLLM()
	client.errs["judge"] = errors.New("connection refused")

	delta, err := JudgeNode{}.Execute(context.Background(), episodeConv("the goal", 0), testDeps(client, nil))

	require.NoError(t, err)
	assert.Equal(t, 0.0, *delta.Confidence)
	assert.Equal(t, []string{"the goal"}, *delta.OpenQuestions)
	assert.Equal(t, 1, *delta.LoopCount)
}

func TestParseVerdictClampsConfidence(t *testing.T) {
	v, err := parseVerdict(`{"confidence": 1.7, "open_questions": [], "reasoning": ""}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Confidence)

	v, err = parseVerdict(`{"confidence": -0.3, "open_questions": [], "reasoning": ""}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Confidence)
}
