package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/state"
)

// PlannerNode seeds a research episode from the latest user utterance.
// It unconditionally resets the episode fields; evidence accumulated
// for a previous goal is discarded here. Episodes are invocation-scoped
// so the reset can never clobber an in-flight loop.
type PlannerNode struct{}

func (PlannerNode) Name() string { return "planner" }

func (PlannerNode) Execute(_ context.Context, conv *state.Conversation, deps Deps) (state.Delta, error) {
	goal := ""
	if msg, ok := conv.LastUserMessage(); ok {
		goal = msg.Content
	}

	deps.Logger.Info("Planning research episode",
		zap.String("thread_id", conv.ThreadID),
		zap.String("goal", goal),
	)

	return state.Delta{
		Goal:          state.StringPtr(goal),
		OpenQuestions: state.QuestionsPtr([]string{goal}),
		Evidence:      state.EvidencePtr([]state.EvidenceRef{}),
		Confidence:    state.FloatPtr(0),
		LoopCount:     state.IntPtr(0),
	}, nil
}
