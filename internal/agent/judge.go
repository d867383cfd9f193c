package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/metrics"
	"github.com/ikaris-ai/ikaris/internal/state"
)

// JudgeNode evaluates whether the accumulated evidence satisfies the
// goal. It fails closed: any model or parse failure yields confidence 0
// and re-queues the goal, and the loop counter advances in every case
// so loop progress stays observable.
type JudgeNode struct{}

func (JudgeNode) Name() string { return "judge" }

type judgeVerdict struct {
	Confidence    float64  `json:"confidence"`
	OpenQuestions []string `json:"open_questions"`
	Reasoning     string   `json:"reasoning"`
}

func (JudgeNode) Execute(ctx context.Context, conv *state.Conversation, deps Deps) (state.Delta, error) {
	loopCount := conv.LoopCount + 1
	items := evidence.FromRefs(conv.Evidence)

	var sb strings.Builder
	for i, ev := range items {
		text := truncate(ev.Text, 200)
		anchors := ev.Anchors()
		if anchors == "" {
			anchors = "none"
		}
		fmt.Fprintf(&sb, "[Item %d] (Rel: %.2f) %s (Anchors: %s)\n", i+1, ev.Relevance, text, anchors)
	}

	prompt := fmt.Sprintf(
		"You are the Research Director. Your job is to decide if we have enough evidence to answer the user's goal.\n"+
			"GOAL: %q\n\n"+
			"CURRENT EVIDENCE:\n%s\n\n"+
			"INSTRUCTIONS:\n"+
			"1. Analyze the evidence vs the goal.\n"+
			"2. If sufficient, set confidence = 1.0.\n"+
			"3. If insufficient, list specific 'open_questions' that need to be researched next.\n"+
			"4. Respond in JSON format ONLY: {\"confidence\": float, \"open_questions\": [str], \"reasoning\": str}",
		conv.Goal, sb.String(),
	)

	failClosed := func(reason string, err error) state.Delta {
		metrics.JudgeParseFailures.Inc()
		deps.Logger.Warn("Judge output unusable, failing closed",
			zap.String("reason", reason),
			zap.Int("loop_count", loopCount),
			zap.Error(err),
		)
		return state.Delta{
			Confidence:    state.FloatPtr(0),
			OpenQuestions: state.QuestionsPtr([]string{conv.Goal}),
			LoopCount:     state.IntPtr(loopCount),
		}
	}

	resp, err := deps.LLM.Invoke(ctx, "judge", []llm.Message{llm.System(prompt)})
	if err != nil {
		return failClosed("invoke", err), nil
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		return failClosed("parse", err), nil
	}

	deps.Logger.Info("Judge verdict",
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("open_questions", len(verdict.OpenQuestions)),
		zap.Int("loop_count", loopCount),
	)

	return state.Delta{
		Confidence:    state.FloatPtr(verdict.Confidence),
		OpenQuestions: state.QuestionsPtr(verdict.OpenQuestions),
		LoopCount:     state.IntPtr(loopCount),
	}, nil
}

// parseVerdict parses the judge output, tolerating surrounding
// markdown code fences.
func parseVerdict(raw string) (judgeVerdict, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var v judgeVerdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return judgeVerdict{}, fmt.Errorf("parse judge verdict: %w", err)
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	return v, nil
}
