package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/compress"
	"github.com/ikaris-ai/ikaris/internal/metrics"
	"github.com/ikaris-ai/ikaris/internal/router"
	"github.com/ikaris-ai/ikaris/internal/state"
	"github.com/ikaris-ai/ikaris/internal/tracing"
)

// Checkpointer persists conversation state between invocations.
type Checkpointer interface {
	Get(ctx context.Context, threadID string) (*state.Conversation, bool, error)
	Put(ctx context.Context, threadID string, conv *state.Conversation) error
}

// Engine runs one graph invocation per user utterance: compress the
// history, route, execute the chosen path, checkpoint. Execution is
// strictly sequential; the engine is the single writer of a thread's
// state, and the caller must guarantee one invocation in flight per
// thread (the session layer's busy guard enforces this).
type Engine struct {
	deps        Deps
	compressor  *compress.Compressor
	checkpoints Checkpointer
	logger      *zap.Logger
}

// NewEngine wires the graph.
func NewEngine(deps Deps, compressor *compress.Compressor, checkpoints Checkpointer, logger *zap.Logger) *Engine {
	return &Engine{deps: deps, compressor: compressor, checkpoints: checkpoints, logger: logger}
}

// Load restores a thread's conversation, or starts a fresh one.
func (e *Engine) Load(ctx context.Context, threadID string) (*state.Conversation, error) {
	if e.checkpoints == nil {
		return state.New(threadID), nil
	}
	conv, found, err := e.checkpoints.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}
	if !found {
		return state.New(threadID), nil
	}
	return conv, nil
}

// Invoke processes one user utterance to completion and returns the
// final assistant reply. The conversation is mutated in place and
// checkpointed once the invocation finishes.
func (e *Engine) Invoke(ctx context.Context, conv *state.Conversation, utterance string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "engine.invoke")
	defer span.End()

	conv.Messages = append(conv.Messages, state.Message{
		ID:        uuid.New().String(),
		Role:      state.RoleUser,
		Content:   utterance,
		Timestamp: time.Now(),
	})

	e.compressHistory(ctx, conv)

	decision := router.DecisionChat
	if msg, ok := conv.LastUserMessage(); ok {
		decision = router.Route(msg.Content)
	}
	metrics.RouterDecisions.WithLabelValues(string(decision)).Inc()
	e.logger.Info("Routed utterance",
		zap.String("thread_id", conv.ThreadID),
		zap.String("target", string(decision)),
	)

	var err error
	switch decision {
	case router.DecisionTelemetry:
		err = e.runNode(ctx, conv, TelemetryNode{})
	case router.DecisionNoteAppend:
		err = e.runNode(ctx, conv, NotesNode{})
	case router.DecisionBatchFetch:
		err = e.runBatchFetch(ctx, conv)
	case router.DecisionResearch:
		err = e.runResearch(ctx, conv)
	default:
		err = e.runNode(ctx, conv, ChatNode{})
	}
	if err != nil {
		// Persist whatever progressed before the failure; the thread
		// stays resumable.
		e.checkpoint(ctx, conv)
		return "", err
	}

	e.checkpoint(ctx, conv)

	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].Role == state.RoleAssistant {
			return conv.Messages[i].Content, nil
		}
	}
	return "", nil
}

// synthesisWords make a batch fetch continue into a comparative
// synthesis over the fetched abstracts.
var synthesisWords = []string{"compare", "synthesize", "synthesis", "contrast", "explain"}

// runBatchFetch downloads the requested papers and, when the utterance
// also asks for a comparison, synthesizes across the fetched abstracts.
func (e *Engine) runBatchFetch(ctx context.Context, conv *state.Conversation) error {
	if err := e.runNode(ctx, conv, BatchFetchNode{}); err != nil {
		return err
	}
	msg, ok := conv.LastUserMessage()
	if !ok {
		return nil
	}
	lower := strings.ToLower(msg.Content)
	for _, w := range synthesisWords {
		if strings.Contains(lower, w) {
			return e.runNode(ctx, conv, SynthesisNode{})
		}
	}
	return nil
}

// runResearch drives one research episode: plan, then fuse and judge
// until the loop controller finalizes, then synthesize the answer.
func (e *Engine) runResearch(ctx context.Context, conv *state.Conversation) error {
	metrics.ResearchEpisodes.Inc()

	if err := e.runNode(ctx, conv, PlannerNode{}); err != nil {
		return err
	}

	for {
		if err := e.runNode(ctx, conv, FusionNode{}); err != nil {
			return err
		}
		if err := e.runNode(ctx, conv, JudgeNode{}); err != nil {
			return err
		}

		if Decide(conv.Confidence, conv.LoopCount) == LoopFinalize {
			reason := "confidence"
			if conv.Confidence < ConfidenceThreshold {
				reason = "safety_valve"
			}
			metrics.LoopFinalizations.WithLabelValues(reason).Inc()
			e.logger.Info("Finalizing research episode",
				zap.String("reason", reason),
				zap.Float64("confidence", conv.Confidence),
				zap.Int("loop_count", conv.LoopCount),
			)
			break
		}
	}

	return e.runNode(ctx, conv, AnswerNode{})
}

func (e *Engine) runNode(ctx context.Context, conv *state.Conversation, node Node) error {
	delta, err := node.Execute(ctx, conv, e.deps)
	if err != nil {
		return fmt.Errorf("node %s: %w", node.Name(), err)
	}
	conv.Apply(delta)
	return nil
}

// compressHistory folds old turns into the rolling summary. A failed
// summarization is logged and skipped; history length is re-checked
// next turn so the fold retries naturally.
func (e *Engine) compressHistory(ctx context.Context, conv *state.Conversation) {
	if e.compressor == nil {
		return
	}
	res, err := e.compressor.Compress(ctx, conv.Messages, conv.Summary)
	if err != nil {
		e.logger.Warn("History compression failed, continuing uncompressed", zap.Error(err))
		return
	}
	if !res.Compressed {
		return
	}
	// The engine owns materialization of the delta: the stored window
	// becomes the summary marker plus the recent turns.
	conv.Messages = res.Delta
	conv.Summary = res.Summary
}

func (e *Engine) checkpoint(ctx context.Context, conv *state.Conversation) {
	if e.checkpoints == nil {
		return
	}
	if err := e.checkpoints.Put(ctx, conv.ThreadID, conv); err != nil {
		metrics.CheckpointWrites.WithLabelValues("error").Inc()
		e.logger.Error("Checkpoint write failed",
			zap.String("thread_id", conv.ThreadID),
			zap.Error(err),
		)
		return
	}
	metrics.CheckpointWrites.WithLabelValues("ok").Inc()
}
