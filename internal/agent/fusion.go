package agent

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/metrics"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
	"github.com/ikaris-ai/ikaris/internal/state"
)

// maxQuestionsPerPass bounds adapter fan-out cost per fusion pass.
const maxQuestionsPerPass = 2

// FusionNode queries the capability-gated adapters for the open
// questions, merges the results with carried evidence, dedups, ranks
// and truncates. Adapter failures contribute zero items and never
// abort the pass.
type FusionNode struct{}

func (FusionNode) Name() string { return "fusion" }

func (FusionNode) Execute(ctx context.Context, conv *state.Conversation, deps Deps) (state.Delta, error) {
	questions := conv.OpenQuestions
	if len(questions) == 0 && conv.Goal != "" {
		questions = []string{conv.Goal}
	}
	if len(questions) > maxQuestionsPerPass {
		questions = questions[:maxQuestionsPerPass]
	}

	// One result slot per (question, adapter) pair keeps the collected
	// order deterministic regardless of goroutine completion order.
	type slot struct {
		adapter retrieval.Adapter
		q       string
		items   []evidence.Evidence
	}
	var slots []*slot
	for _, q := range questions {
		for _, a := range deps.Adapters.ForQuestion(q) {
			slots = append(slots, &slot{adapter: a, q: q})
		}
	}

	var wg sync.WaitGroup
	for _, s := range slots {
		wg.Add(1)
		go func(s *slot) {
			defer wg.Done()
			start := time.Now()
			items, err := s.adapter.Query(ctx, s.q)
			if err != nil {
				metrics.RecordAdapterQuery(s.adapter.Name(), "error", time.Since(start).Seconds())
				deps.Logger.Warn("Adapter query failed, contributing zero items",
					zap.String("adapter", s.adapter.Name()),
					zap.String("question", s.q),
					zap.Error(err),
				)
				return
			}
			metrics.RecordAdapterQuery(s.adapter.Name(), "ok", time.Since(start).Seconds())
			s.items = items
		}(s)
	}
	wg.Wait()

	var fresh []evidence.Evidence
	for _, s := range slots {
		fresh = append(fresh, s.items...)
	}

	carried := evidence.FromRefs(conv.Evidence)
	fused := evidence.Fuse(fresh, carried)

	metrics.FusionPasses.Inc()
	metrics.FusionEvidenceKept.Observe(float64(len(fused)))
	deps.Logger.Info("Fusion pass complete",
		zap.Int("questions", len(questions)),
		zap.Int("fresh", len(fresh)),
		zap.Int("carried", len(carried)),
		zap.Int("kept", len(fused)),
	)

	return state.Delta{Evidence: state.EvidencePtr(evidence.ToRefs(fused))}, nil
}
