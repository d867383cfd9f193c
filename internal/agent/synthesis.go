package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/state"
)

// insufficientEvidenceMessage is returned without a model call when
// fewer than two items are available to compare.
const insufficientEvidenceMessage = "I couldn't find enough papers to synthesize a comparison. " +
	"Try broadening your research query."

// SynthesisNode compares multiple retrieved papers and reports
// consensus, conflicts, notable methods and open gaps. It is the
// terminal of the batch-fetch path rather than the reasoning loop.
type SynthesisNode struct{}

func (SynthesisNode) Name() string { return "synthesis" }

func (SynthesisNode) Execute(ctx context.Context, conv *state.Conversation, deps Deps) (state.Delta, error) {
	items := evidence.FromRefs(conv.Evidence)
	if len(items) < 2 {
		return state.Delta{Messages: []state.Message{assistantMessage(insufficientEvidenceMessage)}}, nil
	}

	var block strings.Builder
	for i, ev := range items {
		cite := ""
		journal, _ := ev.Meta["journal"].(string)
		year := fmt.Sprintf("%v", ev.Meta["year"])
		if journal != "" && year != "" && year != "<nil>" {
			cite = fmt.Sprintf(" (%s, %s)", journal, year)
		}
		text := truncate(ev.Text, 1500)
		fmt.Fprintf(&block, "--- Paper [%d] [%s]%s ---\nTitle: %s\n%s\n\n",
			i+1, strings.ToUpper(ev.Source), cite, ev.Title, text)
	}

	prompt := fmt.Sprintf(
		"You are Ikaris, a research synthesis engine.\n\n"+
			"GOAL: %s\n\n"+
			"Below are %d retrieved papers/chunks from multiple sources:\n\n%s\n"+
			"Provide a **Comparative Synthesis**:\n"+
			"1. **Consensus**: What do these studies agree on?\n"+
			"2. **Conflicts**: Are there any contradictory findings?\n"+
			"3. **Key Methods**: What are the most notable methodologies?\n"+
			"4. **Research Gaps**: What questions remain unanswered?\n\n"+
			"Cite papers by their [Paper N] tag inline. Be precise and scientific.",
		conv.Goal, len(items), block.String(),
	)

	deps.Logger.Info("Synthesizing evidence", zap.Int("items", len(items)))

	resp, err := invokeMaybeStreaming(ctx, deps, "synthesis", []llm.Message{llm.System(prompt)})
	if err != nil {
		return state.Delta{}, fmt.Errorf("comparative synthesis: %w", err)
	}

	return state.Delta{Messages: []state.Message{assistantMessage(resp.Content)}}, nil
}
