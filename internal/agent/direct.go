package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/metrics"
	"github.com/ikaris-ai/ikaris/internal/router"
	"github.com/ikaris-ai/ikaris/internal/state"
)

// TelemetryNode answers hardware/status questions with a live snapshot.
type TelemetryNode struct{}

func (TelemetryNode) Name() string { return "telemetry" }

func (TelemetryNode) Execute(ctx context.Context, _ *state.Conversation, deps Deps) (state.Delta, error) {
	stats, err := deps.Telemetry.Snapshot(ctx)
	if err != nil {
		deps.Logger.Warn("Telemetry snapshot failed", zap.Error(err))
		return state.Delta{Messages: []state.Message{
			assistantMessage("System telemetry is unavailable right now."),
		}}, nil
	}
	return state.Delta{Messages: []state.Message{
		assistantMessage("System Status: " + stats),
	}}, nil
}

// appendVerbs mark an utterance as a request to record something rather
// than look something up.
var appendVerbs = []string{"add ", "remember ", "log ", "write down", "save "}

// NotesNode handles personal note requests: an explicit record verb
// appends to today's journal, everything else searches the pages and
// answers from what it finds.
type NotesNode struct{}

func (NotesNode) Name() string { return "notes" }

func (NotesNode) Execute(ctx context.Context, conv *state.Conversation, deps Deps) (state.Delta, error) {
	msg, ok := conv.LastUserMessage()
	if !ok {
		return state.Delta{Messages: []state.Message{
			assistantMessage("What would you like me to do with your notes?"),
		}}, nil
	}

	lower := strings.ToLower(msg.Content)
	for _, verb := range appendVerbs {
		if strings.Contains(lower, verb) {
			confirmation, err := deps.Notes.Append(ctx, msg.Content, deriveTags(conv))
			if err != nil {
				deps.Logger.Warn("Note append failed", zap.Error(err))
				return state.Delta{Messages: []state.Message{
					assistantMessage("I couldn't write to your journal just now."),
				}}, nil
			}
			return state.Delta{Messages: []state.Message{assistantMessage(confirmation)}}, nil
		}
	}

	found, err := deps.Notes.Search(ctx, msg.Content)
	if err != nil {
		deps.Logger.Warn("Note search failed", zap.Error(err))
		return state.Delta{Messages: []state.Message{
			assistantMessage("I couldn't search your notes just now."),
		}}, nil
	}

	prompt := fmt.Sprintf(
		"You are Ikaris. I found these personal notes:\n\n%s\n\n"+
			"Based on these notes, answer the user's question: %s",
		found, msg.Content,
	)
	resp, err := deps.LLM.Invoke(ctx, "notes", []llm.Message{llm.System(prompt)})
	if err != nil {
		return state.Delta{}, fmt.Errorf("notes answer: %w", err)
	}
	return state.Delta{Messages: []state.Message{assistantMessage(resp.Content)}}, nil
}

// pmidPattern matches bare PubMed identifiers once arXiv-style ids have
// been stripped from the utterance.
var pmidPattern = regexp.MustCompile(`\b\d{5,9}\b`)

// BatchFetchNode downloads every paper identifier found in the
// utterance, journals each new paper, reindexes once for the whole
// batch and reports counts. Per-item failures never abort the batch.
type BatchFetchNode struct{}

func (BatchFetchNode) Name() string { return "batch-fetch" }

func (BatchFetchNode) Execute(ctx context.Context, conv *state.Conversation, deps Deps) (state.Delta, error) {
	msg, ok := conv.LastUserMessage()
	if !ok {
		return state.Delta{Messages: []state.Message{
			assistantMessage("I couldn't find any paper identifiers in that message."),
		}}, nil
	}

	fetcher := deps.Papers
	ids := router.ArxivIDs(msg.Content)
	if router.IsBiomedicalFetch(msg.Content) {
		fetcher = deps.Biomedical
		stripped := regexp.MustCompile(`\d{4}\.\d{4,5}`).ReplaceAllString(msg.Content, "")
		ids = pmidPattern.FindAllString(stripped, -1)
	}

	if len(ids) == 0 {
		return state.Delta{Messages: []state.Message{
			assistantMessage("I couldn't find any paper identifiers in that message."),
		}}, nil
	}
	if fetcher == nil {
		return state.Delta{Messages: []state.Message{
			assistantMessage("Paper downloads are disabled."),
		}}, nil
	}

	source := evidence.SourceArxiv
	sourceTag := "#arxiv"
	if fetcher == deps.Biomedical {
		source = evidence.SourceBiomedical
		sourceTag = "#pubmed"
	}

	var newCount, skipped int
	var errs []string
	var fetched []evidence.Evidence
	for _, id := range ids {
		out, err := fetcher.Fetch(ctx, id)
		switch {
		case err != nil:
			metrics.BatchFetchItems.WithLabelValues("error").Inc()
			deps.Logger.Warn("Batch item failed", zap.String("id", id), zap.Error(err))
			errs = append(errs, fmt.Sprintf("%s: %v", id, err))
			continue
		case !out.New:
			metrics.BatchFetchItems.WithLabelValues("skipped").Inc()
			skipped++
		default:
			metrics.BatchFetchItems.WithLabelValues("new").Inc()
			newCount++
			journalNewPaper(ctx, deps, out, sourceTag)
		}
		fetched = append(fetched, evidence.Evidence{
			Source:    source,
			ID:        out.ID,
			Title:     out.Title,
			Text:      out.Summary,
			Relevance: 0.8,
			Meta:      map[string]interface{}{"path": out.Path},
		})
	}

	// One reindex for the whole batch.
	if newCount > 0 && deps.Reindex != nil {
		if err := deps.Reindex.Reindex(ctx); err != nil {
			deps.Logger.Warn("Batch reindex failed", zap.Error(err))
		}
	}

	summary := fmt.Sprintf("Batch process complete.\n- New papers: %d\n- Skipped: %d", newCount, skipped)
	if len(errs) > 0 {
		summary += fmt.Sprintf("\n- Errors: %d", len(errs))
	}
	if newCount > 0 {
		summary += "\n\nJournal updated and paper index refreshed."
	}

	// Fetched paper abstracts become evidence so a comparative
	// synthesis can follow the batch in the same invocation.
	return state.Delta{
		Messages: []state.Message{assistantMessage(summary)},
		Evidence: state.EvidencePtr(evidence.ToRefs(fetched)),
	}, nil
}

// journalNewPaper records a downloaded paper as a to-read block.
func journalNewPaper(ctx context.Context, deps Deps, out FetchResult, sourceTag string) {
	if deps.Notes == nil {
		return
	}
	summary := truncate(out.Summary, 300)
	entry := fmt.Sprintf(
		"## [[%s]]\n  - **Source**: %s\n  - **Status**: #[[To Read]]\n  - **Summary**: %s\n  - **Local Path**: `%s`",
		out.Title, sourceTag, summary, out.Path,
	)
	if _, err := deps.Notes.Append(ctx, entry, ""); err != nil {
		deps.Logger.Warn("Failed to journal new paper", zap.String("id", out.ID), zap.Error(err))
	}
}

// chatPersona is the system prompt for plain conversation.
const chatPersona = "You are Ikaris, a highly technical research assistant for a Computer Science " +
	"Master's student. Your tone is professional, expert, yet grounded and slightly witty. " +
	"Focus on delivering clear, actionable research insights and system stats analysis."

// chatWindow bounds how many recent turns are sent to the model.
const chatWindow = 12

// ChatNode is the default conversational path: persona prompt, rolling
// summary for continuity, recent turns verbatim.
type ChatNode struct{}

func (ChatNode) Name() string { return "chat" }

func (ChatNode) Execute(ctx context.Context, conv *state.Conversation, deps Deps) (state.Delta, error) {
	msgs := []llm.Message{llm.System(chatPersona)}
	if conv.Summary != "" {
		msgs = append(msgs, llm.System("Summary of the earlier conversation:\n"+conv.Summary))
	}

	window := conv.Messages
	if len(window) > chatWindow {
		window = window[len(window)-chatWindow:]
	}
	for _, m := range window {
		switch m.Role {
		case state.RoleUser:
			msgs = append(msgs, llm.User(m.Content))
		case state.RoleAssistant:
			msgs = append(msgs, llm.Assistant(m.Content))
		}
	}

	resp, err := invokeMaybeStreaming(ctx, deps, "chat", msgs)
	if err != nil {
		return state.Delta{}, fmt.Errorf("chat: %w", err)
	}
	return state.Delta{Messages: []state.Message{assistantMessage(resp.Content)}}, nil
}
