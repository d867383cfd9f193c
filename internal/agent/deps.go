// Package agent wires the conversation graph: planner, evidence fusion,
// confidence judge, loop controller, synthesis, and the direct terminal
// nodes, executed sequentially by the engine.
package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
	"github.com/ikaris-ai/ikaris/internal/state"
)

// NoteStore is the personal note adapter (journal append + page search).
type NoteStore interface {
	Append(ctx context.Context, content, tags string) (string, error)
	Search(ctx context.Context, query string) (string, error)
}

// TelemetryProbe reports a one-line hardware snapshot.
type TelemetryProbe interface {
	Snapshot(ctx context.Context) (string, error)
}

// FetchResult is the outcome of fetching one paper by identifier.
// New is false when the file was already present and nothing was
// downloaded.
type FetchResult struct {
	ID      string
	Title   string
	Summary string
	Path    string
	New     bool
}

// Fetcher resolves a single paper identifier to a local file. The arXiv
// and PubMed clients both implement it; the batch node picks one based
// on the utterance.
type Fetcher interface {
	Fetch(ctx context.Context, id string) (FetchResult, error)
}

// Reindexer rebuilds the local paper index after a batch of downloads.
type Reindexer interface {
	Reindex(ctx context.Context) error
}

// Deps carries every collaborator a node may need. Nodes receive it
// explicitly instead of closing over process globals so tests can
// substitute any piece.
type Deps struct {
	LLM        llm.Client
	Adapters   *retrieval.Registry
	Notes      NoteStore
	Telemetry  TelemetryProbe
	Papers     Fetcher
	Biomedical Fetcher
	Reindex    Reindexer
	Logger     *zap.Logger

	// OnDelta, when set, receives streamed answer fragments for nodes
	// that support streaming output. Nil means blocking generation.
	OnDelta func(delta string) error
}

// Node is one step of the graph: a pure transition from the current
// conversation to a partial state update.
type Node interface {
	Name() string
	Execute(ctx context.Context, conv *state.Conversation, deps Deps) (state.Delta, error)
}
