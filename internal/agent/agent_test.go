package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/llm"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
	"github.com/ikaris-ai/ikaris/internal/state"
)

// scriptedLLM returns canned responses keyed by call purpose. An
// unknown purpose echoes a fixed string so tests fail loudly on
// unexpected calls.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     []string
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{responses: map[string][]string{}, errs: map[string]error{}}
}

func (s *scriptedLLM) on(purpose string, replies ...string) {
	s.responses[purpose] = append(s.responses[purpose], replies...)
}

func (s *scriptedLLM) Invoke(_ context.Context, purpose string, _ []llm.Message) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, purpose)
	if err := s.errs[purpose]; err != nil {
		return llm.Response{}, err
	}
	queue := s.responses[purpose]
	if len(queue) == 0 {
		return llm.Response{Content: "unexpected call: " + purpose}, nil
	}
	reply := queue[0]
	if len(queue) > 1 {
		s.responses[purpose] = queue[1:]
	}
	return llm.Response{Content: reply}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, purpose string, messages []llm.Message, onDelta func(string) error) (llm.Response, error) {
	resp, err := s.Invoke(ctx, purpose, messages)
	if err == nil && onDelta != nil {
		if derr := onDelta(resp.Content); derr != nil {
			return resp, derr
		}
	}
	return resp, err
}

func (s *scriptedLLM) callCount(purpose string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == purpose {
			n++
		}
	}
	return n
}

type fakeAdapter struct {
	name  string
	cap   retrieval.Capability
	items []evidence.Evidence
	err   error

	mu        sync.Mutex
	questions []string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Capability() retrieval.Capability { return f.cap }

func (f *fakeAdapter) Query(_ context.Context, q string) ([]evidence.Evidence, error) {
	f.mu.Lock()
	f.questions = append(f.questions, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeNotes struct {
	mu      sync.Mutex
	entries []string
	found   string
	err     error
}

func (f *fakeNotes) Append(_ context.Context, content, tags string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.entries = append(f.entries, content)
	f.mu.Unlock()
	return "Note added to journal.", nil
}

func (f *fakeNotes) Search(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.found, nil
}

type fakeTelemetry struct {
	stats string
	err   error
}

func (f fakeTelemetry) Snapshot(context.Context) (string, error) {
	return f.stats, f.err
}

type fakeFetcher struct {
	existing map[string]bool
	failing  map[string]bool
	fetched  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) (FetchResult, error) {
	f.fetched = append(f.fetched, id)
	if f.failing[id] {
		return FetchResult{}, fmt.Errorf("download failed")
	}
	return FetchResult{
		ID:      id,
		Title:   "Paper_" + id,
		Summary: "Summary of " + id,
		Path:    "/papers/" + id + ".pdf",
		New:     !f.existing[id],
	}, nil
}

type fakeReindexer struct {
	calls int
}

func (f *fakeReindexer) Reindex(context.Context) error {
	f.calls++
	return nil
}

type memCheckpointer struct {
	mu    sync.Mutex
	store map[string]*state.Conversation
	puts  int
}

func newMemCheckpointer() *memCheckpointer {
	return &memCheckpointer{store: map[string]*state.Conversation{}}
}

func (m *memCheckpointer) Get(_ context.Context, threadID string) (*state.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.store[threadID]
	return conv, ok, nil
}

func (m *memCheckpointer) Put(_ context.Context, threadID string, conv *state.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[threadID] = conv
	m.puts++
	return nil
}

func testDeps(client llm.Client, adapters *retrieval.Registry) Deps {
	if adapters == nil {
		adapters = retrieval.NewRegistry()
	}
	return Deps{
		LLM:      client,
		Adapters: adapters,
		Logger:   zap.NewNop(),
	}
}

func userTurn(content string) state.Message {
	return state.Message{Role: state.RoleUser, Content: content}
}
