// Package notestore reads and writes the user's Logseq-style markdown
// workspace: dated journal files for appends, topic pages for search.
package notestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
)

const (
	maxSearchResults = 2
	snippetLength    = 500
)

// Config locates the note graph on disk.
type Config struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Workspace is a note graph rooted at Dir, with journals/ for dated
// appends and pages/ for named topic pages.
type Workspace struct {
	journals string
	pages    string
	logger   *zap.Logger
	now      func() time.Time
}

// NewWorkspace builds a workspace. Directories are created lazily on
// first append; a missing pages directory is a search miss, not an
// error.
func NewWorkspace(cfg Config, logger *zap.Logger) *Workspace {
	if cfg.Dir == "" {
		cfg.Dir = "./notes"
	}
	return &Workspace{
		journals: filepath.Join(cfg.Dir, "journals"),
		pages:    filepath.Join(cfg.Dir, "pages"),
		logger:   logger,
		now:      time.Now,
	}
}

// Append adds one block to today's journal file (journals/YYYY_MM_DD.md).
// Tags, when present, sit between the assistant marker and the timestamp
// so the graph links them.
func (w *Workspace) Append(ctx context.Context, content, tags string) (string, error) {
	if err := os.MkdirAll(w.journals, 0o755); err != nil {
		return "", fmt.Errorf("create journals dir: %w", err)
	}

	now := w.now()
	day := now.Format("2006_01_02")
	path := filepath.Join(w.journals, day+".md")

	tagStr := ""
	if tags != "" {
		tagStr = " " + tags
	}
	block := fmt.Sprintf("\n- # [[Ikaris AI]]%s %s: %s", tagStr, now.Format("15:04"), content)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(block); err != nil {
		return "", fmt.Errorf("append journal: %w", err)
	}

	w.logger.Info("Appended journal note", zap.String("file", day+".md"), zap.String("tags", tags))
	return fmt.Sprintf("Note added to journal for %s.", day), nil
}

type pageHit struct {
	name    string
	score   int
	content string
}

// Search scores every markdown page by how many query terms it contains
// and returns snippets of the top two.
func (w *Workspace) Search(ctx context.Context, query string) (string, error) {
	hits, err := w.scorePages(query)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "I checked your notes, but couldn't find anything relevant.", nil
	}

	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, fmt.Sprintf("--- From Page: %s ---\n%s", h.name, snippet(h.content)))
	}
	return strings.Join(parts, "\n\n"), nil
}

func (w *Workspace) scorePages(query string) ([]pageHit, error) {
	entries, err := os.ReadDir(w.pages)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read pages dir: %w", err)
	}

	terms := strings.Fields(strings.ToLower(query))
	var hits []pageHit
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(w.pages, entry.Name()))
		if err != nil {
			w.logger.Warn("Unreadable page skipped", zap.String("page", entry.Name()), zap.Error(err))
			continue
		}
		content := string(raw)
		folded := strings.ToLower(content)
		score := 0
		for _, term := range terms {
			if strings.Contains(folded, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, pageHit{name: entry.Name(), score: score, content: content})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxSearchResults {
		hits = hits[:maxSearchResults]
	}
	return hits, nil
}

func snippet(content string) string {
	if len(content) > snippetLength {
		return content[:snippetLength] + "..."
	}
	return content
}

// Adapter exposes the workspace pages to the retrieval fan-out so the
// user's own notes compete with external sources during fusion.
type Adapter struct {
	ws *Workspace
}

// NewAdapter wraps a workspace as a retrieval adapter.
func NewAdapter(ws *Workspace) *Adapter { return &Adapter{ws: ws} }

func (a *Adapter) Name() string { return "notes" }

func (a *Adapter) Capability() retrieval.Capability { return retrieval.CapabilityGeneral }

// Query returns one evidence item per matching page. The term-count
// score is normalized by the term count so relevance stays in [0, 1].
func (a *Adapter) Query(ctx context.Context, question string) ([]evidence.Evidence, error) {
	hits, err := a.ws.scorePages(question)
	if err != nil {
		return nil, err
	}
	terms := len(strings.Fields(question))
	if terms == 0 {
		terms = 1
	}

	items := make([]evidence.Evidence, 0, len(hits))
	for _, h := range hits {
		items = append(items, evidence.Evidence{
			Source:    evidence.SourceNotes,
			ID:        h.name,
			Title:     strings.TrimSuffix(h.name, ".md"),
			Text:      snippet(h.content),
			Relevance: float64(h.score) / float64(terms),
			Meta:      map[string]interface{}{"page": h.name},
		})
	}
	return items, nil
}
