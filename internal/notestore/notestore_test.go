package notestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testWorkspace(t *testing.T) (*Workspace, string) {
	t.Helper()
	dir := t.TempDir()
	ws := NewWorkspace(Config{Dir: dir}, zap.NewNop())
	ws.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	}
	return ws, dir
}

func writePage(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pages"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pages", name), []byte(content), 0o644))
}

func TestAppendFormatsJournalBlock(t *testing.T) {
	ws, dir := testWorkspace(t)

	msg, err := ws.Append(context.Background(), "read the attention paper", "# [[LLM Research]]")

	require.NoError(t, err)
	assert.Equal(t, "Note added to journal for 2026_03_14.", msg)

	raw, err := os.ReadFile(filepath.Join(dir, "journals", "2026_03_14.md"))
	require.NoError(t, err)
	assert.Equal(t, "\n- # [[Ikaris AI]] # [[LLM Research]] 09:26: read the attention paper", string(raw))
}

func TestAppendWithoutTags(t *testing.T) {
	ws, dir := testWorkspace(t)

	_, err := ws.Append(context.Background(), "buy more coffee", "")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "journals", "2026_03_14.md"))
	require.NoError(t, err)
	assert.Equal(t, "\n- # [[Ikaris AI]] 09:26: buy more coffee", string(raw))
}

func TestAppendAccumulatesBlocks(t *testing.T) {
	ws, dir := testWorkspace(t)

	_, err := ws.Append(context.Background(), "first", "")
	require.NoError(t, err)
	_, err = ws.Append(context.Background(), "second", "")
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "journals", "2026_03_14.md"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(raw), "- # [[Ikaris AI]]"))
}

func TestSearchRanksByTermCount(t *testing.T) {
	ws, dir := testWorkspace(t)
	writePage(t, dir, "transformers.md", "Notes on attention and transformer architectures.")
	writePage(t, dir, "groceries.md", "milk, eggs, attention to the bread aisle")
	writePage(t, dir, "unrelated.md", "nothing of interest here")

	out, err := ws.Search(context.Background(), "attention transformer")

	require.NoError(t, err)
	assert.True(t, strings.Index(out, "transformers.md") < strings.Index(out, "groceries.md"))
	assert.NotContains(t, out, "unrelated.md")
}

func TestSearchTruncatesSnippets(t *testing.T) {
	ws, dir := testWorkspace(t)
	writePage(t, dir, "long.md", "keyword "+strings.Repeat("x", 600))

	out, err := ws.Search(context.Background(), "keyword")

	require.NoError(t, err)
	assert.Contains(t, out, "...")
	assert.Less(t, len(out), 600)
}

func TestSearchNoMatches(t *testing.T) {
	ws, dir := testWorkspace(t)
	writePage(t, dir, "page.md", "some content")

	out, err := ws.Search(context.Background(), "zzzz")

	require.NoError(t, err)
	assert.Equal(t, "I checked your notes, but couldn't find anything relevant.", out)
}

func TestSearchMissingPagesDir(t *testing.T) {
	ws, _ := testWorkspace(t)

	out, err := ws.Search(context.Background(), "anything")

	require.NoError(t, err)
	assert.Contains(t, out, "couldn't find anything relevant")
}

func TestAdapterNormalizesHits(t *testing.T) {
	ws, dir := testWorkspace(t)
	writePage(t, dir, "transformers.md", "attention is all you need")

	a := NewAdapter(ws)
	items, err := a.Query(context.Background(), "attention mechanisms")

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "notes", items[0].Source)
	assert.Equal(t, "transformers.md", items[0].ID)
	assert.Equal(t, "transformers", items[0].Title)
	assert.Equal(t, 0.5, items[0].Relevance)
}
