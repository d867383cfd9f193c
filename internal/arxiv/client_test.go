package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func atomFeedXML(pdfURL string) string {
	return fmt.Sprintf(`<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762</id>
    <title>Attention Is All
  You Need</title>
    <summary>  The dominant sequence transduction models...  </summary>
    <link href="http://arxiv.org/abs/1706.03762" type="text/html"/>
    <link href="%s" type="application/pdf"/>
  </entry>
</feed>`, pdfURL)
}

func newTestClient(t *testing.T, papersDir string) *Client {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/query") {
			fmt.Fprint(w, atomFeedXML(srv.URL+"/pdf/1706.03762"))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 fake")
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{APIBase: srv.URL, PapersDir: papersDir}, zap.NewNop())
	// No throttling in tests.
	c.limiter = rate.NewLimiter(rate.Every(time.Nanosecond), 1)
	return c
}

func TestLookupNormalizesTitle(t *testing.T) {
	c := newTestClient(t, t.TempDir())

	paper, err := c.Lookup(context.Background(), "1706.03762")

	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", paper.Title)
	assert.Equal(t, "The dominant sequence transduction models...", paper.Summary)
	assert.Contains(t, paper.PDFURL, "/pdf/1706.03762")
}

func TestFetchWritesPDFAndSidecar(t *testing.T) {
	dir := t.TempDir()
	c := newTestClient(t, dir)

	out, err := c.Fetch(context.Background(), "1706.03762")

	require.NoError(t, err)
	assert.True(t, out.New)
	assert.Equal(t, "Attention_Is_All_You_Need", out.Title)
	assert.FileExists(t, filepath.Join(dir, out.Title+".pdf"))
	assert.FileExists(t, filepath.Join(dir, out.Title+".txt"))
}

func TestFetchSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	c := newTestClient(t, dir)

	_, err := c.Fetch(context.Background(), "1706.03762")
	require.NoError(t, err)

	out, err := c.Fetch(context.Background(), "1706.03762")
	require.NoError(t, err)
	assert.False(t, out.New)
}

func TestLookupUnknownID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL}, zap.NewNop())
	c.limiter = rate.NewLimiter(rate.Inf, 1)

	_, err := c.Lookup(context.Background(), "0000.00000")
	assert.Error(t, err)
}
