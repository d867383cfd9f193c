// Package arxiv fetches paper metadata from the arXiv Atom API and
// downloads full-text PDFs for the batch path.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ikaris-ai/ikaris/internal/agent"
	"github.com/ikaris-ai/ikaris/internal/circuitbreaker"
	"github.com/ikaris-ai/ikaris/internal/tracing"
)

// Config holds arXiv client settings.
type Config struct {
	APIBase         string        `mapstructure:"api_base" yaml:"api_base"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" yaml:"download_timeout"`
	PapersDir       string        `mapstructure:"papers_dir" yaml:"papers_dir"`
}

// Client resolves arXiv ids to metadata and local PDF files.
type Client struct {
	cfg      Config
	httpw    *circuitbreaker.HTTPWrapper
	download *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewClient builds a client. arXiv asks for no more than one request
// every three seconds; the limiter serializes calls accordingly.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://export.arxiv.org/api"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = 60 * time.Second
	}
	if cfg.PapersDir == "" {
		cfg.PapersDir = "./papers"
	}
	return &Client{
		cfg:      cfg,
		httpw:    circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: cfg.Timeout}, "arxiv", "atom-api", logger),
		download: &http.Client{Timeout: cfg.DownloadTimeout},
		limiter:  rate.NewLimiter(rate.Every(3*time.Second), 1),
		logger:   logger,
	}
}

// Paper is one Atom entry, trimmed.
type Paper struct {
	ID      string
	Title   string
	Summary string
	PDFURL  string
}

type atomFeed struct {
	Entries []struct {
		ID      string `xml:"id"`
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
		Links   []struct {
			Href string `xml:"href,attr"`
			Type string `xml:"type,attr"`
		} `xml:"link"`
	} `xml:"entry"`
}

// Lookup resolves one arXiv id to its metadata.
func (c *Client) Lookup(ctx context.Context, id string) (Paper, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Paper{}, err
	}

	endpoint := fmt.Sprintf("%s/query?id_list=%s", c.cfg.APIBase, url.QueryEscape(id))
	ctx, span := tracing.StartHTTPSpan(ctx, "GET", endpoint)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Paper{}, err
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		return Paper{}, fmt.Errorf("arxiv query: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Paper{}, fmt.Errorf("arxiv status %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return Paper{}, fmt.Errorf("parse atom feed: %w", err)
	}
	if len(feed.Entries) == 0 || strings.TrimSpace(feed.Entries[0].Title) == "" {
		return Paper{}, fmt.Errorf("arxiv id %s not found", id)
	}

	entry := feed.Entries[0]
	paper := Paper{
		ID:      id,
		Title:   strings.Join(strings.Fields(entry.Title), " "),
		Summary: strings.TrimSpace(entry.Summary),
	}
	for _, link := range entry.Links {
		if link.Type == "application/pdf" {
			paper.PDFURL = link.Href
		}
	}
	return paper, nil
}

// Fetch resolves an id, downloads the PDF unless it already exists,
// and writes the abstract sidecar the local index ingests from.
func (c *Client) Fetch(ctx context.Context, id string) (agent.FetchResult, error) {
	paper, err := c.Lookup(ctx, id)
	if err != nil {
		return agent.FetchResult{}, err
	}

	if err := os.MkdirAll(c.cfg.PapersDir, 0o755); err != nil {
		return agent.FetchResult{}, fmt.Errorf("create papers dir: %w", err)
	}

	base := sanitizeTitle(paper.Title)
	pdfPath := filepath.Join(c.cfg.PapersDir, base+".pdf")
	sidecar := filepath.Join(c.cfg.PapersDir, base+".txt")

	if _, err := os.Stat(pdfPath); err == nil {
		return agent.FetchResult{ID: id, Title: base, Summary: paper.Summary, Path: pdfPath, New: false}, nil
	}

	if paper.PDFURL == "" {
		return agent.FetchResult{}, fmt.Errorf("arxiv id %s has no pdf link", id)
	}
	if err := c.downloadPDF(ctx, paper.PDFURL, pdfPath); err != nil {
		return agent.FetchResult{}, fmt.Errorf("download %s: %w", id, err)
	}
	if err := os.WriteFile(sidecar, []byte(paper.Title+"\n\n"+paper.Summary), 0o644); err != nil {
		return agent.FetchResult{}, fmt.Errorf("write sidecar: %w", err)
	}

	c.logger.Info("Downloaded paper", zap.String("id", id), zap.String("title", base))
	return agent.FetchResult{ID: id, Title: base, Summary: paper.Summary, Path: pdfPath, New: true}, nil
}

func (c *Client) downloadPDF(ctx context.Context, pdfURL, path string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pdf status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
