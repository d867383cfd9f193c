// Package pubmed talks to the NCBI E-utilities REST API: ESearch
// (JSON) resolves a free-text query to PMIDs, EFetch (XML) resolves a
// PMID to the article record, ELink resolves a PMID to its PMC id for
// full-text PDF retrieval.
package pubmed

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
	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
	"github.com/ikaris-ai/ikaris/internal/tracing"
)

const (
	defaultEUtilsBase = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	defaultPMCBase    = "https://www.ncbi.nlm.nih.gov/pmc"
)

// Config holds PubMed client settings. The base URLs are overridable
// for tests and mirrors.
type Config struct {
	APIKey          string        `mapstructure:"api_key" yaml:"api_key"`
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxResults      int           `mapstructure:"max_results" yaml:"max_results"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" yaml:"download_timeout"`
	PapersDir       string        `mapstructure:"papers_dir" yaml:"papers_dir"`
	EUtilsBase      string        `mapstructure:"eutils_base" yaml:"eutils_base"`
	PMCBase         string        `mapstructure:"pmc_base" yaml:"pmc_base"`
}

// Client is the biomedical retrieval adapter and batch fetcher.
type Client struct {
	cfg      Config
	httpw    *circuitbreaker.HTTPWrapper
	download *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewClient builds a client. NCBI allows 10 req/s with an API key and
// 3 req/s without; the limiter serializes outbound calls accordingly.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.APIKey = strings.Trim(strings.TrimSpace(cfg.APIKey), `"'`)
	if cfg.APIKey == "xxxx" {
		cfg.APIKey = ""
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	if cfg.PapersDir == "" {
		cfg.PapersDir = "./papers"
	}
	if cfg.EUtilsBase == "" {
		cfg.EUtilsBase = defaultEUtilsBase
	}
	if cfg.PMCBase == "" {
		cfg.PMCBase = defaultPMCBase
	}

	rps := rate.Limit(3)
	if cfg.APIKey != "" {
		rps = rate.Limit(10)
	}
	logger.Info("PubMed client initialized",
		zap.Bool("api_key", cfg.APIKey != ""),
		zap.Bool("enabled", cfg.Enabled),
	)
	return &Client{
		cfg:      cfg,
		httpw:    circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: cfg.Timeout}, "pubmed", "eutils", logger),
		download: &http.Client{Timeout: cfg.DownloadTimeout},
		limiter:  rate.NewLimiter(rps, 1),
		logger:   logger,
	}
}

func (c *Client) Name() string { return "pubmed" }

func (c *Client) Capability() retrieval.Capability { return retrieval.CapabilityBiomedical }

// Article is one EFetch record, normalized.
type Article struct {
	PMID     string
	Title    string
	Abstract string
	Journal  string
	Year     string
	Authors  []string
	DOI      string
	PMCID    string
}

// Query searches PubMed and returns the top abstracts as evidence.
func (c *Client) Query(ctx context.Context, question string) ([]evidence.Evidence, error) {
	if !c.cfg.Enabled {
		return nil, nil
	}

	pmids, err := c.searchPMIDs(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}
	c.logger.Info("PubMed search", zap.String("query", question), zap.Int("pmids", len(pmids)))

	items := make([]evidence.Evidence, 0, len(pmids))
	for _, pmid := range pmids {
		art, err := c.FetchArticle(ctx, pmid)
		if err != nil {
			c.logger.Warn("EFetch failed for PMID", zap.String("pmid", pmid), zap.Error(err))
			continue
		}
		items = append(items, evidence.Evidence{
			Source:    evidence.SourceBiomedical,
			ID:        art.PMID,
			Title:     art.Title,
			Text:      art.Abstract,
			Relevance: 0.8,
			Meta: map[string]interface{}{
				"journal": art.Journal,
				"year":    art.Year,
				"authors": art.Authors,
				"doi":     art.DOI,
				"pmcid":   art.PMCID,
			},
		})
	}
	return items, nil
}

// Fetch retrieves one article by PMID for the batch path: it writes
// the abstract sidecar, resolves the PMC id and attempts the full-text
// PDF. A missing PDF is not an error; the metadata alone is useful.
func (c *Client) Fetch(ctx context.Context, pmid string) (agent.FetchResult, error) {
	art, err := c.FetchArticle(ctx, pmid)
	if err != nil {
		return agent.FetchResult{}, err
	}

	if err := os.MkdirAll(c.cfg.PapersDir, 0o755); err != nil {
		return agent.FetchResult{}, fmt.Errorf("create papers dir: %w", err)
	}

	base := sanitizeTitle(art.Title)
	sidecar := filepath.Join(c.cfg.PapersDir, base+".txt")
	pdfPath := filepath.Join(c.cfg.PapersDir, base+".pdf")

	if _, err := os.Stat(sidecar); err == nil {
		return agent.FetchResult{ID: pmid, Title: base, Summary: art.Abstract, Path: pdfPath, New: false}, nil
	}
	if err := os.WriteFile(sidecar, []byte(art.Title+"\n\n"+art.Abstract), 0o644); err != nil {
		return agent.FetchResult{}, fmt.Errorf("write sidecar: %w", err)
	}

	if art.PMCID == "" {
		if pmcid, err := c.ResolvePMCID(ctx, pmid); err == nil {
			art.PMCID = pmcid
		}
	}
	if art.PMCID != "" {
		if err := c.downloadPDF(ctx, art.PMCID, pdfPath); err != nil {
			c.logger.Warn("PMC PDF unavailable",
				zap.String("pmid", pmid),
				zap.String("pmcid", art.PMCID),
				zap.Error(err),
			)
			pdfPath = sidecar
		}
	} else {
		pdfPath = sidecar
	}

	return agent.FetchResult{ID: pmid, Title: base, Summary: art.Abstract, Path: pdfPath, New: true}, nil
}

func (c *Client) searchPMIDs(ctx context.Context, query string) ([]string, error) {
	params := c.baseParams()
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmax", fmt.Sprintf("%d", c.cfg.MaxResults))
	params.Set("retmode", "json")

	var out struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := c.getJSON(ctx, c.cfg.EUtilsBase+"/esearch.fcgi", params, &out); err != nil {
		return nil, err
	}
	return out.ESearchResult.IDList, nil
}

// FetchArticle resolves one PMID to its normalized record, including
// the PMC id when one exists.
func (c *Client) FetchArticle(ctx context.Context, pmid string) (Article, error) {
	params := c.baseParams()
	params.Set("db", "pubmed")
	params.Set("id", pmid)
	params.Set("retmode", "xml")

	body, err := c.getBody(ctx, c.cfg.EUtilsBase+"/efetch.fcgi", params)
	if err != nil {
		return Article{}, err
	}

	art, err := parseArticle(body)
	if err != nil {
		return Article{}, err
	}
	art.PMID = pmid
	return art, nil
}

// ResolvePMCID maps a PMID to its PubMed Central id via ELink.
func (c *Client) ResolvePMCID(ctx context.Context, pmid string) (string, error) {
	params := c.baseParams()
	params.Set("dbfrom", "pubmed")
	params.Set("db", "pmc")
	params.Set("id", pmid)
	params.Set("retmode", "xml")

	body, err := c.getBody(ctx, c.cfg.EUtilsBase+"/elink.fcgi", params)
	if err != nil {
		return "", err
	}

	var out struct {
		IDs []string `xml:"LinkSet>LinkSetDb>Link>Id"`
	}
	if err := xml.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if len(out.IDs) == 0 {
		return "", nil
	}
	return out.IDs[0], nil
}

func (c *Client) downloadPDF(ctx context.Context, pmcid, path string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/articles/PMC%s/pdf", c.cfg.PMCBase, pmcid), nil)
	if err != nil {
		return err
	}
	resp, err := c.download.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pmc pdf status %d", resp.StatusCode)
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "pdf") {
		return fmt.Errorf("pmc returned %s, not a pdf", resp.Header.Get("Content-Type"))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	return params
}

func (c *Client) getBody(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	full := endpoint + "?" + params.Encode()
	ctx, span := tracing.StartHTTPSpan(ctx, "GET", endpoint)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.httpw.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eutils status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	body, err := c.getBody(ctx, endpoint, params)
	if err != nil {
		return err
	}
	return jsonUnmarshal(body, out)
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
