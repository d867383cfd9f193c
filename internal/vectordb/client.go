// Package vectordb is a minimal Qdrant HTTP client for the local paper
// index.
package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/circuitbreaker"
	"github.com/ikaris-ai/ikaris/internal/metrics"
	"github.com/ikaris-ai/ikaris/internal/tracing"
)

// Config holds Qdrant connection settings.
type Config struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Host      string        `mapstructure:"host" yaml:"host"`
	Port      int           `mapstructure:"port" yaml:"port"`
	TopK      int           `mapstructure:"top_k" yaml:"top_k"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Papers    string        `mapstructure:"papers_collection" yaml:"papers_collection"`
	Dimension int           `mapstructure:"dimension" yaml:"dimension"`
}

// Client is a minimal Qdrant HTTP client.
type Client struct {
	cfg   Config
	base  string
	httpw *circuitbreaker.HTTPWrapper
	log   *zap.Logger
}

// NewClient builds a client with config defaults filled in.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.TopK == 0 {
		cfg.TopK = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Papers == "" {
		cfg.Papers = "ikaris_papers"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 384
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:   cfg,
		base:  fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpw: circuitbreaker.NewHTTPWrapper(httpClient, "qdrant", "vectordb", logger),
		log:   logger,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// Point is one stored vector with its payload. Payloads carry the
// chunk text plus citation anchors (sections, equations, hierarchy).
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// ScoredPoint is a search hit.
type ScoredPoint struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type queryRequest struct {
	Query          []float32 `json:"query"`
	Limit          int       `json:"limit"`
	ScoreThreshold *float64  `json:"score_threshold,omitempty"`
	WithPayload    bool      `json:"with_payload"`
}

type queryResponse struct {
	Result struct {
		Points []ScoredPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// Search runs a semantic query against a collection.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, limit int, threshold float64) ([]ScoredPoint, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("vectordb: search called while disabled")
	}
	start := time.Now()

	url := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "POST", url)
	defer span.End()

	if limit <= 0 {
		limit = c.cfg.TopK
	}
	var thr *float64
	if threshold > 0 {
		thr = &threshold
	}
	buf, _ := json.Marshal(queryRequest{Query: vec, Limit: limit, ScoreThreshold: thr, WithPayload: true})

	resp, err := c.do(ctx, http.MethodPost, url, buf)
	if err != nil {
		metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("qdrant query status %d", resp.StatusCode)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())
	return qr.Result.Points, nil
}

// Upsert inserts or updates points in a collection.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if c == nil || !c.cfg.Enabled {
		return fmt.Errorf("vectordb: upsert called while disabled")
	}

	url := fmt.Sprintf("%s/collections/%s/points", c.base, collection)
	ctx, span := tracing.StartHTTPSpan(ctx, "PUT", url)
	defer span.End()

	buf, _ := json.Marshal(map[string]interface{}{"points": points})
	resp, err := c.do(ctx, http.MethodPut, url, buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	return nil
}

// EnsureCollection creates the collection if it does not exist yet.
// Qdrant returns 409 for an existing collection; that is not an error.
func (c *Client) EnsureCollection(ctx context.Context, collection string) error {
	if c == nil || !c.cfg.Enabled {
		return fmt.Errorf("vectordb: ensure called while disabled")
	}

	url := fmt.Sprintf("%s/collections/%s", c.base, collection)
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     c.cfg.Dimension,
			"distance": "Cosine",
		},
	}
	buf, _ := json.Marshal(body)
	resp, err := c.do(ctx, http.MethodPut, url, buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant create collection status %d", resp.StatusCode)
	}
	return nil
}

// Count returns the number of points in a collection. A missing
// collection counts as zero.
func (c *Client) Count(ctx context.Context, collection string) (int, error) {
	if c == nil || !c.cfg.Enabled {
		return 0, fmt.Errorf("vectordb: count called while disabled")
	}

	url := fmt.Sprintf("%s/collections/%s/points/count", c.base, collection)
	buf, _ := json.Marshal(map[string]interface{}{"exact": true})
	resp, err := c.do(ctx, http.MethodPost, url, buf)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("qdrant count status %d", resp.StatusCode)
	}

	var out struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Result.Count, nil
}

func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)
	return c.httpw.Do(req)
}
