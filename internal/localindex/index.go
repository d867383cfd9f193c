// Package localindex is the retrieval adapter over the local paper
// index: Qdrant for vectors, the embedding service for queries and
// ingest. Paper text is ingested from the sidecar .txt files the
// fetchers write next to each downloaded PDF.
package localindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/embeddings"
	"github.com/ikaris-ai/ikaris/internal/evidence"
	"github.com/ikaris-ai/ikaris/internal/retrieval"
	"github.com/ikaris-ai/ikaris/internal/vectordb"
)

// Index queries and maintains the local paper collection.
type Index struct {
	vdb        *vectordb.Client
	emb        *embeddings.Service
	chunker    *embeddings.Chunker
	papersDir  string
	collection string
	topK       int
	logger     *zap.Logger
}

// New builds the index adapter.
func New(vdb *vectordb.Client, emb *embeddings.Service, chunker *embeddings.Chunker, papersDir string, logger *zap.Logger) *Index {
	cfg := vdb.Config()
	return &Index{
		vdb:        vdb,
		emb:        emb,
		chunker:    chunker,
		papersDir:  papersDir,
		collection: cfg.Papers,
		topK:       cfg.TopK,
		logger:     logger,
	}
}

func (ix *Index) Name() string { return "local-index" }

func (ix *Index) Capability() retrieval.Capability { return retrieval.CapabilityGeneral }

// Query embeds the question and searches the paper collection. An
// empty or missing collection triggers one ingest-then-retry; if the
// corpus is still empty the adapter contributes nothing.
func (ix *Index) Query(ctx context.Context, question string) ([]evidence.Evidence, error) {
	vec, err := ix.emb.Generate(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	count, err := ix.vdb.Count(ctx, ix.collection)
	if err != nil {
		return nil, fmt.Errorf("count collection: %w", err)
	}
	if count == 0 {
		ix.logger.Info("Paper index empty, ingesting before retry")
		if err := ix.Reindex(ctx); err != nil {
			return nil, fmt.Errorf("auto ingest: %w", err)
		}
	}

	points, err := ix.vdb.Search(ctx, ix.collection, vec, ix.topK, 0)
	if err != nil {
		return nil, fmt.Errorf("search collection: %w", err)
	}

	items := make([]evidence.Evidence, 0, len(points))
	for _, p := range points {
		text, _ := p.Payload["text"].(string)
		title, _ := p.Payload["title"].(string)
		items = append(items, evidence.Evidence{
			Source:    evidence.SourceLocalIndex,
			ID:        fmt.Sprintf("%v", p.ID),
			Title:     title,
			Text:      text,
			Relevance: p.Score,
			Meta:      p.Payload,
		})
	}
	return items, nil
}

// Reindex rebuilds the collection from every sidecar text file in the
// papers directory.
func (ix *Index) Reindex(ctx context.Context) error {
	if err := ix.vdb.EnsureCollection(ctx, ix.collection); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	entries, err := os.ReadDir(ix.papersDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(ix.papersDir, 0o755); mkErr != nil {
				return fmt.Errorf("create papers dir: %w", mkErr)
			}
			return nil
		}
		return fmt.Errorf("read papers dir: %w", err)
	}

	var points []vectordb.Point
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(ix.papersDir, entry.Name()))
		if err != nil {
			ix.logger.Warn("Skipping unreadable paper text", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		title := strings.TrimSuffix(entry.Name(), ".txt")

		chunks := ix.chunker.Split(string(raw))
		vecs, err := ix.emb.GenerateBatch(ctx, chunks)
		if err != nil {
			return fmt.Errorf("embed chunks for %s: %w", entry.Name(), err)
		}
		for i, chunk := range chunks {
			points = append(points, vectordb.Point{
				ID:     uuid.New().String(),
				Vector: vecs[i],
				Payload: map[string]interface{}{
					"text":        chunk,
					"title":       title,
					"file":        entry.Name(),
					"chunk_index": i,
					"chunk_total": len(chunks),
				},
			})
		}
	}

	if len(points) == 0 {
		ix.logger.Info("No paper text found to index", zap.String("dir", ix.papersDir))
		return nil
	}
	if err := ix.vdb.Upsert(ctx, ix.collection, points); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	ix.logger.Info("Indexed paper chunks", zap.Int("chunks", len(points)))
	return nil
}
