package embeddings

import (
	"strings"
)

// ChunkingConfig controls how ingested paper text is split before
// embedding.
type ChunkingConfig struct {
	MaxWords     int `mapstructure:"max_words" yaml:"max_words"`
	OverlapWords int `mapstructure:"overlap_words" yaml:"overlap_words"`
}

// DefaultChunkingConfig returns the ingest defaults.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{MaxWords: 180, OverlapWords: 20}
}

// Chunker splits long text into overlapping word windows.
type Chunker struct {
	maxWords     int
	overlapWords int
}

func NewChunker(cfg ChunkingConfig) *Chunker {
	if cfg.MaxWords <= 0 {
		cfg.MaxWords = 180
	}
	if cfg.OverlapWords <= 0 {
		cfg.OverlapWords = 20
	}
	return &Chunker{maxWords: cfg.MaxWords, overlapWords: cfg.OverlapWords}
}

// Split returns the overlapping chunks of text. Text that fits in one
// window comes back as a single chunk.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if len(words) <= c.maxWords {
		return []string{strings.Join(words, " ")}
	}

	step := c.maxWords - c.overlapWords
	if step <= 0 {
		step = c.maxWords / 2
	}

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + c.maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
